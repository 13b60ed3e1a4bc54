package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "standupbot/pkg/logx"
)

// fileSink writes the snapshot to <path> via <path>.tmp + rename so a crash
// mid-write never leaves a truncated snapshot behind.
type fileSink struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Sink, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileSink{log: log, path: path}, nil
}

func (s *fileSink) Load(ctx context.Context) ([]byte, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.log.Debug("snapshot loaded", logx.String("path", s.path), logx.Int("bytes", len(b)))
	return b, nil
}

func (s *fileSink) Save(ctx context.Context, data []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileSink) Close() error { return nil }
