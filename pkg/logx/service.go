package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const defaultLogFile = "./standupbot.log"

// Service owns the sinks. Loggers derived from it read the current root on
// every call, so Apply takes effect immediately.
type Service struct {
	mu   sync.Mutex
	file *os.File

	root  atomic.Pointer[zerolog.Logger]
	alert *alertSink
}

// New applies cfg and returns the Service with its root Logger. sender may
// be nil, in which case alerts are never sent even when enabled.
func New(cfg Config, sender AlertSender) (*Service, Logger) {
	setupGlobals()
	s := &Service{}
	if sender != nil {
		s.alert = newAlertSink(sender)
	}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Apply rebuilds the writer set. It is safe to call concurrently with
// logging.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if f := s.reopenFile(cfg.File); f != nil {
		writers = append(writers, zerolog.SyncWriter(f))
	}
	if s.alert != nil {
		s.alert.configure(cfg.Alert)
		if cfg.Alert.Enabled {
			writers = append(writers, s.alert)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// reopenFile closes the previous log file and opens the configured one.
// Caller holds s.mu.
func (s *Service) reopenFile(fc FileConfig) *os.File {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if !fc.Enabled {
		return nil
	}
	path := strings.TrimSpace(fc.Path)
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(Stderr(), "logx: open log file %q: %v\n", path, err)
		return nil
	}
	s.file = f
	return f
}

// Close stops the alert worker and closes the log file.
func (s *Service) Close() error {
	if s.alert != nil {
		s.alert.stop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

// Stdout is where console output goes.
func Stdout() io.Writer { return os.Stdout }

// Stderr receives logx's own failures.
func Stderr() io.Writer { return os.Stderr }
