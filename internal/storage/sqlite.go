package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "standupbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteSink struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Sink, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, cfg.BusyTimeout))
	if err != nil {
		return nil, err
	}
	// One connection: the pragmas apply per connection and SQLite has a
	// single writer anyway.
	db.SetMaxOpenConns(1)

	st := &sqliteSink{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite opened", logx.String("path", path))
	return st, nil
}

// sqliteDSN encodes pragmas the way modernc.org/sqlite reads them.
func sqliteDSN(path string, busy time.Duration) string {
	pragmas := []string{"journal_mode(WAL)", "synchronous(NORMAL)"}
	if busy > 0 {
		pragmas = append(pragmas, fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	}
	return "file:" + path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}

func (s *sqliteSink) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteSink) Load(ctx context.Context) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshot WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *sqliteSink) Save(ctx context.Context, data []byte) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot(id, saved_at, data) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET saved_at=excluded.saved_at, data=excluded.data`,
		time.Now().UTC().Format(time.RFC3339Nano), data,
	)
	return err
}

func (s *sqliteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
