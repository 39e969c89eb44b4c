// Package datasource fetches box-slice frames from the box-slice service, a
// local SQLite replay database, or a websocket push stream.
package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
)

const defaultDB = ".bsv/slices.db"

// Fetcher returns frames for a pair in ascending timestamp order. A zero since
// asks for the most recent limit frames; otherwise only frames after since
// are returned. A non-positive limit means no limit.
type Fetcher interface {
	FetchFrames(ctx context.Context, pairID string, since time.Time, limit int) ([]boxslice.Frame, error)
}

// Discover finds the replay database path.
// Priority: configured path > BSV_DB env var > .bsv/slices.db in CWD or the
// nearest parent > the per-user data directory. A configured path is returned
// as is; OpenSQLite creates it when missing.
func Discover(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if env := os.Getenv("BSV_DB"); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env, nil
		}
		return "", fmt.Errorf("BSV_DB=%q: %w", env, os.ErrNotExist)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, defaultDB)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if p := UserDB(); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no replay database found (looked for %s)", defaultDB)
}

// UserDB returns $XDG_DATA_HOME/bsv/slices.db, falling back to
// ~/.local/share/bsv/slices.db. It is empty when no home is known.
func UserDB() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "bsv", "slices.db")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".local", "share", "bsv", "slices.db")
}

// Open discovers and opens the replay database.
func Open(configured string, logger *slog.Logger) (*SQLiteSource, string, error) {
	path, err := Discover(configured)
	if err != nil {
		return nil, "", err
	}
	s, err := OpenSQLite(path, logger)
	if err != nil {
		return nil, "", err
	}
	return s, path, nil
}
