package datasource

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
)

const schema = `
CREATE TABLE IF NOT EXISTS box_slices (
	pair_id TEXT    NOT NULL,
	ts      INTEGER NOT NULL,
	boxes   TEXT    NOT NULL,
	PRIMARY KEY (pair_id, ts)
)`

// SQLiteSource replays recorded frames from a SQLite database. Timestamps
// are stored as Unix nanoseconds and boxes as a JSON array of wire boxes.
type SQLiteSource struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Fetcher = (*SQLiteSource)(nil)

// OpenSQLite opens or creates the database at path and ensures the schema.
// Rows skipped while reading are reported to logger (slog.Default if nil).
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: schema: %w", path, err)
	}
	return &SQLiteSource{db: db, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (s *SQLiteSource) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteSource) Close() error { return s.db.Close() }

// Insert records frames for a pair, replacing rows with the same timestamp.
func (s *SQLiteSource) Insert(ctx context.Context, pairID string, frames []boxslice.Frame) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO box_slices (pair_id, ts, boxes) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range frames {
		data, err := json.Marshal(boxslice.ToWire(f).Boxes)
		if err != nil {
			return fmt.Errorf("encode boxes at %s: %w", f.Timestamp, err)
		}
		if _, err := stmt.ExecContext(ctx, pairID, f.Timestamp.UnixNano(), string(data)); err != nil {
			return fmt.Errorf("insert %s: %w", f.Timestamp, err)
		}
	}
	return tx.Commit()
}

// FetchFrames implements Fetcher. Sentinel frames are filtered; rows whose
// boxes column does not decode are logged and skipped.
func (s *SQLiteSource) FetchFrames(ctx context.Context, pairID string, since time.Time, limit int) ([]boxslice.Frame, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	var (
		rows *sql.Rows
		err  error
	)
	if since.IsZero() {
		rows, err = s.db.QueryContext(ctx,
			`SELECT ts, boxes FROM box_slices WHERE pair_id = ? ORDER BY ts DESC LIMIT ?`,
			pairID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT ts, boxes FROM box_slices WHERE pair_id = ? AND ts > ? ORDER BY ts ASC LIMIT ?`,
			pairID, since.UnixNano(), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query box slices: %w", err)
	}
	defer rows.Close()

	var frames []boxslice.Frame
	for rows.Next() {
		var (
			ts   int64
			data string
		)
		if err := rows.Scan(&ts, &data); err != nil {
			return nil, fmt.Errorf("scan box slice: %w", err)
		}
		at := time.Unix(0, ts).UTC()
		var wire []boxslice.WireBox
		if err := json.Unmarshal([]byte(data), &wire); err != nil {
			s.logger.Warn("skipped row", "pair", pairID, "ts", at, "err", err)
			continue
		}
		f, err := boxslice.FromWire(boxslice.WireFrame{
			Timestamp: at.Format(time.RFC3339Nano),
			Boxes:     wire,
		})
		if err != nil {
			s.logger.Warn("skipped row", "pair", pairID, "ts", at, "err", err)
			continue
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read box slices: %w", err)
	}
	if since.IsZero() {
		slices.Reverse(frames)
	}
	return boxslice.FilterSentinels(frames), nil
}

// Pairs lists the pairs present in the database.
func (s *SQLiteSource) Pairs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT pair_id FROM box_slices ORDER BY pair_id`)
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
