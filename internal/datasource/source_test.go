package datasource

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func frameAt(minute int, values ...float64) boxslice.Frame {
	boxes := make([]boxslice.Box, len(values))
	for i, v := range values {
		boxes[i] = boxslice.Box{High: 100 + float64(i), Low: 90 + float64(i), Value: v}
	}
	return boxslice.Frame{Timestamp: t0.Add(time.Duration(minute) * time.Minute), Boxes: boxes}
}

func sentinelAt(minute int) boxslice.Frame {
	return boxslice.Frame{
		Timestamp: t0.Add(time.Duration(minute) * time.Minute),
		Boxes:     []boxslice.Box{{High: 1, Low: 0, Value: 0}, {High: 1, Low: 0, Value: 0}},
	}
}

func newDB(t *testing.T, path string) *SQLiteSource {
	t.Helper()
	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDiscoverFromEnvVar(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	newDB(t, dbPath)
	t.Setenv("BSV_DB", dbPath)

	path, err := Discover("")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if path != dbPath {
		t.Errorf("Discover() = %q, want %q", path, dbPath)
	}
}

func TestDiscoverEnvVarMissing(t *testing.T) {
	t.Setenv("BSV_DB", "/nonexistent/path/slices.db")
	if _, err := Discover(""); err == nil {
		t.Error("Discover should fail when BSV_DB points to a nonexistent file")
	}
}

func TestDiscoverFromCWD(t *testing.T) {
	dir := t.TempDir()
	newDB(t, filepath.Join(dir, ".bsv", "slices.db"))
	t.Setenv("BSV_DB", "")
	t.Chdir(dir)

	path, err := Discover("")
	if err != nil {
		t.Fatalf("Discover from CWD: %v", err)
	}
	if filepath.Base(filepath.Dir(path)) != ".bsv" {
		t.Errorf("expected path in .bsv/, got %q", path)
	}
}

func TestDiscoverFromParentDir(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, ".bsv", "slices.db")
	newDB(t, dbPath)

	child := filepath.Join(dir, "sub", "deep")
	if err := os.MkdirAll(child, 0o755); err != nil {
		t.Fatalf("MkdirAll child: %v", err)
	}
	t.Setenv("BSV_DB", "")
	t.Chdir(child)

	path, err := Discover("")
	if err != nil {
		t.Fatalf("Discover from parent: %v", err)
	}
	// Resolve symlinks for comparison (macOS /var -> /private/var).
	got, _ := filepath.EvalSymlinks(path)
	want, _ := filepath.EvalSymlinks(dbPath)
	if got != want {
		t.Errorf("Discover() = %q, want %q", path, dbPath)
	}
}

func TestDiscoverConfiguredWins(t *testing.T) {
	dir := t.TempDir()
	newDB(t, filepath.Join(dir, ".bsv", "slices.db"))
	t.Setenv("BSV_DB", filepath.Join(dir, ".bsv", "slices.db"))
	t.Chdir(dir)

	configured := filepath.Join(dir, "replay", "new.db")
	path, err := Discover(configured)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if path != configured {
		t.Errorf("Discover(%q) = %q, want the configured path even before it exists", configured, path)
	}

	src, got, err := Open(configured, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()
	if got != configured {
		t.Errorf("Open path = %q", got)
	}
	if _, err := os.Stat(configured); err != nil {
		t.Errorf("configured database not created: %v", err)
	}
}

func TestDiscoverUserDataDir(t *testing.T) {
	data := t.TempDir()
	t.Setenv("BSV_DB", "")
	t.Setenv("XDG_DATA_HOME", data)
	t.Chdir(t.TempDir())

	if _, err := Discover(""); err == nil {
		t.Fatal("Discover should fail before the user database exists")
	}
	want := filepath.Join(data, "bsv", "slices.db")
	if UserDB() != want {
		t.Fatalf("UserDB() = %q, want %q", UserDB(), want)
	}
	newDB(t, want)

	path, err := Discover("")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if path != want {
		t.Errorf("Discover() = %q, want %q", path, want)
	}
}

func TestDiscoverNoDB(t *testing.T) {
	t.Setenv("BSV_DB", "")
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	if _, err := Discover(""); err == nil {
		t.Error("Discover should fail when no database exists")
	}
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	newDB(t, dbPath)
	t.Setenv("BSV_DB", dbPath)

	src, path, err := Open("", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()
	if path != dbPath || src.Path() != dbPath {
		t.Errorf("Open path = %q, want %q", path, dbPath)
	}

	t.Setenv("BSV_DB", "/nonexistent/path/slices.db")
	if _, _, err := Open("", nil); err == nil {
		t.Error("Open should fail when no database exists")
	}
}

func TestSQLiteFetch(t *testing.T) {
	src := newDB(t, filepath.Join(t.TempDir(), "slices.db"))
	ctx := context.Background()

	frames := []boxslice.Frame{
		frameAt(0, 1, -1),
		frameAt(1, 1, 1),
		sentinelAt(2),
		frameAt(3, -1, -1),
		frameAt(4, 2, -1),
	}
	if err := src.Insert(ctx, "BTC-USD", frames); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := src.Insert(ctx, "ETH-USD", frames[:1]); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tests := []struct {
		name  string
		since time.Time
		limit int
		want  []time.Time
	}{
		{"latest two", time.Time{}, 2, []time.Time{frames[3].Timestamp, frames[4].Timestamp}},
		{"latest three skips sentinel", time.Time{}, 3, []time.Time{frames[3].Timestamp, frames[4].Timestamp}},
		{"all", time.Time{}, 0, []time.Time{frames[0].Timestamp, frames[1].Timestamp, frames[3].Timestamp, frames[4].Timestamp}},
		{"since is exclusive", frames[1].Timestamp, 0, []time.Time{frames[3].Timestamp, frames[4].Timestamp}},
		{"since with limit", frames[0].Timestamp, 1, []time.Time{frames[1].Timestamp}},
		{"nothing newer", frames[4].Timestamp, 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.FetchFrames(ctx, "BTC-USD", tt.since, tt.limit)
			if err != nil {
				t.Fatalf("FetchFrames: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d frames, want %d", len(got), len(tt.want))
			}
			for i, f := range got {
				if !f.Timestamp.Equal(tt.want[i]) {
					t.Errorf("frame %d at %v, want %v", i, f.Timestamp, tt.want[i])
				}
			}
		})
	}

	got, err := src.FetchFrames(ctx, "BTC-USD", frames[3].Timestamp, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Equal(frames[4]) || got[0].Boxes[0].High != 100 {
		t.Errorf("round trip lost box data: %+v", got)
	}

	pairs, err := src.Pairs(ctx)
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	if len(pairs) != 2 || pairs[0] != "BTC-USD" || pairs[1] != "ETH-USD" {
		t.Errorf("Pairs = %v", pairs)
	}
}

func TestSQLiteInsertReplaces(t *testing.T) {
	src := newDB(t, filepath.Join(t.TempDir(), "slices.db"))
	ctx := context.Background()
	if err := src.Insert(ctx, "p", []boxslice.Frame{frameAt(0, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := src.Insert(ctx, "p", []boxslice.Frame{frameAt(0, -3)}); err != nil {
		t.Fatal(err)
	}
	got, err := src.FetchFrames(ctx, "p", time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Boxes[0].Value != -3 {
		t.Errorf("got %+v, want the replaced row", got)
	}
}

func TestSQLiteSkipsUndecodableRows(t *testing.T) {
	var logs bytes.Buffer
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "slices.db"), slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer src.Close()
	ctx := context.Background()

	if err := src.Insert(ctx, "p", []boxslice.Frame{frameAt(0, 1), frameAt(2, -1)}); err != nil {
		t.Fatal(err)
	}
	for _, row := range []struct {
		minute int
		boxes  string
	}{
		{1, `not json`},
		{3, `[{"high": "x", "low": 5, "value": 1}]`},
	} {
		ts := t0.Add(time.Duration(row.minute) * time.Minute).UnixNano()
		if _, err := src.db.ExecContext(ctx, `INSERT INTO box_slices (pair_id, ts, boxes) VALUES (?, ?, ?)`, "p", ts, row.boxes); err != nil {
			t.Fatalf("raw insert: %v", err)
		}
	}

	got, err := src.FetchFrames(ctx, "p", time.Time{}, 0)
	if err != nil {
		t.Fatalf("FetchFrames: %v", err)
	}
	if len(got) != 2 || !got[0].Timestamp.Equal(t0) || !got[1].Timestamp.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("got %+v, want the two good rows", got)
	}
	if n := strings.Count(logs.String(), "skipped row"); n != 2 {
		t.Errorf("logged %d skipped rows, want 2:\n%s", n, logs.String())
	}
}
