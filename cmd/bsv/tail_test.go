package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/daviddao/boxslice_viewer/internal/config"
	"github.com/daviddao/boxslice_viewer/internal/framestore"
)

func TestRunTailPrintsChanges(t *testing.T) {
	cfg := config.Default()
	src := &source{fetcher: &fakeFetcher{frames: testFrames(3)}, name: "test", close: func() error { return nil }}

	var out bytes.Buffer
	if err := runTail(context.Background(), &out, cfg, src, quietLogger(), 1); err != nil {
		t.Fatalf("runTail: %v", err)
	}
	line := strings.TrimSpace(out.String())
	if !strings.HasPrefix(line, "+3 -0 len=3 last=") {
		t.Errorf("line = %q", line)
	}
	if !strings.HasSuffix(line, " up 2/1") {
		t.Errorf("newest frame summary missing: %q", line)
	}
}

func TestRunTailStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	f := &fakeFetcher{}
	src := &source{fetcher: f, name: "test", close: func() error { return nil }}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	if err := runTail(ctx, &out, cfg, src, quietLogger(), 0); err != nil {
		t.Fatalf("runTail: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("no frames should print nothing, got %q", out.String())
	}
	if len(f.pairs) != 1 || f.pairs[0] != cfg.Pair {
		t.Errorf("fetched pairs = %v, want one initial poll", f.pairs)
	}
}

func TestWriteChangeReset(t *testing.T) {
	var out bytes.Buffer
	if err := writeChange(&out, nil, framestore.Change{Reset: true}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "reset\n" {
		t.Errorf("got %q", out.String())
	}
}
