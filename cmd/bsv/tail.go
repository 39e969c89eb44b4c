package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
	"github.com/daviddao/boxslice_viewer/internal/config"
	"github.com/daviddao/boxslice_viewer/internal/datasource"
	"github.com/daviddao/boxslice_viewer/internal/framestore"
	"github.com/daviddao/boxslice_viewer/internal/position"
)

func newTailCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Poll frames and print one line per frame store change",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, _, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			src, err := openSource(cfg, logger)
			if err != nil {
				return err
			}
			defer src.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runTail(ctx, cmd.OutOrStdout(), cfg, src, logger, count)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after n changes (0: run until interrupted)")
	return cmd
}

// runTail polls cfg.Pair into a fresh store and reports every change the
// store publishes. It returns after count changes, or when ctx is done.
func runTail(ctx context.Context, w io.Writer, cfg *config.Config, src *source, logger *slog.Logger, count int) error {
	store := framestore.New(cfg.Retention, framestore.WithLogger(logger))
	changes := make(chan framestore.Change, 16)
	if err := store.Subscribe("tail", changes); err != nil {
		return err
	}
	defer store.Unsubscribe("tail")

	poller := datasource.NewPoller(src.fetcher, cfg.FetchTimeout.Duration, logger)
	defer poller.Close()

	var dbChanges <-chan struct{} // nil blocks forever
	if src.dbPath != "" {
		watcher, err := datasource.NewWatcher(src.dbPath, datasource.DefaultDebounce, logger)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		defer watcher.Close()
		dbChanges = watcher.Changes()
	}

	poll := func() {
		res, ok := poller.Poll(cfg.Pair, store.Cursor(), cfg.FetchLimit)
		if !ok {
			return
		}
		if res.Err != nil {
			logger.Warn("poll failed", "pair", cfg.Pair, "err", res.Err)
			return
		}
		store.Ingest(boxslice.FilterSentinels(res.Frames))
	}

	ticker := time.NewTicker(cfg.PollInterval.Duration)
	defer ticker.Stop()

	seen := 0
	poll()
	for {
	drain:
		for {
			select {
			case c := <-changes:
				if err := writeChange(w, store, c); err != nil {
					return err
				}
				seen++
				if count > 0 && seen >= count {
					return nil
				}
			default:
				break drain
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			poll()
		case <-dbChanges:
			poll()
		}
	}
}

// writeChange prints c with a summary of the newest retained frame.
func writeChange(w io.Writer, store *framestore.Store, c framestore.Change) error {
	if c.Reset {
		_, err := fmt.Fprintln(w, "reset")
		return err
	}
	line := fmt.Sprintf("+%d -%d len=%d", c.Appended, c.Evicted, c.Len)
	if f, ok := store.Last(); ok {
		a := position.ResolveFrame(f, boxslice.Window{VisibleCount: f.Len()})
		line += fmt.Sprintf(" last=%s %s %d/%d",
			f.Timestamp.UTC().Format(time.RFC3339Nano), f.Direction(), a.Up(), a.Down())
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
