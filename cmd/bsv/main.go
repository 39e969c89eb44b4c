// bsv is a real-time TUI viewer for streaming box-slice data.
//
// It polls a box-slice source (HTTP API or a local SQLite replay database),
// optionally listens on a websocket for pushed frames, and draws each frame
// as a column of up/down boxes joined by their meeting points.
//
// Usage:
//
//	bsv                             # Auto-select source (.bsv/slices.db, else HTTP)
//	bsv --api http://host:8080      # Poll a specific API
//	bsv --db <path>                 # Replay a SQLite database
//	bsv --pair ETH-USD              # Start on a specific pair
//	bsv --view frames               # Start in a specific view
//	bsv --refresh 2s                # Set the poll interval
//	bsv dump --json                 # Fetch once and print frames as JSON
//	bsv render -o chart.png         # Fetch once and paint a PNG
//	bsv tail -n 10                  # Poll and print store changes
//	bsv version                     # Print version and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
	"github.com/daviddao/boxslice_viewer/internal/config"
	"github.com/daviddao/boxslice_viewer/internal/datasource"
	"github.com/daviddao/boxslice_viewer/internal/framestore"
	"github.com/daviddao/boxslice_viewer/internal/geometry"
	"github.com/daviddao/boxslice_viewer/internal/render"
	"github.com/daviddao/boxslice_viewer/internal/render/raster"
	"github.com/daviddao/boxslice_viewer/internal/snapshot"
	"github.com/daviddao/boxslice_viewer/internal/viewport"
)

// Version is set via ldflags at build time (e.g. -X main.Version=v0.1.0).
var Version = "dev"

var (
	cfgFile      string
	dbFlag       string
	apiFlag      string
	streamFlag   string
	pairFlag     string
	sourceFlag   string
	viewFlag     string
	refreshFlag  time.Duration
	retainFlag   int
	visibleFlag  int
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "bsv",
	Short: "Real-time viewer for streaming box-slice data",
	Long: `bsv draws box-slice frames as they arrive: one column per frame, upward
boxes stacked above downward boxes, with a connector tracing where the two
blocks meet from frame to frame.

Sources are tried in this order when --source=auto:
  1. a SQLite replay database (--db, BSV_DB, or .bsv/slices.db up the tree)
  2. the HTTP API (--api, BSV_API_URL)`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/bsv/config.toml)")
	pf.StringVar(&dbFlag, "db", "", "path to a slices.db replay database")
	pf.StringVar(&apiFlag, "api", "", "box-slice API base URL")
	pf.StringVar(&streamFlag, "stream", "", "websocket URL for pushed frames")
	pf.StringVar(&pairFlag, "pair", "", "pair to display")
	pf.StringVar(&sourceFlag, "source", "", "frame source: auto, http or sqlite")
	pf.DurationVar(&refreshFlag, "refresh", 0, "poll interval (default 5s)")
	pf.IntVar(&retainFlag, "retention", 0, "frames kept in memory (default 300)")
	pf.IntVar(&visibleFlag, "visible", 0, "boxes shown per frame (default 10)")
	pf.StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error")
	rootCmd.Flags().StringVar(&viewFlag, "view", "", "start in specific view (chart|frames|detail)")
	rootCmd.SetVersionTemplate("bsv {{.Version}}\n")

	rootCmd.AddCommand(newDumpCmd(), newRenderCmd(), newTailCmd(), newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bsv: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers .env, the config file, the environment and flags.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotenv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbFlag != "" {
		cfg.DB = config.ExpandHome(dbFlag)
		if sourceFlag == "" {
			cfg.Source = config.SourceSQLite
		}
	}
	if apiFlag != "" {
		cfg.APIURL = apiFlag
	}
	if streamFlag != "" {
		cfg.StreamURL = streamFlag
	}
	if pairFlag != "" {
		cfg.Pair = pairFlag
	}
	if sourceFlag != "" {
		cfg.Source = sourceFlag
	}
	if refreshFlag != 0 {
		cfg.PollInterval.Duration = refreshFlag
	}
	if retainFlag != 0 {
		cfg.Retention = retainFlag
	}
	if visibleFlag != 0 {
		cfg.VisibleCount = visibleFlag
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. The TUI owns the terminal, so it logs
// to cfg.LogFile; headless commands log to stderr.
func newLogger(cfg *config.Config, toFile bool) (*slog.Logger, func() error, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if !toFile || cfg.LogFile == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, opts)), f.Close, nil
}

// source is an opened frame source. dbPath is set for SQLite sources so the
// TUI can watch the file.
type source struct {
	fetcher datasource.Fetcher
	name    string
	dbPath  string
	close   func() error
}

// openSource selects a fetcher according to cfg.Source.
func openSource(cfg *config.Config, logger *slog.Logger) (*source, error) {
	openDB := func() (*source, error) {
		s, path, err := datasource.Open(cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		return &source{fetcher: s, name: "sqlite " + filepath.Base(path), dbPath: path, close: s.Close}, nil
	}
	httpSource := func() *source {
		c := datasource.NewHTTPClient(cfg.APIURL, cfg.FetchTimeout.Duration, logger)
		return &source{fetcher: c, name: cfg.APIURL, close: func() error { return nil }}
	}

	switch cfg.Source {
	case config.SourceSQLite:
		return openDB()
	case config.SourceHTTP:
		return httpSource(), nil
	default:
		if _, err := datasource.Discover(cfg.DB); err == nil {
			return openDB()
		}
		return httpSource(), nil
	}
}

// parseViewFlag maps a --view flag string to a viewID.
func parseViewFlag(s string) (viewID, error) {
	switch strings.ToLower(s) {
	case "chart", "c":
		return viewChart, nil
	case "frames", "f":
		return viewFrames, nil
	case "detail", "d":
		return viewDetail, nil
	default:
		return 0, fmt.Errorf("unknown view %q (valid: chart, frames, detail)", s)
	}
}

func runTUI() error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return errors.New("stdout is not a terminal (use `bsv dump --json` for scripted output)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()

	startView := viewChart
	if viewFlag != "" {
		if startView, err = parseViewFlag(viewFlag); err != nil {
			return err
		}
	}

	pairs, err := cfg.Watchlist()
	if err != nil {
		logger.Warn("pairs file ignored", "path", cfg.PairsFile, "err", err)
	}

	src, err := openSource(cfg, logger)
	if err != nil {
		return err
	}
	defer src.close()
	logger.Info("starting", "version", Version, "source", src.name, "pair", cfg.Pair)

	var w *datasource.Watcher
	if src.dbPath != "" {
		w, err = datasource.NewWatcher(src.dbPath, datasource.DefaultDebounce, logger)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		defer w.Close()
	}

	m := newModel(cfg, src, pairs, logger)
	m.activeView = startView
	defer m.close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion())

	// Feed DB change events into the TUI.
	if w != nil {
		go func() {
			for range w.Changes() {
				p.Send(dbChangedMsg{})
			}
		}()
	}

	// Poll on a fixed schedule; the poller drops ticks while a fetch is running.
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go pollTicks(ctx, cfg.PollInterval.Duration, p.Send)

	_, err = p.Run()
	return err
}

// pollTicks sends a pollTickMsg every interval until ctx is done.
func pollTicks(ctx context.Context, every time.Duration, send func(tea.Msg)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send(pollTickMsg{})
		}
	}
}

// --- dump ---

type jsonOutput struct {
	Pair   string      `json:"pair"`
	Source string      `json:"source"`
	Window jsonWindow  `json:"window"`
	Frames []jsonFrame `json:"frames"`
	Stats  jsonStats   `json:"stats"`
}

type jsonWindow struct {
	Offset        int `json:"offset"`
	VisibleCount  int `json:"visible_count"`
	TotalElements int `json:"total_elements"`
}

type jsonFrame struct {
	Timestamp      string              `json:"timestamp"`
	Direction      string              `json:"direction"`
	Boxes          []boxslice.WireBox  `json:"boxes"`
	Up             int                 `json:"up"`
	Down           int                 `json:"down"`
	MeetingPoint   float64             `json:"meeting_point"`
	Representative *jsonRepresentative `json:"representative,omitempty"`
}

type jsonRepresentative struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

type jsonStats struct {
	Frames     int `json:"frames"`
	UpFrames   int `json:"up_frames"`
	DownFrames int `json:"down_frames"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
}

// buildJSONOutput converts a snapshot into the JSON output structure.
func buildJSONOutput(pair, src string, snap *snapshot.DataSnapshot, res framestore.IngestResult) jsonOutput {
	frames := make([]jsonFrame, len(snap.Frames))
	for i, f := range snap.Frames {
		l := snap.Layouts[i]
		jf := jsonFrame{
			Timestamp:    f.Timestamp.UTC().Format(time.RFC3339Nano),
			Direction:    f.Direction().String(),
			Boxes:        boxslice.ToWire(f).Boxes,
			Up:           l.Assignment.Up(),
			Down:         l.Assignment.Down(),
			MeetingPoint: l.MeetingPoint,
		}
		if rep, ok := geometry.Representative(l.Visible); ok {
			jf.Representative = &jsonRepresentative{High: rep.High, Low: rep.Low}
		}
		frames[i] = jf
	}
	return jsonOutput{
		Pair:   pair,
		Source: src,
		Window: jsonWindow{
			Offset:        snap.Window.Offset,
			VisibleCount:  snap.Window.VisibleCount,
			TotalElements: snap.TotalElements,
		},
		Frames: frames,
		Stats: jsonStats{
			Frames:     len(snap.Frames),
			UpFrames:   snap.UpFrames,
			DownFrames: snap.DownFrames,
			Rejected:   res.Rejected,
			Duplicates: res.Duplicates,
		},
	}
}

// fetchOnce loads the most recent frames into a fresh store.
func fetchOnce(cfg *config.Config, logger *slog.Logger) (*framestore.Store, framestore.IngestResult, string, error) {
	src, err := openSource(cfg, logger)
	if err != nil {
		return nil, framestore.IngestResult{}, "", err
	}
	defer src.close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout.Duration)
	defer cancel()
	frames, err := src.fetcher.FetchFrames(ctx, cfg.Pair, time.Time{}, cfg.FetchLimit)
	if err != nil {
		return nil, framestore.IngestResult{}, "", fmt.Errorf("fetch %s: %w", cfg.Pair, err)
	}
	store := framestore.New(cfg.Retention, framestore.WithLogger(logger))
	res := store.Ingest(boxslice.FilterSentinels(frames))
	return store, res, src.name, nil
}

func newDumpCmd() *cobra.Command {
	var (
		asJSON bool
		height float64
		offset int
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Fetch frames once and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, _, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			store, res, name, err := fetchOnce(cfg, logger)
			if err != nil {
				return err
			}
			win := boxslice.Window{Offset: offset, VisibleCount: cfg.VisibleCount}
			snap := snapshot.Build(store, win, height)
			out := buildJSONOutput(cfg.Pair, name, snap, res)

			if !asJSON {
				return writeDumpText(cmd.OutOrStdout(), out)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("json: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().Float64Var(&height, "height", 400, "surface height used for meeting points")
	cmd.Flags().IntVar(&offset, "offset", 0, "element window offset")
	return cmd
}

func writeDumpText(w io.Writer, out jsonOutput) error {
	if _, err := fmt.Fprintf(w, "%s via %s: %d frames (%d up, %d down), window %d+%d of %d\n",
		out.Pair, out.Source, out.Stats.Frames, out.Stats.UpFrames, out.Stats.DownFrames,
		out.Window.Offset, out.Window.VisibleCount, out.Window.TotalElements); err != nil {
		return err
	}
	for _, f := range out.Frames {
		rep := "-"
		if f.Representative != nil {
			rep = fmt.Sprintf("%.2f-%.2f", f.Representative.Low, f.Representative.High)
		}
		if _, err := fmt.Fprintf(w, "%-30s %-5s %3d/%-3d mp=%7.2f  %s\n",
			f.Timestamp, f.Direction, f.Up, f.Down, f.MeetingPoint, rep); err != nil {
			return err
		}
	}
	return nil
}

// --- render ---

func newRenderCmd() *cobra.Command {
	var (
		output        string
		width, height int
		frameWidth    float64
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Fetch frames once and paint the newest ones to a PNG",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, _, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			store, _, _, err := fetchOnce(cfg, logger)
			if err != nil {
				return err
			}

			surface := raster.New(width, height)
			defer surface.Close()
			vp := viewport.New(frameWidth, float64(width), cfg.VisibleCount, render.Handlers{})
			props := render.Props{
				Frames:             store.Frames(),
				PixelHeight:        float64(height),
				PixelWidth:         float64(width),
				VisibleCount:       cfg.VisibleCount,
				SelectedFrameIndex: -1,
			}
			snap := props.Snapshot()
			vp.SetTotal(snap.TotalElements)
			vp.OnFramesArrived(len(snap.Frames))
			lo, hi := vp.VisibleRange()

			mgr := render.NewManager(surface, logger)
			if _, err := mgr.Draw(props.Scene(snap, vp, render.DefaultPalette())); err != nil {
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := surface.EncodePNG(f); err != nil {
				f.Close()
				return fmt.Errorf("encode %s: %w", output, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Info("rendered", "path", output, "frames", hi-lo)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "chart.png", "output PNG path")
	cmd.Flags().IntVar(&width, "width", 1200, "image width in pixels")
	cmd.Flags().IntVar(&height, "height", 600, "image height in pixels")
	cmd.Flags().Float64Var(&frameWidth, "frame-width", 24, "frame column width in pixels")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bsv %s\n", Version)
		},
	}
}
