package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
	"github.com/daviddao/boxslice_viewer/internal/config"
	"github.com/daviddao/boxslice_viewer/internal/datasource"
	"github.com/daviddao/boxslice_viewer/internal/framestore"
	"github.com/daviddao/boxslice_viewer/internal/geometry"
	"github.com/daviddao/boxslice_viewer/internal/render"
	"github.com/daviddao/boxslice_viewer/internal/render/cells"
	"github.com/daviddao/boxslice_viewer/internal/snapshot"
	"github.com/daviddao/boxslice_viewer/internal/viewport"
)

// Rows above the chart: title, tabs, blank line.
const chartTop = 3

// --- Chart engine ---

// chart is the engine state behind the Chart view. uiModel is copied on every
// Update, so everything the render loop reads lives behind this pointer.
type chart struct {
	store   *framestore.Store
	vp      *viewport.Controller
	surface *cells.Surface
	loop    *render.Loop
	palette render.Palette
	snap    *snapshot.DataSnapshot

	selected   int
	selectedAt time.Time
	hover      *geometry.Hover
}

func newChart(store *framestore.Store, frameWidth float64, visible int, continuous bool, logger *slog.Logger) *chart {
	c := &chart{
		store:    store,
		surface:  cells.New(0, 0),
		palette:  render.DefaultPalette(),
		selected: -1,
	}
	c.vp = viewport.New(frameWidth, 0, visible, render.Handlers{
		OnFrameSelect:  c.onSelect,
		OnOffsetChange: c.onOffset,
		OnHover:        c.onHover,
	})
	c.loop = &render.Loop{
		Scheduler:  render.NewScheduler(),
		Manager:    render.NewManager(c.surface, logger),
		Scene:      c.scene,
		Continuous: continuous,
	}
	c.rebuild()
	return c
}

func (c *chart) onSelect(f boxslice.Frame, index int) {
	c.selected = index
	c.selectedAt = f.Timestamp
	c.loop.Scheduler.Request(render.ReasonSelect)
}

func (c *chart) onOffset(int) {
	c.loop.Scheduler.Request(render.ReasonWindow)
}

func (c *chart) onHover(h *geometry.Hover) {
	c.hover = h
	c.loop.Scheduler.Request(render.ReasonPointer)
}

// props describes the chart the way any host surface would.
func (c *chart) props() render.Props {
	w, h := c.surface.Size()
	win := c.vp.Window()
	return render.Props{
		Frames:             c.snap.Frames,
		PixelHeight:        h,
		PixelWidth:         w,
		Offset:             win.Offset,
		VisibleCount:       win.VisibleCount,
		SelectedFrameIndex: c.selected,
	}
}

func (c *chart) scene() render.Scene {
	return c.props().Scene(c.snap, c.vp, c.palette)
}

// rebuild re-derives the snapshot after the store, window or height changed.
// The selection follows its frame by timestamp across evictions.
func (c *chart) rebuild() {
	total := 0
	if f, ok := c.store.Last(); ok {
		total = f.Len()
	}
	c.vp.SetTotal(total)
	c.vp.OnFramesArrived(c.store.Len())
	_, h := c.surface.Size()
	c.snap = snapshot.Build(c.store, c.vp.Window(), h)

	c.selected = -1
	if c.selectedAt.IsZero() {
		return
	}
	for i, f := range c.snap.Frames {
		if f.Timestamp.Equal(c.selectedAt) {
			c.selected = i
			return
		}
	}
}

// ingest feeds a batch into the store and reports whether anything changed.
func (c *chart) ingest(frames []boxslice.Frame) framestore.IngestResult {
	res := c.store.Ingest(frames)
	if res.Changed() {
		c.rebuild()
		c.loop.Scheduler.Request(render.ReasonData)
	}
	return res
}

// reset drops every frame, e.g. when switching pairs.
func (c *chart) reset() {
	c.store.Reset()
	c.selectedAt = time.Time{}
	c.vp.Leave()
	c.vp.ScrollToEnd()
	c.rebuild()
	c.loop.Scheduler.Request(render.ReasonData)
}

func (c *chart) resize(w, h int) {
	c.surface.Resize(w, h)
	c.vp.SetViewWidth(float64(w))
	c.rebuild()
	c.loop.Scheduler.Request(render.ReasonResize)
}

func (c *chart) scroll(dx float64) {
	if c.vp.ScrollBy(dx) {
		c.loop.Scheduler.Request(render.ReasonScroll)
	}
}

func (c *chart) follow() {
	c.vp.ScrollToEnd()
	c.loop.Scheduler.Request(render.ReasonScroll)
}

// shiftWindow moves the element window up (+1) or down (-1).
func (c *chart) shiftWindow(dir int) {
	var moved bool
	if dir > 0 {
		moved = c.vp.Increment()
	} else {
		moved = c.vp.Decrement()
	}
	if moved {
		c.rebuild()
	}
}

// pointer handles a mouse position relative to the chart's top-left cell.
func (c *chart) pointer(x, y float64) {
	c.vp.Hover(x, y, c.snap)
}

func (c *chart) click(x, y float64) bool {
	if _, h := c.surface.Size(); y < 0 || y > h {
		return false
	}
	_, ok := c.vp.Select(x, c.snap)
	return ok
}

// selectIndex selects frame i as if it had been clicked.
func (c *chart) selectIndex(i int) bool {
	if i < 0 || i >= len(c.snap.Frames) {
		return false
	}
	c.onSelect(c.snap.Frames[i], i)
	return true
}

// selectCurrent selects the hovered frame, or the newest visible one.
func (c *chart) selectCurrent() bool {
	if c.hover != nil {
		return c.selectIndex(c.hover.FrameIndex)
	}
	_, hi := c.vp.VisibleRange()
	return c.selectIndex(hi - 1)
}

// --- Stream feed ---

// feed runs a websocket stream for the current pair and hands batches to the
// UI through ch.
type feed struct {
	url    string
	ch     chan streamBatchMsg
	cancel context.CancelFunc
	logger *slog.Logger
}

func newFeed(url string, logger *slog.Logger) *feed {
	return &feed{url: url, ch: make(chan streamBatchMsg, 16), logger: logger}
}

// start (re)subscribes for pair, stopping any previous subscription.
func (f *feed) start(pair string) {
	f.stop()
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	s := datasource.NewStream(f.url, pair, f.logger)
	go func() {
		err := s.Run(ctx, func(frames []boxslice.Frame) {
			select {
			case f.ch <- streamBatchMsg{pair: pair, frames: frames}:
			case <-ctx.Done():
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			f.logger.Warn("stream stopped", "pair", pair, "err", err)
		}
	}()
}

func (f *feed) stop() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func waitStream(ch <-chan streamBatchMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// --- Messages ---

type dbChangedMsg struct{}

type pollTickMsg struct{}

type pollResultMsg struct {
	datasource.Result
}

type repaintTickMsg struct{}

type streamBatchMsg struct {
	pair   string
	frames []boxslice.Frame
}

// --- Key bindings ---

type keyMap struct {
	Quit    key.Binding
	Tab     key.Binding
	Refresh key.Binding
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Follow  key.Binding
	Pair    key.Binding
	Help    key.Binding
	Enter   key.Binding
	Esc     key.Binding
}

var keys = keyMap{
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Tab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/up", "window up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/down", "window down")),
	Left:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("h/left", "older")),
	Right:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("l/right", "newer")),
	Follow:  key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "follow newest")),
	Pair:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "next pair")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select frame")),
	Esc:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
}

// viewKeys maps single keys to views for fast navigation.
var viewKeys = map[string]viewID{
	"c": viewChart,
	"f": viewFrames,
	"d": viewDetail,
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Refresh, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Left, k.Right, k.Up, k.Down},
		{k.Enter, k.Esc, k.Follow, k.Pair},
		{k.Tab, k.Refresh, k.Help, k.Quit},
	}
}

// helpRows is how many more lines the full help takes than the status bar.
const helpRows = 3

// contextHelp returns help text appropriate for the current view.
func contextHelp(v viewID) string {
	switch v {
	case viewChart:
		return "h/l: scroll | j/k: window | enter: select | G: follow | p: pair | c/f/d: views | ?: help | q: quit"
	case viewFrames:
		return "j/k: move | enter: open frame | c/f/d: views | tab: next | ?: help | q: quit"
	case viewDetail:
		return "j/k: scroll | esc: back | c/f/d: views | tab: next | ?: help | q: quit"
	default:
		return "c/f/d: views | tab: next | ?: help | q: quit"
	}
}

// --- Views ---

type viewID int

const (
	viewChart viewID = iota
	viewFrames
	viewDetail
	viewCount
)

func (v viewID) String() string {
	switch v {
	case viewChart:
		return "Chart"
	case viewFrames:
		return "Frames"
	case viewDetail:
		return "Detail"
	}
	return "?"
}

// --- Model ---

type uiModel struct {
	cfg    *config.Config
	logger *slog.Logger
	source string

	poller *datasource.Poller
	chart  *chart
	feed   *feed // nil without a stream URL

	pairs   []config.Pair
	pairIdx int

	activeView  viewID
	prevView    viewID
	width       int
	height      int
	scrollPos   int
	frameCursor int // Frames view row, 0 = newest

	help     help.Model
	showHelp bool

	lastRefresh time.Time
	lastPoll    time.Duration
	lastErr     error
}

func newModel(cfg *config.Config, src *source, pairs []config.Pair, logger *slog.Logger) uiModel {
	if len(pairs) == 0 {
		pairs = []config.Pair{{ID: cfg.Pair}}
	}
	store := framestore.New(cfg.Retention, framestore.WithLogger(logger))
	m := uiModel{
		cfg:    cfg,
		logger: logger,
		source: src.name,
		poller: datasource.NewPoller(src.fetcher, cfg.FetchTimeout.Duration, logger),
		chart:  newChart(store, float64(cfg.FrameWidth), cfg.VisibleCount, cfg.Continuous, logger),
		pairs:  pairs,
		help:   help.New(),
	}
	m.help.ShowAll = true
	if cfg.StreamURL != "" {
		m.feed = newFeed(cfg.StreamURL, logger)
	}
	return m
}

func (m uiModel) pair() config.Pair {
	return m.pairs[m.pairIdx]
}

// close cancels in-flight fetches and the stream.
func (m uiModel) close() {
	m.poller.Close()
	if m.feed != nil {
		m.feed.stop()
	}
}

func (m uiModel) Init() tea.Cmd {
	cmds := []tea.Cmd{repaintEvery(m.cfg.RepaintInterval.Duration), m.startPoll()}
	if m.feed != nil {
		m.feed.start(m.pair().ID)
		cmds = append(cmds, waitStream(m.feed.ch))
	}
	return tea.Batch(cmds...)
}

func repaintEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return repaintTickMsg{}
	})
}

// startPoll fetches frames newer than the store's cursor. It returns nil when
// a poll is already running.
func (m uiModel) startPoll() tea.Cmd {
	gen, ok := m.poller.Begin()
	if !ok {
		return nil
	}
	p := m.poller
	pair := m.pair().ID
	since := m.chart.store.Cursor()
	limit := m.cfg.FetchLimit
	return func() tea.Msg {
		return pollResultMsg{p.Fetch(gen, pair, since, limit)}
	}
}

// chartSize is the cell surface size for the current terminal.
func (m uiModel) chartSize() (int, int) {
	h := m.height - chartTop - 2 // hover line + status bar
	if m.showHelp {
		h -= helpRows
	}
	return max(m.width, 0), max(h, 1)
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if v, ok := viewKeys[msg.String()]; ok {
			m.switchView(v)
			return m, nil
		}

		switch {
		case key.Matches(msg, keys.Quit):
			m.close()
			return m, tea.Quit

		case key.Matches(msg, keys.Tab):
			m.switchView((m.activeView + 1) % viewCount)

		case key.Matches(msg, keys.Esc):
			if m.activeView == viewDetail {
				m.switchView(m.prevView)
			}

		case key.Matches(msg, keys.Enter):
			switch m.activeView {
			case viewChart:
				if m.chart.selectCurrent() {
					m.switchView(viewDetail)
				}
			case viewFrames:
				n := len(m.chart.snap.Frames)
				if m.chart.selectIndex(n - 1 - m.frameCursor) {
					m.switchView(viewDetail)
				}
			}

		case key.Matches(msg, keys.Refresh):
			return m, m.startPoll()

		case key.Matches(msg, keys.Pair):
			if len(m.pairs) < 2 {
				return m, nil
			}
			m.pairIdx = (m.pairIdx + 1) % len(m.pairs)
			m.poller.Invalidate()
			m.chart.reset()
			m.lastErr = nil
			m.lastRefresh = time.Time{}
			m.frameCursor = 0
			m.logger.Info("switched pair", "pair", m.pair().ID)
			if m.feed != nil {
				m.feed.start(m.pair().ID)
			}
			return m, m.startPoll()

		case key.Matches(msg, keys.Follow):
			m.chart.follow()

		case key.Matches(msg, keys.Left):
			if m.activeView == viewChart {
				m.chart.scroll(-m.chart.vp.FrameWidth())
			}

		case key.Matches(msg, keys.Right):
			if m.activeView == viewChart {
				m.chart.scroll(m.chart.vp.FrameWidth())
			}

		case key.Matches(msg, keys.Up):
			switch m.activeView {
			case viewChart:
				m.chart.shiftWindow(1)
			case viewFrames:
				if m.frameCursor > 0 {
					m.frameCursor--
				}
			default:
				if m.scrollPos > 0 {
					m.scrollPos--
				}
			}

		case key.Matches(msg, keys.Down):
			switch m.activeView {
			case viewChart:
				m.chart.shiftWindow(-1)
			case viewFrames:
				if m.frameCursor < len(m.chart.snap.Frames)-1 {
					m.frameCursor++
				}
			default:
				// View() clamps if we overshoot.
				if m.scrollPos < m.chart.snap.TotalElements+10 {
					m.scrollPos++
				}
			}

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
			m.chart.resize(m.chartSize())
		}

	case tea.MouseMsg:
		if m.activeView != viewChart {
			return m, nil
		}
		x := float64(msg.X) + 0.5
		y := float64(msg.Y-chartTop) + 0.5
		fw := m.chart.vp.FrameWidth()
		switch {
		case msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelLeft:
			m.chart.scroll(-fw)
		case msg.Button == tea.MouseButtonWheelDown || msg.Button == tea.MouseButtonWheelRight:
			m.chart.scroll(fw)
		case msg.Action == tea.MouseActionMotion:
			m.chart.pointer(x, y)
		case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
			m.chart.click(x, y)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.chart.resize(m.chartSize())

	case pollTickMsg, dbChangedMsg:
		return m, m.startPoll()

	case pollResultMsg:
		if !m.poller.End(msg.Result) || msg.Pair != m.pair().ID {
			// Superseded by a pair switch; fetch the current pair now.
			return m, m.startPoll()
		}
		m.lastPoll = msg.Took
		if msg.Err != nil {
			// Keep showing what we have; the next tick retries.
			m.lastErr = msg.Err
			m.logger.Warn("poll failed", "pair", msg.Pair, "err", msg.Err)
			return m, nil
		}
		m.lastErr = nil
		m.lastRefresh = time.Now()
		res := m.chart.ingest(msg.Frames)
		m.logger.Debug("poll", "pair", msg.Pair, "fetched", len(msg.Frames),
			"appended", res.Appended, "duplicates", res.Duplicates, "rejected", res.Rejected, "took", msg.Took)

	case streamBatchMsg:
		if msg.pair == m.pair().ID {
			m.lastRefresh = time.Now()
			m.chart.ingest(msg.frames)
		}
		if m.feed != nil {
			return m, waitStream(m.feed.ch)
		}

	case repaintTickMsg:
		// The manager logs failed passes; the next tick retries them.
		m.chart.loop.Tick()
		return m, repaintEvery(m.cfg.RepaintInterval.Duration)
	}
	return m, nil
}

func (m *uiModel) switchView(v viewID) {
	if v == m.activeView {
		return
	}
	if v == viewDetail {
		m.prevView = m.activeView
	}
	if m.activeView == viewChart {
		m.chart.vp.Leave()
	}
	m.activeView = v
	m.scrollPos = 0
}
