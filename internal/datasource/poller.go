package datasource

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
)

// DefaultTimeout bounds a single poll.
const DefaultTimeout = 10 * time.Second

// Result is the outcome of one poll.
type Result struct {
	Gen    uint64
	Pair   string
	Frames []boxslice.Frame
	Err    error
	Took   time.Duration
}

// Poller issues at most one fetch at a time and tells the caller whether a
// finished fetch may still be applied.
//
// The caller runs Begin and End on its own loop and Fetch wherever it likes:
//
//	gen, ok := p.Begin()   // false while a fetch is in flight
//	res := p.Fetch(gen, pair, since, limit)
//	if p.End(res) { store.Ingest(res.Frames) }
type Poller struct {
	fetcher Fetcher
	timeout time.Duration
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	next     uint64
	inflight uint64 // 0 when idle
	stale    uint64 // results with Gen <= stale are discarded
	stop     context.CancelFunc
	closed   bool
}

// NewPoller wraps f. A non-positive timeout uses DefaultTimeout.
func NewPoller(f Fetcher, timeout time.Duration, logger *slog.Logger) *Poller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{fetcher: f, timeout: timeout, logger: logger, ctx: ctx, cancel: cancel}
}

// Begin reserves the next poll. It refuses while a poll is in flight or after
// Close.
func (p *Poller) Begin() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.inflight != 0 {
		return 0, false
	}
	p.next++
	p.inflight = p.next
	return p.next, true
}

// InFlight reports whether a poll has begun and not yet ended.
func (p *Poller) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight != 0
}

// Fetch runs the fetch reserved by Begin. It blocks for at most the timeout.
func (p *Poller) Fetch(gen uint64, pairID string, since time.Time, limit int) Result {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	if gen == p.inflight {
		p.stop = cancel
	}
	p.mu.Unlock()

	start := time.Now()
	frames, err := p.fetcher.FetchFrames(ctx, pairID, since, limit)
	return Result{Gen: gen, Pair: pairID, Frames: frames, Err: err, Took: time.Since(start)}
}

// End releases the in-flight slot and reports whether r may be applied.
// Results are refused after Close or after Invalidate superseded them.
func (p *Poller) End(r Result) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.Gen == p.inflight {
		p.inflight = 0
		p.stop = nil
	}
	if p.closed || r.Gen <= p.stale {
		p.logger.Debug("discarding stale poll", "gen", r.Gen, "pair", r.Pair)
		return false
	}
	return true
}

// Invalidate marks every poll issued so far as stale and cancels the one in
// flight. Used when the pair changes.
func (p *Poller) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stale = p.next
	if p.stop != nil {
		p.stop()
	}
}

// Close cancels any in-flight poll and refuses further polls and results.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
}

// Poll runs Begin, Fetch and End synchronously. ok is false if the poll was
// refused or its result is stale.
func (p *Poller) Poll(pairID string, since time.Time, limit int) (Result, bool) {
	gen, ok := p.Begin()
	if !ok {
		return Result{}, false
	}
	r := p.Fetch(gen, pairID, since, limit)
	return r, p.End(r)
}
