package render

// Reason says why a repaint was requested.
type Reason int

const (
	ReasonData Reason = iota
	ReasonScroll
	ReasonWindow
	ReasonPointer
	ReasonResize
	ReasonSelect
)

func (r Reason) String() string {
	switch r {
	case ReasonData:
		return "data"
	case ReasonScroll:
		return "scroll"
	case ReasonWindow:
		return "window"
	case ReasonPointer:
		return "pointer"
	case ReasonResize:
		return "resize"
	case ReasonSelect:
		return "select"
	}
	return "?"
}

// Scheduler is a coalescing repaint request queue. Any number of requests
// between two ticks collapse into one drain.
type Scheduler struct {
	pending []Reason
	seen    map[Reason]bool
}

// NewScheduler returns an empty queue.
func NewScheduler() *Scheduler {
	return &Scheduler{seen: make(map[Reason]bool)}
}

// Request enqueues a repaint. Repeated reasons are coalesced.
func (s *Scheduler) Request(r Reason) {
	if s.seen[r] {
		return
	}
	s.seen[r] = true
	s.pending = append(s.pending, r)
}

// Pending reports whether a repaint is queued.
func (s *Scheduler) Pending() bool { return len(s.pending) > 0 }

// Drain empties the queue and returns the reasons in request order.
func (s *Scheduler) Drain() []Reason {
	out := s.pending
	s.pending = nil
	clear(s.seen)
	return out
}

// Loop ties a scheduler to a manager. Tick runs once per display refresh.
type Loop struct {
	Scheduler *Scheduler
	Manager   *Manager
	Scene     func() Scene

	// Continuous draws on every tick even when nothing was requested, so
	// layout changes nobody reported are still picked up by the hash check.
	Continuous bool
}

// Tick drains the queue and draws when requested or in continuous mode.
func (l *Loop) Tick() (bool, error) {
	reasons := l.Scheduler.Drain()
	if len(reasons) == 0 && !l.Continuous {
		return false, nil
	}
	return l.Manager.Draw(l.Scene())
}
