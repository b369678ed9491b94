package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the cached connectivity signal.
type State int

const (
	// Offline means submissions should be buffered.
	Offline State = iota
	// Online means submissions may be sent directly.
	Online
)

// String returns "online" or "offline".
func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// StateOf maps a boolean signal to a State.
func StateOf(online bool) State {
	if online {
		return Online
	}
	return Offline
}

// Transition is broadcast to subscribers when the state actually changes.
type Transition struct {
	From State
	To   State

	// Seq increases by one per transition, starting at 1.
	Seq int64

	At time.Time
}

// Monitor holds the current connectivity state.
//
// Thread-safety: All methods are safe for concurrent use.
type Monitor struct {
	mu     sync.RWMutex
	state  State
	seq    int64
	subs   map[int]chan Transition
	nextID int

	prober Prober
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithProber sets the prober used by Probe.
func WithProber(p Prober) Option {
	return func(m *Monitor) {
		m.prober = p
	}
}

// WithNow overrides the wall clock used to stamp transitions.
func WithNow(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// NewMonitor creates a monitor seeded with the given initial signal.
func NewMonitor(initialOnline bool, opts ...Option) *Monitor {
	m := &Monitor{
		state:  StateOf(initialOnline),
		subs:   make(map[int]chan Transition),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the cached state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Online reports whether the cached state is Online.
func (m *Monitor) Online() bool {
	return m.State() == Online
}

// Seq returns the sequence number of the last transition, 0 if none.
func (m *Monitor) Seq() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq
}

// SetOnline applies a host connectivity event.
//
// Returns the transition and true if the state changed. Repeated events with
// the same value are absorbed and not broadcast. A subscriber whose buffer is
// full misses the transition; it can always read State().
func (m *Monitor) SetOnline(online bool) (Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	to := StateOf(online)
	if to == m.state {
		return Transition{}, false
	}

	m.seq++
	tr := Transition{From: m.state, To: to, Seq: m.seq, At: m.now().UTC()}
	m.state = to

	for id, ch := range m.subs {
		select {
		case ch <- tr:
		default:
			m.logger.Warn("connectivity subscriber lagging, transition dropped",
				"subscriber", id, "seq", tr.Seq, "to", tr.To.String())
		}
	}

	m.logger.Info("connectivity changed", "from", tr.From.String(), "to", tr.To.String(), "seq", tr.Seq)
	return tr, true
}

// Subscribe registers for transitions. The returned cancel function
// unregisters and closes the channel; it is safe to call more than once.
func (m *Monitor) Subscribe(buffer int) (<-chan Transition, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Transition, buffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Probe checks reachability directly, independent of the cached signal.
//
// Without a prober the cached signal is returned.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.prober == nil {
		return m.Online()
	}
	if err := m.prober.Probe(ctx); err != nil {
		m.logger.Debug("probe failed", "error", err)
		return false
	}
	return true
}
