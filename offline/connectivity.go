package offline

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Signal reports connectivity and notifies subscribers of transitions.
// Listeners receive the new state in subscription order; unsubscribe is
// safe to call twice.
type Signal interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// broadcaster fans transitions out to subscribers.
type broadcaster struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]func(bool)
}

func (b *broadcaster) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

func (b *broadcaster) Subscribe(fn func(bool)) func() {
	b.mu.Lock()
	if b.listeners == nil {
		b.listeners = make(map[int]func(bool))
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// set records the state and, on a change, calls listeners in the caller's
// goroutine. It reports whether the state changed.
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	if b.online == online {
		b.mu.Unlock()
		return false
	}
	b.online = online
	fns := make([]func(bool), 0, len(b.listeners))
	for _, id := range slices.Sorted(maps.Keys(b.listeners)) {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
	return true
}

// Switch is a Signal driven by the host, e.g. an OS network event or a test.
type Switch struct {
	broadcaster
}

// NewSwitch returns a Switch in the given initial state.
func NewSwitch(online bool) *Switch {
	s := &Switch{}
	s.online = online
	return s
}

// Set changes the state; listeners run synchronously before Set returns.
func (s *Switch) Set(online bool) {
	s.set(online)
}

// Monitor is a Signal that probes the server periodically.
type Monitor struct {
	broadcaster
	probe    func(ctx context.Context) error
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
}

// NewMonitor returns a Monitor that calls probe every interval. It starts
// offline until the first successful probe.
func NewMonitor(probe func(ctx context.Context) error, interval time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  3 * time.Second,
		log:      log.With().Str("component", "monitor").Logger(),
	}
}

// Check probes once and updates the state.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.probe(ctx)
	cancel()

	online := err == nil
	if m.set(online) {
		if online {
			m.log.Info().Msg("switched to online mode")
		} else {
			m.log.Info().Err(err).Msg("switched to offline mode")
		}
	}
	return online
}

// Run probes immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
