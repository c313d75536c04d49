// Package poll schedules periodic background fetches of gateway
// resources (balance, node status, GPU inventory, system stats) and
// publishes the results on a single updates channel.
//
// Every resource runs on its own goroutine with its own ticker, so the
// failure, latency or cadence of one resource never affects another.
// Fetches run synchronously inside the resource's goroutine: a slow
// fetch delays only that resource's next tick, and two fetches of the
// same resource can never overlap.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"a4achat/internal/logging"
)

// Fetch loads one snapshot of a resource. A non-nil error publishes an
// unavailable update instead of a value; the schedule keeps running.
type Fetch func(ctx context.Context) (any, error)

// Update is one poll result. Value is nil when Err is set.
type Update struct {
	Resource string
	Value    any
	Err      error
	At       time.Time
}

type resource struct {
	name       string
	fetch      Fetch
	interval   time.Duration
	intervalCh chan time.Duration
}

// Set is a group of polled resources sharing one updates channel.
type Set struct {
	mu        sync.Mutex
	resources map[string]*resource
	updates   chan Update
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
	stopped   bool
}

func NewSet() *Set {
	return &Set{
		resources: make(map[string]*resource),
		updates:   make(chan Update, 64),
	}
}

// Updates is the shared result channel. It closes after Stop returns.
func (s *Set) Updates() <-chan Update { return s.updates }

// Add registers a resource under name with its polling cadence. All
// resources must be registered before Start.
func (s *Set) Add(name string, every time.Duration, fetch Fetch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("poll set already started")
	}
	if _, dup := s.resources[name]; dup {
		return fmt.Errorf("resource %q already registered", name)
	}
	if every <= 0 {
		return fmt.Errorf("resource %q: interval must be positive", name)
	}
	s.resources[name] = &resource{
		name:       name,
		fetch:      fetch,
		interval:   every,
		intervalCh: make(chan time.Duration, 1),
	}
	return nil
}

// Start launches one schedule per registered resource. Each resource
// fetches once immediately and then on its own cadence. Cancelling ctx
// tears the schedules down the same way Stop does.
func (s *Set) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("poll set already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, r := range s.resources {
		s.wg.Add(1)
		go s.run(ctx, r)
	}
	logging.Poll("started %d resource schedules", len(s.resources))
	return nil
}

// SetInterval changes a resource's cadence at runtime. The change
// applies at the resource's next scheduling decision; a fetch already
// in flight is never abandoned. Unknown names and non-positive
// intervals are ignored.
func (s *Set) SetInterval(name string, every time.Duration) {
	s.mu.Lock()
	r, ok := s.resources[name]
	s.mu.Unlock()
	if !ok || every <= 0 {
		return
	}

	// Keep only the newest pending change. Single writer (the UI), so
	// the drain/send pair cannot interleave with another writer.
	select {
	case r.intervalCh <- every:
	default:
		select {
		case <-r.intervalCh:
		default:
		}
		select {
		case r.intervalCh <- every:
		default:
		}
	}
}

// Stop cancels every schedule and waits for the workers to finish,
// then closes the updates channel. Safe to call more than once.
func (s *Set) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	close(s.updates)
	logging.Poll("stopped")
}

func (s *Set) run(ctx context.Context, r *resource) {
	defer s.wg.Done()

	s.poll(ctx, r)

	interval := r.interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-r.intervalCh:
			if d != interval {
				logging.PollDebug("%s cadence %v -> %v", r.name, interval, d)
				interval = d
				ticker.Reset(d)
			}
		case <-ticker.C:
			s.poll(ctx, r)
		}
	}
}

func (s *Set) poll(ctx context.Context, r *resource) {
	value, err := r.fetch(ctx)
	if ctx.Err() != nil {
		return
	}

	u := Update{Resource: r.name, At: time.Now(), Err: err}
	if err == nil {
		u.Value = value
	} else {
		logging.PollDebug("%s unavailable: %v", r.name, err)
	}

	// Updates are periodic samples; when the consumer lags, dropping
	// this one loses nothing a later sample will not replace.
	select {
	case s.updates <- u:
	default:
		logging.PollDebug("dropping %s update, consumer lagging", r.name)
	}
}
