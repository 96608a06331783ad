package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Wait once the manager has been stopped.
var ErrStopped = errors.New("snapshot: manager stopped")

// BuildFunc produces the snapshot for generation gen. It must honour ctx:
// a superseded build is cancelled and its result is dropped either way.
type BuildFunc func(ctx context.Context, gen uint64) (*Snapshot, error)

// Failure records a rebuild that could not be published.
type Failure struct {
	Generation uint64
	At         time.Time
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("generation %d: %v", f.Generation, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Manager owns the published snapshot. Readers call Current and never block;
// writers call Request, which coalesces bursts of changes into one rebuild.
//
// Every request bumps the target generation. A build publishes only if its
// generation is still the target when it finishes, so a slow build can never
// overwrite the result of a newer one.
type Manager struct {
	build    BuildFunc
	debounce time.Duration
	logger   *slog.Logger

	current atomic.Pointer[Snapshot]

	// pipeline serializes builds so at most one runs at a time.
	pipeline sync.Mutex
	running  sync.WaitGroup

	mu       sync.Mutex
	target   uint64
	settled  uint64
	changed  chan struct{}
	cancel   context.CancelFunc
	timer    *time.Timer
	failure  *Failure
	stopped  bool
	rootCtx  context.Context
	stopRoot context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithDebounce sets the quiet period between the last Request and the start
// of the rebuild. Zero starts rebuilds immediately.
func WithDebounce(d time.Duration) Option {
	return func(m *Manager) { m.debounce = d }
}

// WithLogger sets the logger for rebuild outcomes.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a manager serving Empty() until the first build
// publishes.
func NewManager(build BuildFunc, opts ...Option) *Manager {
	m := &Manager{
		build:   build,
		logger:  slog.New(slog.DiscardHandler),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.rootCtx, m.stopRoot = context.WithCancel(context.Background())
	m.current.Store(Empty())
	return m
}

// Current returns the latest published snapshot.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// LastFailure returns the most recent failed rebuild, or nil when the latest
// settled build succeeded.
func (m *Manager) LastFailure() *Failure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

// Target returns the most recently requested generation.
func (m *Manager) Target() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// Request schedules a rebuild after the debounce period and returns its
// generation. Any in-flight build is cancelled. After Stop it returns the
// last generation without scheduling anything.
func (m *Manager) Request() uint64 {
	return m.request(m.debounce)
}

// RequestNow schedules a rebuild without debouncing.
func (m *Manager) RequestNow() uint64 {
	return m.request(0)
}

func (m *Manager) request(delay time.Duration) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return m.target
	}

	m.target++
	gen := m.target
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	if delay <= 0 {
		m.startLocked(gen)
	} else {
		m.timer = time.AfterFunc(delay, func() { m.fire(gen) })
	}
	return gen
}

func (m *Manager) fire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || gen != m.target {
		return
	}
	m.timer = nil
	m.startLocked(gen)
}

func (m *Manager) startLocked(gen uint64) {
	ctx, cancel := context.WithCancel(m.rootCtx)
	m.cancel = cancel
	m.running.Add(1)
	go func() {
		defer m.running.Done()
		defer cancel()
		m.run(ctx, gen)
	}()
}

func (m *Manager) run(ctx context.Context, gen uint64) {
	m.pipeline.Lock()
	defer m.pipeline.Unlock()

	if ctx.Err() != nil {
		m.logger.Debug("rebuild skipped", slog.Uint64("generation", gen))
		return
	}

	start := time.Now()
	snap, err := m.build(ctx, gen)
	m.finish(ctx, gen, snap, err, time.Since(start))
}

func (m *Manager) finish(ctx context.Context, gen uint64, snap *Snapshot, err error, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || gen != m.target || ctx.Err() != nil {
		m.logger.Debug("rebuild discarded",
			slog.Uint64("generation", gen),
			slog.Uint64("target", m.target),
			slog.Duration("duration", elapsed),
		)
		return
	}

	if err == nil && snap == nil {
		err = errors.New("build returned no snapshot")
	}
	if err != nil {
		m.failure = &Failure{Generation: gen, At: time.Now(), Err: err}
		m.logger.Warn("rebuild failed, keeping previous snapshot",
			slog.Uint64("generation", gen),
			slog.Uint64("serving", m.current.Load().Generation),
			slog.Any("err", err),
		)
		m.settleLocked(gen)
		return
	}

	snap.Generation = gen
	m.current.Store(snap)
	m.failure = nil
	m.logger.Info("snapshot published",
		slog.Uint64("generation", gen),
		slog.Int("files", len(snap.Model.Files())),
		slog.Int("symbols", snap.Model.Len()),
		slog.Int("findings", snap.Findings.Len()),
		slog.Duration("duration", elapsed),
	)
	m.settleLocked(gen)
}

func (m *Manager) settleLocked(gen uint64) {
	m.settled = gen
	close(m.changed)
	m.changed = make(chan struct{})
}

// Wait blocks until generation gen, or a later one, has settled (published or
// failed). It returns the snapshot being served at that point and the
// failure when the settling build failed.
func (m *Manager) Wait(ctx context.Context, gen uint64) (*Snapshot, error) {
	for {
		m.mu.Lock()
		settled, ch, stopped, failure := m.settled, m.changed, m.stopped, m.failure
		m.mu.Unlock()

		if settled >= gen {
			if failure != nil && failure.Generation == settled {
				return m.Current(), failure
			}
			return m.Current(), nil
		}
		if stopped {
			return m.Current(), ErrStopped
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Rebuild requests an immediate rebuild and waits for it to settle.
func (m *Manager) Rebuild(ctx context.Context) (*Snapshot, error) {
	return m.Wait(ctx, m.RequestNow())
}

// Stop abandons any pending or in-flight build and waits for the build
// goroutine to exit. The current snapshot stays readable. Stop is idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.stopRoot()
	m.cancel = nil
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	m.running.Wait()
}
