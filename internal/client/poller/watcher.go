// Package poller follows the readings of an ACTIVE device reading session.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

const (
	// DefaultInterval is the fixed polling period.
	DefaultInterval = 2 * time.Second
	defaultTick     = time.Second
)

// Source returns the full current reading set of a device session.
type Source interface {
	SessionReadings(ctx context.Context, sessionID string) (*models.ReadingsSnapshot, error)
}

// StopReason tells why a watcher stopped.
type StopReason string

const (
	StopNone     StopReason = ""
	StopTerminal StopReason = "terminal_status"
	StopExpired  StopReason = "expired"
	StopCanceled StopReason = "canceled"
)

// State is a consistent view of what the watcher knows.
type State struct {
	SessionID  string
	Status     models.DeviceSessionStatus
	Readings   []models.SessionReading
	ExpiresAt  time.Time
	Remaining  time.Duration
	LastPollAt time.Time
	// Stale is set while the last poll failed.
	Stale  bool
	Reason StopReason
}

// Options configures a Watcher.
type Options struct {
	Interval time.Duration
	// Tick is the countdown resolution.
	Tick   time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

// Watcher runs a poll task and an expiry countdown for one session. Both
// observe the same cancellation, which fires once when the session leaves
// ACTIVE, its time runs out, or Stop is called.
type Watcher struct {
	src      Source
	interval time.Duration
	tick     time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	state   State
	cancel  context.CancelFunc
	started bool

	updates chan State
	done    chan struct{}
}

// New prepares a watcher for session. Nothing runs until Start.
func New(src Source, session models.DeviceReadingSession, opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Watcher{
		src:      src,
		interval: opts.Interval,
		tick:     opts.Tick,
		logger:   opts.Logger.With(zap.String("session_id", session.ID)),
		now:      opts.Now,
		state: State{
			SessionID: session.ID,
			Status:    session.Status,
			ExpiresAt: session.ExpiresAt(),
			Readings:  []models.SessionReading{},
		},
		updates: make(chan State, 1),
		done:    make(chan struct{}),
	}
}

// Start launches both tasks. It is a no-op on a started watcher.
func (w *Watcher) Start(parent context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true

	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.pollLoop(gctx) })
	g.Go(func() error { return w.countdownLoop(gctx) })

	go func() {
		_ = g.Wait()
		cancel()
		w.finish(StopCanceled)
		close(w.updates)
		close(w.done)
	}()
}

// Stop cancels both tasks and waits for them. It may be called any number
// of times, before or after Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.started = true
		w.state.Reason = StopCanceled
		close(w.updates)
		close(w.done)
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-w.done
}

// Done is closed once both tasks have returned.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Updates delivers the latest state after every change. Intermediate states
// are dropped for slow readers; the channel is closed when the watcher stops.
func (w *Watcher) Updates() <-chan State { return w.updates }

// State returns a copy of the current state.
func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.copyState()
}

func (w *Watcher) copyState() State {
	s := w.state
	s.Readings = append([]models.SessionReading(nil), w.state.Readings...)
	return s
}

func (w *Watcher) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if w.pollOnce(ctx) {
			w.stop(StopTerminal)
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// pollOnce reports whether the session is no longer ACTIVE.
func (w *Watcher) pollOnce(ctx context.Context) bool {
	snapshot, err := w.src.SessionReadings(ctx, w.State().SessionID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		w.logger.Warn("poll failed", zap.Error(err))
		w.update(func(s *State) { s.Stale = true })
		return false
	}

	terminal := snapshot.Status != models.DeviceActive
	w.update(func(s *State) {
		s.Readings = append([]models.SessionReading(nil), snapshot.Readings...)
		s.Status = snapshot.Status
		if !snapshot.ExpiresAt.IsZero() {
			s.ExpiresAt = snapshot.ExpiresAt
		}
		s.LastPollAt = w.now()
		s.Stale = false
	})
	return terminal
}

func (w *Watcher) countdownLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		if w.countdownOnce() {
			w.stop(StopExpired)
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// countdownOnce reports whether the session expired. Expiry is derived from
// the local clock alone.
func (w *Watcher) countdownOnce() bool {
	now := w.now()
	expired := false
	w.update(func(s *State) {
		s.Remaining = s.ExpiresAt.Sub(now)
		if s.Remaining <= 0 {
			s.Remaining = 0
			if s.Status == models.DeviceActive {
				s.Status = models.DeviceExpired
			}
			expired = true
		}
	})
	return expired
}

func (w *Watcher) stop(reason StopReason) {
	w.finish(reason)
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// finish records the first stop reason only.
func (w *Watcher) finish(reason StopReason) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Reason == StopNone {
		w.state.Reason = reason
		w.logger.Info("watcher stopped", zap.String("reason", string(reason)), zap.String("status", string(w.state.Status)))
	}
}

func (w *Watcher) update(fn func(*State)) {
	w.mu.Lock()
	fn(&w.state)
	s := w.copyState()
	w.mu.Unlock()

	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- s:
	default:
	}
}
