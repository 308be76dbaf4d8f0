// Package buffer queues manual readings that could not be sent while
// offline and replays them through the ordinary write endpoint once
// connectivity is back.
package buffer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

// Sender registers a reading against the API.
type Sender interface {
	RegisterReading(ctx context.Context, sessionID string, req models.RegisterReadingRequest) (*models.Reading, error)
}

// Pending is a queued reading.
type Pending struct {
	SessionID string                        `json:"session_id"`
	Request   models.RegisterReadingRequest `json:"request"`
	QueuedAt  time.Time                     `json:"queued_at"`
}

// FlushResult summarizes one replay.
type FlushResult struct {
	Sent      int
	Dropped   int
	Remaining int
}

// Options configures a Queue.
type Options struct {
	// StatePath, when set, persists the queue across restarts.
	StatePath string
	Logger    *zap.Logger
}

// Queue is a FIFO of readings waiting for connectivity. Replays are safe
// because the API treats a second registration of an identifier as a no-op.
type Queue struct {
	sender    Sender
	statePath string
	logger    *zap.Logger
	now       func() time.Time

	flushMu sync.Mutex
	mu      sync.Mutex
	items   []Pending
}

// NewQueue builds a queue, loading any persisted state.
func NewQueue(sender Sender, opts Options) (*Queue, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	q := &Queue{
		sender:    sender,
		statePath: opts.StatePath,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

// Submit sends the reading, or queues it when the network is unavailable.
// Errors returned by the API itself are reported and nothing is queued.
func (q *Queue) Submit(ctx context.Context, sessionID string, req models.RegisterReadingRequest) (*models.Reading, bool, error) {
	if q.Len() == 0 {
		reading, err := q.sender.RegisterReading(ctx, sessionID, req)
		if err == nil {
			return reading, false, nil
		}
		if !Retryable(err) {
			return nil, false, err
		}
		q.logger.Warn("reading queued for replay", zap.String("session_id", sessionID), zap.String("identifier", req.Identifier), zap.Error(err))
	}

	if err := q.push(Pending{SessionID: sessionID, Request: req, QueuedAt: q.now().UTC()}); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

// Flush replays queued readings in order. It stops at the first network
// failure; readings rejected by the API are dropped.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	var result FlushResult
	for {
		next, ok := q.peek()
		if !ok {
			return result, nil
		}

		_, err := q.sender.RegisterReading(ctx, next.SessionID, next.Request)
		if err != nil && Retryable(err) {
			result.Remaining = q.Len()
			return result, fmt.Errorf("replay reading %s: %w", next.Request.Identifier, err)
		}
		if err != nil {
			q.logger.Warn("queued reading rejected",
				zap.String("session_id", next.SessionID),
				zap.String("identifier", next.Request.Identifier),
				zap.Error(err))
			result.Dropped++
		} else {
			result.Sent++
		}
		if err := q.pop(); err != nil {
			return result, err
		}
	}
}

// Run flushes the queue every time signal fires, until ctx is done.
func (q *Queue) Run(ctx context.Context, signal <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signal:
			if !ok {
				return
			}
			if q.Len() == 0 {
				continue
			}
			result, err := q.Flush(ctx)
			if err != nil {
				q.logger.Warn("replay interrupted", zap.Int("sent", result.Sent), zap.Int("remaining", result.Remaining), zap.Error(err))
				continue
			}
			q.logger.Info("queued readings replayed", zap.Int("sent", result.Sent), zap.Int("dropped", result.Dropped))
		}
	}
}

// Len returns the number of queued readings.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the queued readings.
func (q *Queue) Items() []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Pending(nil), q.items...)
}

// Retryable reports whether err is a connectivity failure worth replaying.
// Timeouts are retryable; a cancellation by the caller is not.
func Retryable(err error) bool {
	if errors.Is(err, models.ErrOfflineUnavailable) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (q *Queue) push(p Pending) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
	return q.saveLocked()
}

func (q *Queue) peek() (Pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Pending{}, false
	}
	return q.items[0], true
}

func (q *Queue) pop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		q.items = q.items[1:]
	}
	return q.saveLocked()
}

func (q *Queue) load() error {
	if q.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(q.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read reading queue: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &q.items); err != nil {
		return fmt.Errorf("decode reading queue: %w", err)
	}
	return nil
}

func (q *Queue) saveLocked() error {
	if q.statePath == "" {
		return nil
	}
	data, err := json.Marshal(q.items)
	if err != nil {
		return fmt.Errorf("encode reading queue: %w", err)
	}
	tmp := q.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write reading queue: %w", err)
	}
	if err := os.Rename(tmp, q.statePath); err != nil {
		return fmt.Errorf("write reading queue: %w", err)
	}
	return nil
}
