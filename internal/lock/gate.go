// Package lock provides the single-flight gate that keeps two pulls (or two
// pushes) of the same session from overlapping.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

// Gate grants exclusive use of a key. Acquire fails fast with
// models.ErrOperationInProgress instead of queueing.
type Gate interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalGate is an in-process gate.
type LocalGate struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalGate creates an empty in-process gate.
func NewLocalGate() *LocalGate {
	return &LocalGate{held: make(map[string]struct{})}
}

// Acquire marks key as held until release is called.
func (g *LocalGate) Acquire(ctx context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return nil, fmt.Errorf("%s: %w", key, models.ErrOperationInProgress)
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

// RedisGate shares the gate between API replicas through a redis lock.
type RedisGate struct {
	locker *redislock.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisGate wraps an existing redis client.
func NewRedisGate(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisGate{locker: redislock.New(client), ttl: ttl, logger: logger}
}

// Acquire obtains the redis lock for key without retrying.
func (g *RedisGate) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := g.locker.Obtain(ctx, "fieldinventory:"+key, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", key, models.ErrOperationInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				g.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
