package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const releaseScript = `if redis.call('GET', KEYS[1]) == ARGV[1] then return redis.call('DEL', KEYS[1]) end return 0`

// TickLease keeps overlapping trigger calls from running the same job twice at once.
// It only saves work: correctness comes from the database, so Redis errors fail open.
type TickLease struct {
	rc     redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewTickLease returns a lease manager; rc may be nil to disable leasing.
func NewTickLease(rc redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *TickLease {
	if ttl <= 0 {
		ttl = 4 * time.Minute
	}
	return &TickLease{rc: rc, ttl: ttl, logger: logger}
}

// Acquire takes the lease for job. The returned release func is always safe to call.
func (l *TickLease) Acquire(ctx context.Context, job string) (release func(), ok bool) {
	noop := func() {}
	if l == nil || l.rc == nil {
		return noop, true
	}
	key := "lifesignal:tick:" + job
	token := uuid.NewString()

	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	acquired, err := l.rc.SetNX(cctx, key, token, l.ttl).Result()
	if err != nil {
		l.logger.Warn("tick lease unavailable, running without it", zap.String("job", job), zap.Error(err))
		return noop, true
	}
	if !acquired {
		return noop, false
	}
	return func() {
		rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer rcancel()
		if err := l.rc.Eval(rctx, releaseScript, []string{key}, token).Err(); err != nil {
			l.logger.Warn("tick lease release failed", zap.String("job", job), zap.Error(err))
		}
	}, true
}
