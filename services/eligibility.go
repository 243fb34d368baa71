package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/lifesignal/models"
	"github.com/cppla/lifesignal/store"
	"github.com/cppla/lifesignal/utils"
)

// EligibilityOracle answers whether an account may receive check-ins.
type EligibilityOracle interface {
	IsEligible(ctx context.Context, accountID string) (bool, error)
}

// SubscriptionReader is the slice of the store the subscription oracle needs.
type SubscriptionReader interface {
	SubscriptionStatus(ctx context.Context, userID string) (string, error)
}

// SubscriptionOracle treats active and trialing subscriptions as eligible.
type SubscriptionOracle struct {
	subs SubscriptionReader
}

func NewSubscriptionOracle(subs SubscriptionReader) *SubscriptionOracle {
	return &SubscriptionOracle{subs: subs}
}

func (o *SubscriptionOracle) IsEligible(ctx context.Context, accountID string) (bool, error) {
	status, err := o.subs.SubscriptionStatus(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return models.NormalizeSubscriptionStatus(status).Active(), nil
}

// CachedOracle remembers answers in Redis for a short TTL. Cache failures fall through.
type CachedOracle struct {
	next   EligibilityOracle
	cache  *utils.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedOracle(next EligibilityOracle, cache *utils.Cache, ttl time.Duration, logger *zap.Logger) *CachedOracle {
	return &CachedOracle{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (o *CachedOracle) IsEligible(ctx context.Context, accountID string) (bool, error) {
	key := "eligible:" + accountID
	if b, ok := o.cache.GetBytes(ctx, key); ok {
		return string(b) == "1", nil
	}
	ok, err := o.next.IsEligible(ctx, accountID)
	if err != nil {
		return false, err
	}
	v := "0"
	if ok {
		v = "1"
	}
	o.cache.SetBytes(ctx, key, []byte(v), o.ttl)
	return ok, nil
}

// personEligible applies the per-person override before consulting the oracle.
func personEligible(ctx context.Context, oracle EligibilityOracle, p models.MonitoredPerson) (bool, error) {
	if p.BetaOverride {
		return true, nil
	}
	return oracle.IsEligible(ctx, p.OwnerUserID)
}
