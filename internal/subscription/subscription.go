// Package subscription decides whether an identity may run searches.
// New identities get a short trial automatically, afterwards access
// depends on a granted paid period.
package subscription

import (
	"context"
	"time"

	"orderscout/internal/logging"
)

// Backend is the persistence surface, implemented by store.SQLite.
type Backend interface {
	SubscriptionUntil(ctx context.Context, identity string) (time.Time, bool, error)
	GrantSubscription(ctx context.Context, identity string, until time.Time) error
}

// Service implements ports.SubscriptionCheck.
type Service struct {
	backend Backend
	trial   time.Duration
	now     func() time.Time
}

// New builds the service. trialDays is how long a first-seen identity
// may search for free.
func New(backend Backend, trialDays int) *Service {
	return &Service{
		backend: backend,
		trial:   time.Duration(trialDays) * 24 * time.Hour,
		now:     time.Now,
	}
}

// IsActive reports whether identity may search right now. An identity
// with no record starts its trial on first check.
func (s *Service) IsActive(ctx context.Context, identity string) (bool, error) {
	until, ok, err := s.backend.SubscriptionUntil(ctx, identity)
	if err != nil {
		return false, err
	}
	if !ok {
		until = s.now().Add(s.trial)
		if err := s.backend.GrantSubscription(ctx, identity, until); err != nil {
			return false, err
		}
		logging.Store("trial started for %s until %s", identity, until.Format(time.RFC3339))
		return true, nil
	}
	return until.After(s.now()), nil
}

// Until returns when the identity's access ends. ok is false for
// identities never seen before.
func (s *Service) Until(ctx context.Context, identity string) (time.Time, bool, error) {
	return s.backend.SubscriptionUntil(ctx, identity)
}

// Grant extends the identity's access by d, counted from the current
// expiry when that is still in the future.
func (s *Service) Grant(ctx context.Context, identity string, d time.Duration) (time.Time, error) {
	base := s.now()
	if until, ok, err := s.backend.SubscriptionUntil(ctx, identity); err != nil {
		return time.Time{}, err
	} else if ok && until.After(base) {
		base = until
	}
	until := base.Add(d)
	if err := s.backend.GrantSubscription(ctx, identity, until); err != nil {
		return time.Time{}, err
	}
	logging.Store("subscription for %s extended to %s", identity, until.Format(time.RFC3339))
	return until, nil
}
