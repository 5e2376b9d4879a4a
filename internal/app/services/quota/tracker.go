// Package quota enforces per-credential usage budgets over calendar periods.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/runlet-dev/runlet/internal/app/domain/credential"
	"github.com/runlet-dev/runlet/internal/app/storage"
	"github.com/runlet-dev/runlet/pkg/logger"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool      `json:"allowed"`
	Used    int64     `json:"used"`
	Limit   int64     `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

// Service tracks credential usage. Mutations for a single credential are
// serialised through a per-credential lock so concurrent requests cannot
// lose increments.
type Service struct {
	store storage.CredentialStore
	log   *logger.Logger
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a quota tracker.
func New(store storage.CredentialStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("quota")
	}
	return &Service{
		store: store,
		log:   log,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// CheckAndConsume applies one unit of usage against the credential's quota.
// Disabled quotas always allow without mutation. A rejected check does not
// increment usage.
func (s *Service) CheckAndConsume(ctx context.Context, credID string) (Decision, error) {
	lock := s.lockFor(credID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock so the counters are current.
	cred, err := s.store.GetCredential(ctx, credID)
	if err != nil {
		return Decision{}, fmt.Errorf("load credential: %w", err)
	}

	q := cred.Quota
	if !q.Enabled {
		return Decision{Allowed: true, Used: q.Used, Limit: q.Limit, ResetAt: q.ResetAt}, nil
	}

	now := s.now().UTC()
	if q.ResetAt.IsZero() || !now.Before(q.ResetAt) {
		resetAt := nextBoundary(now, q.Period)
		if err := s.store.UpdateCredentialQuota(ctx, credID, 1, resetAt); err != nil {
			return Decision{}, fmt.Errorf("reset quota: %w", err)
		}
		return Decision{Allowed: true, Used: 1, Limit: q.Limit, ResetAt: resetAt}, nil
	}

	if q.Used >= q.Limit {
		return Decision{Allowed: false, Used: q.Used, Limit: q.Limit, ResetAt: q.ResetAt}, nil
	}

	used := q.Used + 1
	if err := s.store.UpdateCredentialQuota(ctx, credID, used, q.ResetAt); err != nil {
		return Decision{}, fmt.Errorf("consume quota: %w", err)
	}
	return Decision{Allowed: true, Used: used, Limit: q.Limit, ResetAt: q.ResetAt}, nil
}

// nextBoundary computes the end of the period that starts now. Months use
// calendar arithmetic.
func nextBoundary(now time.Time, period credential.QuotaPeriod) time.Time {
	switch period {
	case credential.PeriodWeek:
		return now.AddDate(0, 0, 7)
	case credential.PeriodMonth:
		return now.AddDate(0, 1, 0)
	default:
		return now.AddDate(0, 0, 1)
	}
}
