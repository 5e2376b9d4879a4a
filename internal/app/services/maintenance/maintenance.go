// Package maintenance runs the periodic housekeeping jobs: expiring
// rate-limit windows and disabling credentials past their expiry.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/runlet-dev/runlet/internal/app/storage"
	"github.com/runlet-dev/runlet/pkg/logger"
)

// Sweeper is the limiter-side contract: remove expired entries, report how
// many were removed.
type Sweeper interface {
	Sweep() int
}

// Service schedules the housekeeping jobs on a cron runner.
type Service struct {
	cron       *cron.Cron
	sweeper    Sweeper
	creds      storage.CredentialStore
	log        *logger.Logger
	sweepEvery time.Duration
}

// New constructs the maintenance service. sweeper may be nil when the
// rate-limit backend manages its own expiry (Redis TTLs).
func New(sweeper Sweeper, creds storage.CredentialStore, sweepEvery time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("maintenance")
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	return &Service{
		cron:       cron.New(),
		sweeper:    sweeper,
		creds:      creds,
		log:        log,
		sweepEvery: sweepEvery,
	}
}

// Name implements system.Service.
func (s *Service) Name() string { return "maintenance" }

// Start schedules the jobs and begins the cron runner.
func (s *Service) Start(context.Context) error {
	if s.sweeper != nil {
		spec := fmt.Sprintf("@every %s", s.sweepEvery)
		if _, err := s.cron.AddFunc(spec, s.sweepRateLimits); err != nil {
			return fmt.Errorf("schedule rate-limit sweep: %w", err)
		}
	}
	if s.creds != nil {
		if _, err := s.cron.AddFunc("@hourly", s.disableExpiredCredentials); err != nil {
			return fmt.Errorf("schedule credential expiry pass: %w", err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for running jobs.
func (s *Service) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) sweepRateLimits() {
	s.sweeper.Sweep()
}

// disableExpiredCredentials flips the enabled flag on credentials past their
// expiry. Auth rejects them regardless; this keeps listings honest.
func (s *Service) disableExpiredCredentials() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	creds, err := s.creds.ListCredentials(ctx)
	if err != nil {
		s.log.WithError(err).Warn("list credentials for expiry pass")
		return
	}
	now := time.Now().UTC()
	for _, c := range creds {
		if !c.Enabled || !c.Expired(now) {
			continue
		}
		c.Enabled = false
		if _, err := s.creds.UpdateCredential(ctx, c); err != nil {
			s.log.WithError(err).WithField("credential", c.ID).Warn("disable expired credential")
			continue
		}
		s.log.Infof("credential %s disabled after expiry", c.ID)
	}
}
