// Package credentials manages API-key records for the gateway.
package credentials

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runlet-dev/runlet/internal/app/domain/credential"
	"github.com/runlet-dev/runlet/internal/app/storage"
	"github.com/runlet-dev/runlet/pkg/logger"
)

// Service validates and persists credentials.
type Service struct {
	store storage.CredentialStore
	log   *logger.Logger
}

// New constructs a credential service.
func New(store storage.CredentialStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("credentials")
	}
	return &Service{store: store, log: log}
}

// Create validates and stores a new credential. An empty token gets a
// generated one.
func (s *Service) Create(ctx context.Context, c credential.Credential) (credential.Credential, error) {
	normalize(&c)
	if c.Token == "" {
		c.Token = "rk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if err := validate(c); err != nil {
		return credential.Credential{}, err
	}

	created, err := s.store.CreateCredential(ctx, c)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("create credential: %w", err)
	}
	s.log.WithField("credential", created.ID).Info("credential created")
	return created, nil
}

// Update validates and stores changes to an existing credential. An empty
// token keeps the stored one; quota usage counters are preserved.
func (s *Service) Update(ctx context.Context, c credential.Credential) (credential.Credential, error) {
	existing, err := s.store.GetCredential(ctx, c.ID)
	if err != nil {
		return credential.Credential{}, err
	}

	normalize(&c)
	if c.Token == "" {
		c.Token = existing.Token
	}
	c.Quota.Used = existing.Quota.Used
	c.Quota.ResetAt = existing.Quota.ResetAt
	if err := validate(c); err != nil {
		return credential.Credential{}, err
	}

	updated, err := s.store.UpdateCredential(ctx, c)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("update credential: %w", err)
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (credential.Credential, error) {
	return s.store.GetCredential(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]credential.Credential, error) {
	return s.store.ListCredentials(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteCredential(ctx, id)
}

// SetEnabled flips the enabled flag.
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) (credential.Credential, error) {
	c, err := s.store.GetCredential(ctx, id)
	if err != nil {
		return credential.Credential{}, err
	}
	c.Enabled = enabled
	return s.store.UpdateCredential(ctx, c)
}

func normalize(c *credential.Credential) {
	c.Name = strings.TrimSpace(c.Name)
	c.Token = strings.TrimSpace(c.Token)
	c.Method = credential.Method(strings.TrimSpace(strings.ToLower(string(c.Method))))
	if c.Method == "" {
		c.Method = credential.MethodHeader
	}
	c.CustomHeader = strings.TrimSpace(c.CustomHeader)
	if len(c.Permissions) == 0 {
		c.Permissions = []string{credential.Wildcard}
	}
	c.Quota.Period = credential.QuotaPeriod(strings.TrimSpace(strings.ToLower(string(c.Quota.Period))))
}

func validate(c credential.Credential) error {
	if c.Name == "" {
		return fmt.Errorf("credential name is required")
	}
	switch c.Method {
	case credential.MethodHeader, credential.MethodBearer, credential.MethodQuery, credential.MethodBasic:
	case credential.MethodCustom:
		if c.CustomHeader == "" {
			return fmt.Errorf("custom method requires custom_header")
		}
	default:
		return fmt.Errorf("unsupported credential method %q", c.Method)
	}
	if c.Quota.Enabled {
		if c.Quota.Limit <= 0 {
			return fmt.Errorf("quota limit must be positive")
		}
		switch c.Quota.Period {
		case credential.PeriodDay, credential.PeriodWeek, credential.PeriodMonth:
		default:
			return fmt.Errorf("unsupported quota period %q", c.Quota.Period)
		}
	}
	if !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(time.Now().UTC()) {
		return fmt.Errorf("expires_at must be in the future")
	}
	return nil
}
