// Package auth validates caller credentials against a route's declared
// authentication mode.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/runlet-dev/runlet/internal/app/domain/credential"
	"github.com/runlet-dev/runlet/internal/app/domain/route"
	"github.com/runlet-dev/runlet/internal/app/services/quota"
	"github.com/runlet-dev/runlet/internal/app/storage"
	"github.com/runlet-dev/runlet/pkg/logger"
)

var (
	// ErrCredentialMissing means no token was presented on the mode's channel.
	ErrCredentialMissing = errors.New("credential missing")
	// ErrCredentialInvalid covers unknown, disabled and mis-presented tokens.
	ErrCredentialInvalid = errors.New("credential invalid")
	// ErrCredentialExpired means the token was valid but past its expiry.
	ErrCredentialExpired = errors.New("credential expired")
	// ErrPermissionDenied means the credential does not cover the route.
	ErrPermissionDenied = errors.New("permission denied")
)

// QuotaExceededError carries the quota decision so the pipeline can emit
// X-Quota-* headers. It overrides an otherwise successful auth outcome.
type QuotaExceededError struct {
	Decision quota.Decision
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d/%d used", e.Decision.Used, e.Decision.Limit)
}

// Service dispatches on a route's auth mode and applies credential, permission
// and quota checks.
type Service struct {
	creds storage.CredentialStore
	quota *quota.Service
	log   *logger.Logger
}

// New constructs an auth dispatcher.
func New(creds storage.CredentialStore, quotaSvc *quota.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Service{creds: creds, quota: quotaSvc, log: log}
}

// Outcome is a successful admission: the resolved credential (nil for open
// routes) and the quota decision applied to it.
type Outcome struct {
	Credential *credential.Credential
	Quota      *quota.Decision
}

// Authorize validates the request against the route's auth mode.
//
// Terminal failures: ErrCredentialMissing / ErrCredentialInvalid /
// ErrCredentialExpired (401), ErrPermissionDenied (403) and
// *QuotaExceededError (429).
func (s *Service) Authorize(ctx context.Context, r *http.Request, rt route.Route) (Outcome, error) {
	if rt.AuthMode == "" || rt.AuthMode == route.AuthNone {
		return Outcome{}, nil
	}

	var customHeaders []string
	if rt.AuthMode == route.AuthAPIKey {
		names, err := s.creds.ListCustomHeaders(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("list custom headers: %w", err)
		}
		customHeaders = names
	}

	cand, ok := extract(r, rt.AuthMode, customHeaders)
	if !ok {
		return Outcome{}, ErrCredentialMissing
	}

	cred, err := s.creds.GetCredentialByToken(ctx, cand.token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Outcome{}, ErrCredentialInvalid
		}
		return Outcome{}, fmt.Errorf("look up credential: %w", err)
	}

	if !cred.Enabled {
		return Outcome{}, ErrCredentialInvalid
	}
	if cred.Expired(nowUTC()) {
		return Outcome{}, ErrCredentialExpired
	}
	if !presentationMatches(cred, cand) {
		s.log.WithContext(ctx).WithFields(map[string]any{
			"credential": cred.ID,
			"expected":   cred.Method,
			"presented":  cand.method,
		}).Warn("credential presented through unbound method")
		return Outcome{}, ErrCredentialInvalid
	}
	if !cred.AllowsRoute(rt.ID) {
		return Outcome{}, ErrPermissionDenied
	}

	decision, err := s.quota.CheckAndConsume(ctx, cred.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("quota check: %w", err)
	}
	if !decision.Allowed {
		return Outcome{}, &QuotaExceededError{Decision: decision}
	}

	return Outcome{Credential: &cred, Quota: &decision}, nil
}

func nowUTC() time.Time { return time.Now().UTC() }

// presentationMatches enforces the credential's single presentation binding.
func presentationMatches(cred credential.Credential, cand candidate) bool {
	if cred.Method != cand.method {
		return false
	}
	if cred.Method == credential.MethodCustom {
		return cred.CustomHeader == cand.customHeader
	}
	return true
}
