package storage

import (
	"context"
	"time"

	"github.com/runlet-dev/runlet/internal/app/domain/credential"
	"github.com/runlet-dev/runlet/internal/app/domain/execution"
	"github.com/runlet-dev/runlet/internal/app/domain/route"
)

// RouteStore persists route definitions.
type RouteStore interface {
	CreateRoute(ctx context.Context, r route.Route) (route.Route, error)
	UpdateRoute(ctx context.Context, r route.Route) (route.Route, error)
	GetRoute(ctx context.Context, id string) (route.Route, error)
	ListRoutes(ctx context.Context) ([]route.Route, error)
	ListRoutesByMethod(ctx context.Context, method string) ([]route.Route, error)
	DeleteRoute(ctx context.Context, id string) error
}

// CredentialStore persists API-key records.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error)
	UpdateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error)
	GetCredential(ctx context.Context, id string) (credential.Credential, error)
	GetCredentialByToken(ctx context.Context, token string) (credential.Credential, error)
	ListCredentials(ctx context.Context) ([]credential.Credential, error)
	DeleteCredential(ctx context.Context, id string) error

	// ListCustomHeaders returns the distinct custom header names registered
	// on enabled credentials, so extraction can stay pinned to declared
	// headers instead of probing the request.
	ListCustomHeaders(ctx context.Context) ([]string, error)

	// UpdateCredentialQuota persists only the usage counters. Implementations
	// must apply it atomically with respect to concurrent calls for the same
	// credential.
	UpdateCredentialQuota(ctx context.Context, id string, used int64, resetAt time.Time) error
}

// ExecutionLogStore persists per-request execution records.
type ExecutionLogStore interface {
	CreateRecord(ctx context.Context, rec execution.Record) (execution.Record, error)
	ListRecords(ctx context.Context, routeID string, limit int) ([]execution.Record, error)
}
