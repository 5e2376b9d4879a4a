// Package credential defines the API-key records consulted during admission
// control.
package credential

import "time"

// Method is the single presentation method a credential is bound to.
// A token presented through any other channel is rejected.
type Method string

const (
	MethodHeader Method = "header"
	MethodBearer Method = "bearer"
	MethodQuery  Method = "query"
	MethodBasic  Method = "basic"
	MethodCustom Method = "custom"
)

// QuotaPeriod selects the quota reset cadence.
type QuotaPeriod string

const (
	PeriodDay   QuotaPeriod = "day"
	PeriodWeek  QuotaPeriod = "week"
	PeriodMonth QuotaPeriod = "month"
)

// Quota is the per-credential usage budget. Used and ResetAt are mutated
// only by the quota tracker.
type Quota struct {
	Enabled bool        `json:"enabled"`
	Limit   int64       `json:"limit"`
	Period  QuotaPeriod `json:"period"`
	Used    int64       `json:"used"`
	ResetAt time.Time   `json:"reset_at,omitempty"`
}

// Wildcard grants a credential access to every route.
const Wildcard = "*"

// Credential is an opaque API key with its presentation binding, permission
// set and quota budget.
type Credential struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Token        string    `json:"token"`
	Method       Method    `json:"method"`
	CustomHeader string    `json:"custom_header,omitempty"`
	Permissions  []string  `json:"permissions"`
	Quota        Quota     `json:"quota"`
	Enabled      bool      `json:"enabled"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Expired reports whether the credential's expiry has passed. A zero expiry
// never expires.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// AllowsRoute reports whether the permission set covers the route.
func (c Credential) AllowsRoute(routeID string) bool {
	for _, p := range c.Permissions {
		if p == Wildcard || p == routeID {
			return true
		}
	}
	return false
}
