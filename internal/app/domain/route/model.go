// Package route defines the registered endpoint records served by the
// gateway.
package route

import (
	"strings"
	"time"
)

// Language identifies the scripting runtime a route's source targets.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
	LanguageRuby       Language = "ruby"
	LanguagePHP        Language = "php"
)

// AuthMode selects how callers must authenticate against a route.
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthAPIKey AuthMode = "apikey"
	AuthBearer AuthMode = "bearer"
	AuthBasic  AuthMode = "basic"
)

// RateLimitKey selects the identifier a route's limit is counted against.
type RateLimitKey string

const (
	KeyByIP     RateLimitKey = "ip"
	KeyByAPIKey RateLimitKey = "apikey"
)

// RateLimit is the per-route fixed-window configuration.
type RateLimit struct {
	Enabled       bool         `json:"enabled"`
	Requests      int          `json:"requests"`
	WindowSeconds int          `json:"window_seconds"`
	KeyBy         RateLimitKey `json:"key_by"`
}

// Route maps (method, path pattern) to user-supplied source code and its
// admission policy. Pattern segments starting with ':' are parameters.
type Route struct {
	ID             string            `json:"id"`
	Method         string            `json:"method"`
	Path           string            `json:"path"`
	Language       Language          `json:"language"`
	Source         string            `json:"source"`
	AuthMode       AuthMode          `json:"auth_mode"`
	RateLimit      RateLimit         `json:"rate_limit"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	Enabled        bool              `json:"enabled"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Segments splits the route's path pattern into its segments.
func (r Route) Segments() []string {
	return SplitPath(r.Path)
}

// LiteralSegments counts the non-parameter segments of the pattern.
func (r Route) LiteralSegments() int {
	n := 0
	for _, seg := range r.Segments() {
		if !IsParam(seg) {
			n++
		}
	}
	return n
}

// SplitPath normalises a path into its non-empty segments.
func SplitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// IsParam reports whether a pattern segment is a parameter marker.
func IsParam(segment string) bool {
	return strings.HasPrefix(segment, ":") && len(segment) > 1
}
