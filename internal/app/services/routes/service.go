// Package routes manages route definitions and resolves inbound requests
// against them.
package routes

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/runlet-dev/runlet/internal/app/domain/route"
	"github.com/runlet-dev/runlet/internal/app/storage"
	"github.com/runlet-dev/runlet/pkg/logger"
)

// Service manages route definitions.
type Service struct {
	store storage.RouteStore
	log   *logger.Logger
}

// New constructs a route service.
func New(store storage.RouteStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("routes")
	}
	return &Service{store: store, log: log}
}

var supportedLanguages = map[route.Language]bool{
	route.LanguageJavaScript: true,
	route.LanguagePython:     true,
	route.LanguageRuby:       true,
	route.LanguagePHP:        true,
}

var validAuthModes = map[route.AuthMode]bool{
	route.AuthNone:   true,
	route.AuthAPIKey: true,
	route.AuthBearer: true,
	route.AuthBasic:  true,
}

// Create registers a new route definition.
func (s *Service) Create(ctx context.Context, r route.Route) (route.Route, error) {
	if err := validate(r); err != nil {
		return route.Route{}, err
	}
	r.Method = strings.ToUpper(r.Method)
	r.Path = normalizePath(r.Path)

	created, err := s.store.CreateRoute(ctx, r)
	if err != nil {
		return route.Route{}, err
	}
	s.log.Infof("route %s registered: %s %s (%s)", created.ID, created.Method, created.Path, created.Language)
	return created, nil
}

// Update replaces a route definition. PUT is full-replace: the payload must
// carry every required field, and omitted optional fields are applied
// literally — an absent rate_limit clears rate limiting and an absent
// enabled disables the route. Backfilling from the stored record would make
// those impossible to unset.
func (s *Service) Update(ctx context.Context, r route.Route) (route.Route, error) {
	if _, err := s.store.GetRoute(ctx, r.ID); err != nil {
		return route.Route{}, err
	}

	if err := validate(r); err != nil {
		return route.Route{}, err
	}
	r.Method = strings.ToUpper(r.Method)
	r.Path = normalizePath(r.Path)

	updated, err := s.store.UpdateRoute(ctx, r)
	if err != nil {
		return route.Route{}, err
	}
	s.log.Infof("route %s updated", r.ID)
	return updated, nil
}

// Get retrieves a route by identifier.
func (s *Service) Get(ctx context.Context, id string) (route.Route, error) {
	return s.store.GetRoute(ctx, id)
}

// List returns all registered routes.
func (s *Service) List(ctx context.Context) ([]route.Route, error) {
	return s.store.ListRoutes(ctx)
}

// Delete removes a route.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteRoute(ctx, id)
}

// SetEnabled toggles a route's enabled flag.
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) (route.Route, error) {
	r, err := s.store.GetRoute(ctx, id)
	if err != nil {
		return route.Route{}, err
	}
	r.Enabled = enabled
	return s.store.UpdateRoute(ctx, r)
}

func validate(r route.Route) error {
	if strings.TrimSpace(r.Method) == "" {
		return fmt.Errorf("method is required")
	}
	if strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("path is required")
	}
	if strings.TrimSpace(r.Source) == "" {
		return fmt.Errorf("source is required")
	}
	if !supportedLanguages[r.Language] {
		return fmt.Errorf("unsupported language %q", r.Language)
	}
	if r.AuthMode != "" && !validAuthModes[r.AuthMode] {
		return fmt.Errorf("invalid auth mode %q", r.AuthMode)
	}
	if r.RateLimit.Enabled {
		if r.RateLimit.Requests <= 0 {
			return fmt.Errorf("rate limit requests must be positive")
		}
		if r.RateLimit.WindowSeconds <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
		if r.RateLimit.KeyBy != route.KeyByIP && r.RateLimit.KeyBy != route.KeyByAPIKey {
			return fmt.Errorf("rate limit key_by must be %q or %q", route.KeyByIP, route.KeyByAPIKey)
		}
	}

	seen := make(map[string]bool)
	for _, seg := range route.SplitPath(r.Path) {
		if seg == ":" {
			return fmt.Errorf("path parameter must be named")
		}
		if route.IsParam(seg) {
			name := seg[1:]
			if seen[name] {
				return fmt.Errorf("duplicate path parameter %q", name)
			}
			seen[name] = true
		}
	}

	// Catch obvious syntax errors at registration time instead of on the
	// first request. Only javascript has an embeddable parser available.
	// The harness runs the source as an async function body, so compile it
	// the same way; a bare top-level `return` is legal there.
	if r.Language == route.LanguageJavaScript {
		wrapped := "(async function(request, params, query, body, headers, respond, json) {\n" + r.Source + "\n})"
		if _, err := goja.Compile("route.js", wrapped, false); err != nil {
			return fmt.Errorf("javascript source does not compile: %w", err)
		}
	}
	return nil
}

func normalizePath(path string) string {
	return "/" + strings.Trim(strings.TrimSpace(path), "/")
}
