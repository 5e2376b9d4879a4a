package routes

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/runlet-dev/runlet/internal/app/domain/route"
)

// ErrNoRoute indicates that no registered route matches the request.
var ErrNoRoute = errors.New("no route matches")

// ErrRouteDisabled indicates that the only matching route is disabled. The
// pipeline maps this to 503 rather than 404.
var ErrRouteDisabled = errors.New("route disabled")

// Match is a resolved route with its extracted path parameters.
type Match struct {
	Route  route.Route
	Params map[string]string
}

// Resolve matches (method, path) against the registered routes.
//
// Exact literal matches always win over parameterized ones. Among
// parameterized matches the route with the most literal segments wins, and
// remaining ties fall to the lexicographically smaller pattern, so resolution
// does not depend on store iteration order.
func (s *Service) Resolve(ctx context.Context, method, path string) (Match, error) {
	candidates, err := s.store.ListRoutesByMethod(ctx, method)
	if err != nil {
		return Match{}, err
	}

	segments := route.SplitPath(path)
	normalized := normalizePath(path)

	var matched []route.Route
	disabledHit := false
	for _, r := range candidates {
		if !patternMatches(r, normalized, segments) {
			continue
		}
		if !r.Enabled {
			disabledHit = true
			continue
		}
		matched = append(matched, r)
	}

	if len(matched) == 0 {
		if disabledHit {
			return Match{}, ErrRouteDisabled
		}
		return Match{}, ErrNoRoute
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		aExact, bExact := a.Path == normalized, b.Path == normalized
		if aExact != bExact {
			return aExact
		}
		al, bl := a.LiteralSegments(), b.LiteralSegments()
		if al != bl {
			return al > bl
		}
		return a.Path < b.Path
	})

	best := matched[0]
	return Match{Route: best, Params: extractParams(best, segments)}, nil
}

func patternMatches(r route.Route, normalizedPath string, segments []string) bool {
	if r.Path == normalizedPath {
		return true
	}
	pattern := r.Segments()
	if len(pattern) != len(segments) {
		return false
	}
	for i, seg := range pattern {
		if route.IsParam(seg) {
			continue
		}
		if seg != segments[i] {
			return false
		}
	}
	return true
}

// extractParams re-walks the matched pattern collecting parameter names
// mapped to the corresponding literal path segments.
func extractParams(r route.Route, segments []string) map[string]string {
	params := make(map[string]string)
	pattern := r.Segments()
	if len(pattern) != len(segments) {
		return params
	}
	for i, seg := range pattern {
		if route.IsParam(seg) {
			params[strings.TrimPrefix(seg, ":")] = segments[i]
		}
	}
	return params
}
