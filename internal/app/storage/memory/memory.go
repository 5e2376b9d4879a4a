package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/runlet-dev/runlet/internal/app/domain/credential"
	"github.com/runlet-dev/runlet/internal/app/domain/execution"
	"github.com/runlet-dev/runlet/internal/app/domain/route"
	"github.com/runlet-dev/runlet/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu                 sync.RWMutex
	nextID             int64
	routes             map[string]route.Route
	credentials        map[string]credential.Credential
	credentialsByToken map[string]string
	records            []execution.Record
}

var _ storage.RouteStore = (*Store)(nil)
var _ storage.CredentialStore = (*Store)(nil)
var _ storage.ExecutionLogStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:             1,
		routes:             make(map[string]route.Route),
		credentials:        make(map[string]credential.Credential),
		credentialsByToken: make(map[string]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// RouteStore implementation --------------------------------------------------

func (s *Store) CreateRoute(_ context.Context, r route.Route) (route.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.nextIDLocked()
	} else if _, exists := s.routes[r.ID]; exists {
		return route.Route{}, fmt.Errorf("route %s already exists", r.ID)
	}

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Env = cloneMap(r.Env)

	s.routes[r.ID] = r
	return r, nil
}

func (s *Store) UpdateRoute(_ context.Context, r route.Route) (route.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.routes[r.ID]
	if !ok {
		return route.Route{}, fmt.Errorf("route %s: %w", r.ID, storage.ErrNotFound)
	}

	r.CreatedAt = original.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	r.Env = cloneMap(r.Env)

	s.routes[r.ID] = r
	return r, nil
}

func (s *Store) GetRoute(_ context.Context, id string) (route.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.routes[id]
	if !ok {
		return route.Route{}, fmt.Errorf("route %s: %w", id, storage.ErrNotFound)
	}
	return r, nil
}

func (s *Store) ListRoutes(_ context.Context) ([]route.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]route.Route, 0, len(s.routes))
	for _, r := range s.routes {
		result = append(result, r)
	}
	sortRoutes(result)
	return result, nil
}

func (s *Store) ListRoutesByMethod(_ context.Context, method string) ([]route.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	method = strings.ToUpper(method)
	var result []route.Route
	for _, r := range s.routes {
		if strings.ToUpper(r.Method) == method {
			result = append(result, r)
		}
	}
	sortRoutes(result)
	return result, nil
}

func (s *Store) DeleteRoute(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.routes[id]; !ok {
		return fmt.Errorf("route %s: %w", id, storage.ErrNotFound)
	}
	delete(s.routes, id)
	return nil
}

// CredentialStore implementation ----------------------------------------------

func (s *Store) CreateCredential(_ context.Context, c credential.Credential) (credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	} else if _, exists := s.credentials[c.ID]; exists {
		return credential.Credential{}, fmt.Errorf("credential %s already exists", c.ID)
	}
	if c.Token == "" {
		return credential.Credential{}, fmt.Errorf("credential token is required")
	}
	if _, exists := s.credentialsByToken[c.Token]; exists {
		return credential.Credential{}, fmt.Errorf("credential token already registered")
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Permissions = append([]string(nil), c.Permissions...)

	s.credentials[c.ID] = c
	s.credentialsByToken[c.Token] = c.ID
	return c, nil
}

func (s *Store) UpdateCredential(_ context.Context, c credential.Credential) (credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.credentials[c.ID]
	if !ok {
		return credential.Credential{}, fmt.Errorf("credential %s: %w", c.ID, storage.ErrNotFound)
	}

	if c.Token != original.Token {
		if _, exists := s.credentialsByToken[c.Token]; exists {
			return credential.Credential{}, fmt.Errorf("credential token already registered")
		}
		delete(s.credentialsByToken, original.Token)
		s.credentialsByToken[c.Token] = c.ID
	}

	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	c.Permissions = append([]string(nil), c.Permissions...)

	s.credentials[c.ID] = c
	return c, nil
}

func (s *Store) GetCredential(_ context.Context, id string) (credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[id]
	if !ok {
		return credential.Credential{}, fmt.Errorf("credential %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) GetCredentialByToken(_ context.Context, token string) (credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.credentialsByToken[token]
	if !ok {
		return credential.Credential{}, fmt.Errorf("credential: %w", storage.ErrNotFound)
	}
	return s.credentials[id], nil
}

func (s *Store) ListCredentials(_ context.Context) ([]credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]credential.Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) DeleteCredential(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return fmt.Errorf("credential %s: %w", id, storage.ErrNotFound)
	}
	delete(s.credentialsByToken, c.Token)
	delete(s.credentials, id)
	return nil
}

func (s *Store) ListCustomHeaders(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var result []string
	for _, c := range s.credentials {
		if !c.Enabled || c.Method != credential.MethodCustom || c.CustomHeader == "" {
			continue
		}
		if !seen[c.CustomHeader] {
			seen[c.CustomHeader] = true
			result = append(result, c.CustomHeader)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (s *Store) UpdateCredentialQuota(_ context.Context, id string, used int64, resetAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return fmt.Errorf("credential %s: %w", id, storage.ErrNotFound)
	}
	c.Quota.Used = used
	c.Quota.ResetAt = resetAt
	c.UpdatedAt = time.Now().UTC()
	s.credentials[id] = c
	return nil
}

// ExecutionLogStore implementation --------------------------------------------

func (s *Store) CreateRecord(_ context.Context, rec execution.Record) (execution.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = s.nextIDLocked()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *Store) ListRecords(_ context.Context, routeID string, limit int) ([]execution.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []execution.Record
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if routeID != "" && rec.RouteID != routeID {
			continue
		}
		result = append(result, rec)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func sortRoutes(routes []route.Route) {
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
