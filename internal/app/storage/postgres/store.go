// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/runlet-dev/runlet/internal/app/domain/credential"
	"github.com/runlet-dev/runlet/internal/app/domain/execution"
	"github.com/runlet-dev/runlet/internal/app/domain/route"
	"github.com/runlet-dev/runlet/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.RouteStore = (*Store)(nil)
var _ storage.CredentialStore = (*Store)(nil)
var _ storage.ExecutionLogStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- RouteStore -------------------------------------------------------------

func (s *Store) CreateRoute(ctx context.Context, rt route.Route) (route.Route, error) {
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rt.CreatedAt = now
	rt.UpdatedAt = now

	rateLimitJSON, err := json.Marshal(rt.RateLimit)
	if err != nil {
		return route.Route{}, err
	}
	envJSON, err := json.Marshal(rt.Env)
	if err != nil {
		return route.Route{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runlet_routes (id, method, path, language, source, auth_mode, rate_limit, timeout_seconds, env, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rt.ID, rt.Method, rt.Path, string(rt.Language), rt.Source, string(rt.AuthMode),
		rateLimitJSON, rt.TimeoutSeconds, envJSON, rt.Enabled, rt.CreatedAt, rt.UpdatedAt)
	if err != nil {
		return route.Route{}, err
	}
	return rt, nil
}

func (s *Store) UpdateRoute(ctx context.Context, rt route.Route) (route.Route, error) {
	existing, err := s.GetRoute(ctx, rt.ID)
	if err != nil {
		return route.Route{}, err
	}
	rt.CreatedAt = existing.CreatedAt
	rt.UpdatedAt = time.Now().UTC()

	rateLimitJSON, err := json.Marshal(rt.RateLimit)
	if err != nil {
		return route.Route{}, err
	}
	envJSON, err := json.Marshal(rt.Env)
	if err != nil {
		return route.Route{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runlet_routes
		SET method = $2, path = $3, language = $4, source = $5, auth_mode = $6,
		    rate_limit = $7, timeout_seconds = $8, env = $9, enabled = $10, updated_at = $11
		WHERE id = $1
	`, rt.ID, rt.Method, rt.Path, string(rt.Language), rt.Source, string(rt.AuthMode),
		rateLimitJSON, rt.TimeoutSeconds, envJSON, rt.Enabled, rt.UpdatedAt)
	if err != nil {
		return route.Route{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return route.Route{}, storage.ErrNotFound
	}
	return rt, nil
}

func (s *Store) GetRoute(ctx context.Context, id string) (route.Route, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, method, path, language, source, auth_mode, rate_limit, timeout_seconds, env, enabled, created_at, updated_at
		FROM runlet_routes
		WHERE id = $1
	`, id)
	return scanRoute(row)
}

func (s *Store) ListRoutes(ctx context.Context) ([]route.Route, error) {
	return s.queryRoutes(ctx, `
		SELECT id, method, path, language, source, auth_mode, rate_limit, timeout_seconds, env, enabled, created_at, updated_at
		FROM runlet_routes
		ORDER BY created_at
	`)
}

func (s *Store) ListRoutesByMethod(ctx context.Context, method string) ([]route.Route, error) {
	return s.queryRoutes(ctx, `
		SELECT id, method, path, language, source, auth_mode, rate_limit, timeout_seconds, env, enabled, created_at, updated_at
		FROM runlet_routes
		WHERE method = $1
		ORDER BY created_at
	`, method)
}

func (s *Store) DeleteRoute(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM runlet_routes WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoute(row rowScanner) (route.Route, error) {
	var (
		rt           route.Route
		language     string
		authMode     string
		rateLimitRaw []byte
		envRaw       []byte
	)
	err := row.Scan(&rt.ID, &rt.Method, &rt.Path, &language, &rt.Source, &authMode,
		&rateLimitRaw, &rt.TimeoutSeconds, &envRaw, &rt.Enabled, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return route.Route{}, storage.ErrNotFound
		}
		return route.Route{}, err
	}
	rt.Language = route.Language(language)
	rt.AuthMode = route.AuthMode(authMode)
	if len(rateLimitRaw) > 0 {
		_ = json.Unmarshal(rateLimitRaw, &rt.RateLimit)
	}
	if len(envRaw) > 0 {
		_ = json.Unmarshal(envRaw, &rt.Env)
	}
	return rt, nil
}

func (s *Store) queryRoutes(ctx context.Context, query string, args ...any) ([]route.Route, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []route.Route
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rt)
	}
	return result, rows.Err()
}

// --- CredentialStore --------------------------------------------------------

const credentialColumns = `id, name, token, method, custom_header, permissions,
	quota_enabled, quota_limit, quota_period, quota_used, quota_reset_at,
	enabled, expires_at, created_at, updated_at`

func (s *Store) CreateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	permissionsJSON, err := json.Marshal(c.Permissions)
	if err != nil {
		return credential.Credential{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runlet_credentials (id, name, token, method, custom_header, permissions,
			quota_enabled, quota_limit, quota_period, quota_used, quota_reset_at,
			enabled, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, c.ID, c.Name, c.Token, string(c.Method), c.CustomHeader, permissionsJSON,
		c.Quota.Enabled, c.Quota.Limit, string(c.Quota.Period), c.Quota.Used, nullTime(c.Quota.ResetAt),
		c.Enabled, nullTime(c.ExpiresAt), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return credential.Credential{}, err
	}
	return c, nil
}

func (s *Store) UpdateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error) {
	existing, err := s.GetCredential(ctx, c.ID)
	if err != nil {
		return credential.Credential{}, err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	permissionsJSON, err := json.Marshal(c.Permissions)
	if err != nil {
		return credential.Credential{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runlet_credentials
		SET name = $2, token = $3, method = $4, custom_header = $5, permissions = $6,
		    quota_enabled = $7, quota_limit = $8, quota_period = $9, quota_used = $10, quota_reset_at = $11,
		    enabled = $12, expires_at = $13, updated_at = $14
		WHERE id = $1
	`, c.ID, c.Name, c.Token, string(c.Method), c.CustomHeader, permissionsJSON,
		c.Quota.Enabled, c.Quota.Limit, string(c.Quota.Period), c.Quota.Used, nullTime(c.Quota.ResetAt),
		c.Enabled, nullTime(c.ExpiresAt), c.UpdatedAt)
	if err != nil {
		return credential.Credential{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return credential.Credential{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetCredential(ctx context.Context, id string) (credential.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM runlet_credentials
		WHERE id = $1
	`, id)
	return scanCredential(row)
}

func (s *Store) GetCredentialByToken(ctx context.Context, token string) (credential.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM runlet_credentials
		WHERE token = $1
	`, token)
	return scanCredential(row)
}

func (s *Store) ListCredentials(ctx context.Context) ([]credential.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+credentialColumns+`
		FROM runlet_credentials
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []credential.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM runlet_credentials WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListCustomHeaders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT custom_header
		FROM runlet_credentials
		WHERE method = 'custom' AND enabled AND custom_header <> ''
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var headers []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

func (s *Store) UpdateCredentialQuota(ctx context.Context, id string, used int64, resetAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runlet_credentials
		SET quota_used = $2, quota_reset_at = $3, updated_at = $4
		WHERE id = $1
	`, id, used, nullTime(resetAt), time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanCredential(row rowScanner) (credential.Credential, error) {
	var (
		c              credential.Credential
		method         string
		period         string
		permissionsRaw []byte
		quotaResetAt   sql.NullTime
		expiresAt      sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Name, &c.Token, &method, &c.CustomHeader, &permissionsRaw,
		&c.Quota.Enabled, &c.Quota.Limit, &period, &c.Quota.Used, &quotaResetAt,
		&c.Enabled, &expiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return credential.Credential{}, storage.ErrNotFound
		}
		return credential.Credential{}, err
	}
	c.Method = credential.Method(method)
	c.Quota.Period = credential.QuotaPeriod(period)
	if quotaResetAt.Valid {
		c.Quota.ResetAt = quotaResetAt.Time
	}
	if expiresAt.Valid {
		c.ExpiresAt = expiresAt.Time
	}
	if len(permissionsRaw) > 0 {
		_ = json.Unmarshal(permissionsRaw, &c.Permissions)
	}
	return c, nil
}

// --- ExecutionLogStore ------------------------------------------------------

func (s *Store) CreateRecord(ctx context.Context, rec execution.Record) (execution.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runlet_execution_logs (id, route_id, method, path, identifier, credential_id, status, success, duration_ms, log, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rec.ID, rec.RouteID, rec.Method, rec.Path, rec.Identifier, rec.CredentialID,
		rec.Status, rec.Success, rec.Duration.Milliseconds(), rec.Log, rec.Error, rec.CreatedAt)
	if err != nil {
		return execution.Record{}, err
	}
	return rec, nil
}

func (s *Store) ListRecords(ctx context.Context, routeID string, limit int) ([]execution.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, route_id, method, path, identifier, credential_id, status, success, duration_ms, log, error, created_at
		FROM runlet_execution_logs
		WHERE ($1 = '' OR route_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, routeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []execution.Record
	for rows.Next() {
		var (
			rec        execution.Record
			durationMS int64
		)
		if err := rows.Scan(&rec.ID, &rec.RouteID, &rec.Method, &rec.Path, &rec.Identifier, &rec.CredentialID,
			&rec.Status, &rec.Success, &durationMS, &rec.Log, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		result = append(result, rec)
	}
	return result, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
