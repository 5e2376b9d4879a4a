// Package pipeline orchestrates admission control and execution for inbound
// gateway requests.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/runlet-dev/runlet/internal/app/domain/execution"
	"github.com/runlet-dev/runlet/internal/app/domain/route"
	"github.com/runlet-dev/runlet/internal/app/metrics"
	"github.com/runlet-dev/runlet/internal/app/services/auth"
	"github.com/runlet-dev/runlet/internal/app/services/engine"
	"github.com/runlet-dev/runlet/internal/app/services/logs"
	"github.com/runlet-dev/runlet/internal/app/services/ratelimit"
	"github.com/runlet-dev/runlet/internal/app/services/routes"
	"github.com/runlet-dev/runlet/pkg/logger"
)

// maxBodyBytes caps the request body handed to user code.
const maxBodyBytes = 5 << 20

// Executor runs route source against a request snapshot. Satisfied by
// engine.Engine.
type Executor interface {
	Execute(ctx context.Context, lang route.Language, source string, ectx execution.Context, timeout time.Duration) (execution.Result, error)
}

// Pipeline resolves, admits and executes gateway requests. Admission
// failures short-circuit before any process is spawned.
type Pipeline struct {
	routes   *routes.Service
	auth     *auth.Service
	limiter  ratelimit.Limiter
	engine   Executor
	recorder *logs.Recorder
	log      *logger.Logger
}

// New constructs a pipeline.
func New(routesSvc *routes.Service, authSvc *auth.Service, limiter ratelimit.Limiter, eng Executor, recorder *logs.Recorder, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewDefault("pipeline")
	}
	return &Pipeline{
		routes:   routesSvc,
		auth:     authSvc,
		limiter:  limiter,
		engine:   eng,
		recorder: recorder,
		log:      log,
	}
}

// ServeHTTP implements http.Handler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	release := metrics.IncInFlight()
	defer release()

	status := p.handle(w, r, start)
	metrics.ObserveRequest(r.Method, status, time.Since(start))
}

// handle runs the admission chain and execution, returning the emitted
// status code.
func (p *Pipeline) handle(w http.ResponseWriter, r *http.Request, start time.Time) int {
	ctx := r.Context()

	match, err := p.routes.Resolve(ctx, r.Method, r.URL.Path)
	if err != nil {
		switch {
		case errors.Is(err, routes.ErrRouteDisabled):
			metrics.RecordRejection("route_disabled")
			return p.reject(w, r, start, execution.Record{Method: r.Method, Path: r.URL.Path},
				http.StatusServiceUnavailable, "route disabled")
		case errors.Is(err, routes.ErrNoRoute):
			metrics.RecordRejection("route_not_found")
			return p.reject(w, r, start, execution.Record{Method: r.Method, Path: r.URL.Path},
				http.StatusNotFound, "route not found")
		default:
			p.log.WithContext(ctx).WithError(err).Error("resolve route")
			return p.reject(w, r, start, execution.Record{Method: r.Method, Path: r.URL.Path},
				http.StatusInternalServerError, "internal error")
		}
	}

	rt := match.Route
	rec := execution.Record{
		RouteID: rt.ID,
		Method:  r.Method,
		Path:    r.URL.Path,
	}

	outcome, err := p.auth.Authorize(ctx, r, rt)
	if err != nil {
		return p.rejectAuth(w, r, start, rec, err)
	}
	if outcome.Credential != nil {
		rec.CredentialID = outcome.Credential.ID
	}

	identifier := auth.Identifier(rt, r, outcome.Credential)
	rec.Identifier = identifier

	if rt.RateLimit.Enabled {
		decision, err := p.limiter.Check(ctx, identifier, rt.ID, rt.RateLimit.Requests, rt.RateLimit.WindowSeconds)
		if err != nil {
			p.log.WithContext(ctx).WithError(err).Error("rate limit check")
			return p.reject(w, r, start, rec, http.StatusInternalServerError, "internal error")
		}
		setRateLimitHeaders(w, decision)
		if !decision.Allowed {
			metrics.RecordRejection("rate_limit")
			w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter/time.Second)))
			return p.reject(w, r, start, rec, http.StatusTooManyRequests, "rate limit exceeded")
		}
	}

	ectx, err := buildContext(r, match.Params, rt.Env)
	if err != nil {
		p.log.WithContext(ctx).WithError(err).Warn("read request body")
		return p.reject(w, r, start, rec, http.StatusBadRequest, "unreadable request body")
	}

	timeout := time.Duration(rt.TimeoutSeconds) * time.Second
	result, err := p.engine.Execute(ctx, rt.Language, rt.Source, ectx, timeout)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrUnsupportedLanguage):
			metrics.RecordRejection("unsupported_language")
			return p.reject(w, r, start, rec, http.StatusBadRequest, fmt.Sprintf("unsupported language %q", rt.Language))
		case errors.Is(err, engine.ErrLanguageDisabled):
			metrics.RecordRejection("language_disabled")
			return p.reject(w, r, start, rec, http.StatusServiceUnavailable, fmt.Sprintf("language %q is disabled", rt.Language))
		default:
			p.log.WithContext(ctx).WithError(err).Error("execute route")
			return p.reject(w, r, start, rec, http.StatusInternalServerError, "internal error")
		}
	}

	outcomeLabel := "success"
	if !result.Success {
		outcomeLabel = "failure"
	}
	metrics.ObserveExecution(string(rt.Language), outcomeLabel, result.Duration)

	rec.Status = result.Status
	rec.Success = result.Success
	rec.Duration = result.Duration
	rec.Log = result.Log
	rec.Error = result.Error
	p.record(rec, start)

	writeResult(w, result, start)
	return result.Status
}

func (p *Pipeline) rejectAuth(w http.ResponseWriter, r *http.Request, start time.Time, rec execution.Record, err error) int {
	var quotaErr *auth.QuotaExceededError
	switch {
	case errors.As(err, &quotaErr):
		metrics.RecordRejection("quota")
		d := quotaErr.Decision
		w.Header().Set("X-Quota-Limit", strconv.FormatInt(d.Limit, 10))
		w.Header().Set("X-Quota-Used", strconv.FormatInt(d.Used, 10))
		w.Header().Set("X-Quota-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if wait := time.Until(d.ResetAt); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait/time.Second)+1))
		}
		return p.reject(w, r, start, rec, http.StatusTooManyRequests, "quota exceeded")
	case errors.Is(err, auth.ErrCredentialMissing):
		metrics.RecordRejection("auth")
		return p.reject(w, r, start, rec, http.StatusUnauthorized, "credential required")
	case errors.Is(err, auth.ErrCredentialInvalid):
		metrics.RecordRejection("auth")
		return p.reject(w, r, start, rec, http.StatusUnauthorized, "invalid credential")
	case errors.Is(err, auth.ErrCredentialExpired):
		metrics.RecordRejection("auth")
		return p.reject(w, r, start, rec, http.StatusUnauthorized, "credential expired")
	case errors.Is(err, auth.ErrPermissionDenied):
		metrics.RecordRejection("permission")
		return p.reject(w, r, start, rec, http.StatusForbidden, "permission denied")
	default:
		p.log.WithContext(r.Context()).WithError(err).Error("authorize request")
		return p.reject(w, r, start, rec, http.StatusInternalServerError, "internal error")
	}
}

// reject emits a JSON error response and records the outcome.
func (p *Pipeline) reject(w http.ResponseWriter, _ *http.Request, start time.Time, rec execution.Record, status int, msg string) int {
	rec.Status = status
	rec.Error = msg
	p.record(rec, start)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Response-Time", durationMillis(time.Since(start)))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
	return status
}

func (p *Pipeline) record(rec execution.Record, start time.Time) {
	if rec.Duration == 0 {
		rec.Duration = time.Since(start)
	}
	rec.CreatedAt = time.Now().UTC()
	p.recorder.Record(rec)
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// buildContext snapshots the request for the harness.
func buildContext(r *http.Request, params, env map[string]string) (execution.Context, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return execution.Context{}, err
	}

	query := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}

	headers := make(map[string]string)
	for k, vs := range r.Header {
		headers[k] = strings.Join(vs, ", ")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	if params == nil {
		params = map[string]string{}
	}

	return execution.Context{
		Method:  r.Method,
		Path:    r.URL.Path,
		URL:     scheme + "://" + r.Host + r.URL.RequestURI(),
		Params:  params,
		Query:   query,
		Body:    string(body),
		Headers: headers,
		Env:     env,
	}, nil
}

func writeResult(w http.ResponseWriter, result execution.Result, start time.Time) {
	for k, v := range result.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("X-Execution-Time", durationMillis(result.Duration))
	w.Header().Set("X-Response-Time", durationMillis(time.Since(start)))

	switch body := result.Body.(type) {
	case nil:
		w.WriteHeader(result.Status)
	case string:
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		w.WriteHeader(result.Status)
		_, _ = io.WriteString(w, body)
	default:
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(result.Status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func durationMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}
