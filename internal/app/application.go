package app

import (
	"context"
	"fmt"
	"time"

	"github.com/runlet-dev/runlet/internal/app/services/auth"
	"github.com/runlet-dev/runlet/internal/app/services/credentials"
	"github.com/runlet-dev/runlet/internal/app/services/engine"
	"github.com/runlet-dev/runlet/internal/app/services/logs"
	"github.com/runlet-dev/runlet/internal/app/services/maintenance"
	"github.com/runlet-dev/runlet/internal/app/services/pipeline"
	"github.com/runlet-dev/runlet/internal/app/services/quota"
	"github.com/runlet-dev/runlet/internal/app/services/ratelimit"
	"github.com/runlet-dev/runlet/internal/app/services/routes"
	"github.com/runlet-dev/runlet/internal/app/storage"
	"github.com/runlet-dev/runlet/internal/app/storage/memory"
	"github.com/runlet-dev/runlet/internal/app/system"
	"github.com/runlet-dev/runlet/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Routes        storage.RouteStore
	Credentials   storage.CredentialStore
	ExecutionLogs storage.ExecutionLogStore
}

// Options tunes the application beyond its stores.
type Options struct {
	Stores Stores
	// Limiter overrides the rate-limit backend. Nil selects the in-memory
	// fixed-window limiter.
	Limiter       ratelimit.Limiter
	Engine        engine.Config
	LogQueueDepth int
	SweepInterval time.Duration
}

// Application ties the gateway services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Routes      *routes.Service
	Credentials *credentials.Service
	Quota       *quota.Service
	Auth        *auth.Service
	Limiter     ratelimit.Limiter
	Engine      *engine.Engine
	Recorder    *logs.Recorder
	Pipeline    *pipeline.Pipeline
}

// New builds a fully initialised application.
func New(opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	stores := opts.Stores
	mem := memory.New()
	if stores.Routes == nil {
		stores.Routes = mem
	}
	if stores.Credentials == nil {
		stores.Credentials = mem
	}
	if stores.ExecutionLogs == nil {
		stores.ExecutionLogs = mem
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemory(log)
	}

	routeService := routes.New(stores.Routes, log)
	credService := credentials.New(stores.Credentials, log)
	quotaService := quota.New(stores.Credentials, log)
	authService := auth.New(stores.Credentials, quotaService, log)
	eng := engine.New(opts.Engine, log)
	recorder := logs.NewRecorder(stores.ExecutionLogs, opts.LogQueueDepth, log)
	pipe := pipeline.New(routeService, authService, limiter, eng, recorder, log)

	manager := system.NewManager()
	if err := manager.Register(recorder); err != nil {
		return nil, fmt.Errorf("register %s: %w", recorder.Name(), err)
	}

	// The memory limiter needs periodic sweeping; Redis expires its own keys.
	var sweeper maintenance.Sweeper
	if m, ok := limiter.(*ratelimit.MemoryLimiter); ok {
		sweeper = m
	}
	upkeep := maintenance.New(sweeper, stores.Credentials, opts.SweepInterval, log)
	if err := manager.Register(upkeep); err != nil {
		return nil, fmt.Errorf("register %s: %w", upkeep.Name(), err)
	}

	return &Application{
		manager:     manager,
		log:         log,
		Routes:      routeService,
		Credentials: credService,
		Quota:       quotaService,
		Auth:        authService,
		Limiter:     limiter,
		Engine:      eng,
		Recorder:    recorder,
		Pipeline:    pipe,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
