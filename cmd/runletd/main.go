// Command runletd runs the runlet gateway: the admin API, the metrics and
// health endpoints, and the script-backed user routes.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/runlet-dev/runlet/internal/app"
	"github.com/runlet-dev/runlet/internal/app/domain/route"
	"github.com/runlet-dev/runlet/internal/app/httpapi"
	"github.com/runlet-dev/runlet/internal/app/services/engine"
	"github.com/runlet-dev/runlet/internal/app/services/ratelimit"
	"github.com/runlet-dev/runlet/internal/app/storage/postgres"
	"github.com/runlet-dev/runlet/internal/config"
	"github.com/runlet-dev/runlet/internal/platform/migrations"
	"github.com/runlet-dev/runlet/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/runlet.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "runletd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Service: "runletd",
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
	})

	opts := app.Options{
		Engine:        engineConfig(cfg),
		LogQueueDepth: cfg.Maintenance.LogQueueDepth,
		SweepInterval: cfg.Maintenance.SweepInterval,
	}

	if cfg.Storage.Driver == "postgres" {
		db, err := sql.Open("postgres", cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if err := migrations.Apply(context.Background(), db); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		store := postgres.New(db)
		opts.Stores = app.Stores{Routes: store, Credentials: store, ExecutionLogs: store}
		log.Info("storage backend: postgres")
	} else {
		log.Info("storage backend: memory")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		opts.Limiter = ratelimit.NewRedis(client, "runlet", log)
		log.Info("rate limit backend: redis")
	}

	application, err := app.New(opts, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpapi.NewRouter(application, cfg, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	return nil
}

func engineConfig(cfg *config.Config) engine.Config {
	disabled := make(map[route.Language]bool, len(cfg.Engine.DisabledLanguages))
	for _, lang := range cfg.Engine.DisabledLanguages {
		disabled[route.Language(lang)] = true
	}
	interpreters := make(map[route.Language]string, len(cfg.Engine.Interpreters))
	for lang, bin := range cfg.Engine.Interpreters {
		interpreters[route.Language(lang)] = bin
	}
	return engine.Config{
		Disabled:       disabled,
		Interpreters:   interpreters,
		DefaultTimeout: cfg.Engine.DefaultTimeout,
		WorkDir:        cfg.Engine.WorkDir,
	}
}
