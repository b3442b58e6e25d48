// Package bootstrap wires configuration, observability, storage and the
// user-scoped store into the pieces the binaries run.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hicsail/kidney-web/internal/application/handler"
	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/application/usecase/userstore"
	"github.com/hicsail/kidney-web/internal/infrastructure/auth"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
	"github.com/hicsail/kidney-web/internal/infrastructure/observability"
	"github.com/hicsail/kidney-web/internal/infrastructure/runtime"
	"github.com/hicsail/kidney-web/internal/infrastructure/storage"
)

// Dependencies holds all initialized infrastructure components
type Dependencies struct {
	Config        *config.Config
	Registry      *prometheus.Registry
	Observability ports.Observability
	Storage       ports.Storage
	Bucket        string
	Logger        ports.Logger
	Metrics       ports.Metrics
}

// InitializeDependencies sets up observability and the storage backend
func InitializeDependencies(cfg *config.Config) (*Dependencies, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obs, err := observability.CreateObservability(cfg, registry)
	if err != nil {
		return nil, err
	}

	logger, metrics, err := obs.ComponentsScoped("main")
	if err != nil {
		return nil, err
	}
	logStartup(cfg, logger, metrics)

	store, err := storage.CreateStorage(cfg, obs)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		metrics.IncrementCounter("init.failures", map[string]string{"stage": "storage"})
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Info("Storage initialized successfully", "adapter", cfg.Adapters.Storage)

	return &Dependencies{
		Config:        cfg,
		Registry:      registry,
		Observability: obs,
		Storage:       store,
		Bucket:        storage.Bucket(cfg),
		Logger:        logger,
		Metrics:       metrics,
	}, nil
}

// BuildStore assembles the user-scoped store over the configured backend
func BuildStore(deps *Dependencies) (*userstore.Store, error) {
	return userstore.New(deps.Storage, deps.Bucket, deps.Observability)
}

// BuildHandler assembles the command handler used by lambda and the CLI
func BuildHandler(deps *Dependencies) (ports.Handler, error) {
	store, err := BuildStore(deps)
	if err != nil {
		return nil, err
	}
	authn, err := auth.NewHeaderAuthenticator(deps.Config.Auth, deps.Observability)
	if err != nil {
		return nil, err
	}
	return buildHandler(deps, store, authn)
}

// buildHandler wraps the files handler with panic recovery and retries on
// transient backend failures.
func buildHandler(deps *Dependencies, store *userstore.Store, authn ports.Authenticator) (ports.Handler, error) {
	files, err := handler.NewFilesHandler(store, authn, deps.Observability)
	if err != nil {
		return nil, err
	}
	logger, metrics, err := deps.Observability.ComponentsScoped("handler.middleware")
	if err != nil {
		return nil, err
	}
	return handler.Chain(files,
		handler.Recovery(logger, metrics),
		handler.Retry(deps.Config.Retry, logger, metrics),
	), nil
}

// BuildApplication assembles everything a runtime serves
func BuildApplication(deps *Dependencies) (*runtime.Application, error) {
	store, err := BuildStore(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}
	identity, err := auth.NewHeaderAuthenticator(deps.Config.Auth, deps.Observability)
	if err != nil {
		return nil, fmt.Errorf("failed to build authenticator: %w", err)
	}
	h, err := buildHandler(deps, store, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to build handler: %w", err)
	}

	return &runtime.Application{
		Store:    store,
		Handler:  h,
		Identity: identity,
		Health: func(ctx context.Context) error {
			return storage.HealthCheck(ctx, deps.Storage, deps.Bucket)
		},
		MetricsHandler: metricsHandler(deps),
	}, nil
}

func metricsHandler(deps *Dependencies) http.Handler {
	if deps.Config.Adapters.Metrics != "prometheus" {
		return nil
	}
	return promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry})
}

// Sync flushes buffered log entries, if the logger buffers
func (deps *Dependencies) Sync() {
	root, _, err := deps.Observability.Components()
	if err != nil {
		return
	}
	if s, ok := root.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

func logStartup(cfg *config.Config, logger ports.Logger, metrics ports.Metrics) {
	logger.Info("Starting application",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
		"runtime", cfg.Adapters.Runtime,
		"storage", cfg.Adapters.Storage)
	metrics.IncrementCounter("application.starts", nil)
}
