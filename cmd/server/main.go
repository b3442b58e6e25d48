package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/bootstrap"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
	"github.com/hicsail/kidney-web/internal/infrastructure/runtime"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := loadConfiguration()

	deps := initializeDependencies(cfg)
	defer deps.Sync()

	rt := buildApplication(cfg, deps)

	startApplication(rt, deps)
}

// loadConfiguration loads and validates the application configuration
func loadConfiguration() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

// initializeDependencies sets up all infrastructure dependencies
func initializeDependencies(cfg *config.Config) *bootstrap.Dependencies {
	deps, err := bootstrap.InitializeDependencies(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize dependencies: %v", err)
	}
	return deps
}

// buildApplication assembles the application layers and the runtime serving them
func buildApplication(cfg *config.Config, deps *bootstrap.Dependencies) ports.Runtime {
	app, err := bootstrap.BuildApplication(deps)
	if err != nil {
		deps.Logger.Error("Failed to build application", "error", err)
		deps.Metrics.IncrementCounter("init.failures", map[string]string{"stage": "application"})
		log.Fatalf("Failed to build application: %v", err)
	}

	rt, err := runtime.Create(cfg, app, deps.Observability)
	if err != nil {
		deps.Logger.Error("Failed to create runtime", "error", err)
		deps.Metrics.IncrementCounter("init.failures", map[string]string{"stage": "runtime"})
		log.Fatalf("Failed to create runtime: %v", err)
	}
	return rt
}

// startApplication runs the runtime until it fails or a shutdown signal arrives
func startApplication(rt ports.Runtime, deps *bootstrap.Dependencies) {
	deps.Logger.Info("Starting runtime", "runtime", deps.Config.Adapters.Runtime)
	deps.Metrics.IncrementCounter("runtime.starts", nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			deps.Logger.Error("Runtime stopped with error", "error", err)
			deps.Metrics.IncrementCounter("start.failures", nil)
			deps.Sync()
			log.Fatalf("Failed to start: %v", err)
		}
	case sig := <-sigCh:
		deps.Logger.Info("Shutdown signal received", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.Stop(ctx); err != nil {
			deps.Logger.Error("Graceful shutdown failed", "error", err)
		}
	}
	deps.Logger.Info("Application stopped")
}
