package observability

import (
	"fmt"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
	"github.com/hicsail/kidney-web/internal/infrastructure/observability/adapters/noop"
	promAdapter "github.com/hicsail/kidney-web/internal/infrastructure/observability/adapters/prometheus"
	"github.com/hicsail/kidney-web/internal/infrastructure/observability/adapters/stdout"
	"github.com/prometheus/client_golang/prometheus"
)

type observability struct {
	config  *config.Config
	logger  ports.Logger
	metrics ports.Metrics
}

// CreateObservability builds the logger and metrics selected by cfg.
// Prometheus collectors are registered on registerer, which may be nil
// when metrics are disabled.
func CreateObservability(cfg *config.Config, registerer prometheus.Registerer) (ports.Observability, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	logger, metrics, err := createObservability(cfg, registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to create observability: %w", err)
	}

	return &observability{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func createObservability(cfg *config.Config, registerer prometheus.Registerer) (ports.Logger, ports.Metrics, error) {
	var logger ports.Logger
	switch cfg.Adapters.Logger {
	case "stdout":
		l, err := stdout.NewLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout logger: %w", err)
		}
		logger = l
	default:
		return nil, nil, fmt.Errorf("unknown logger adapter: %s", cfg.Adapters.Logger)
	}

	var metrics ports.Metrics
	switch cfg.Adapters.Metrics {
	case "prometheus":
		if registerer == nil {
			return nil, nil, fmt.Errorf("prometheus metrics need a registerer")
		}
		metrics = promAdapter.NewMetrics(cfg.ServiceName, registerer)
	case "noop":
		metrics = noop.NewMetrics()
	default:
		return nil, nil, fmt.Errorf("unknown metrics adapter: %s", cfg.Adapters.Metrics)
	}

	return logger, metrics, nil
}

// Components returns logger and metrics without any scoping
func (obs *observability) Components() (ports.Logger, ports.Metrics, error) {
	if obs.logger == nil || obs.metrics == nil {
		return nil, nil, fmt.Errorf("observability not initialized")
	}
	return obs.logger, obs.metrics, nil
}

// ComponentsScoped returns logger and metrics scoped to a specific component
func (obs *observability) ComponentsScoped(component string) (ports.Logger, ports.Metrics, error) {
	if obs.logger == nil || obs.metrics == nil {
		return nil, nil, fmt.Errorf("observability not initialized")
	}
	return obs.getScopedLogger(component), obs.getScopedMetrics(component), nil
}

// LoggerScoped returns a logger scoped to a specific component
func (obs *observability) LoggerScoped(component string) (ports.Logger, error) {
	if obs.logger == nil {
		return nil, fmt.Errorf("logger not initialized")
	}
	return obs.getScopedLogger(component), nil
}

// MetricsScoped returns metrics scoped to a specific component
func (obs *observability) MetricsScoped(component string) (ports.Metrics, error) {
	if obs.metrics == nil {
		return nil, fmt.Errorf("metrics not initialized")
	}
	return obs.getScopedMetrics(component), nil
}

func (obs *observability) getScopedLogger(component string) ports.Logger {
	return obs.logger.WithFields(map[string]interface{}{
		"service":   obs.config.ServiceName,
		"version":   obs.config.Version,
		"env":       obs.config.Environment,
		"component": component,
	})
}

// Version and env are constant per process, so only the component becomes a
// metric label.
func (obs *observability) getScopedMetrics(component string) ports.Metrics {
	return obs.metrics.WithTags(map[string]string{
		"component": component,
	})
}
