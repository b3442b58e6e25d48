// Package runtime hosts the platform entry points serving the file API.
package runtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/application/usecase/userstore"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
)

// Identifier resolves the caller of an HTTP request from its headers and
// hands it back to route handlers through the request context.
type Identifier interface {
	ports.Authenticator
	Identify(header http.Header) (*ports.User, error)
}

// HealthFunc reports whether the service can reach its dependencies
type HealthFunc func(ctx context.Context) error

// Application is what a runtime serves
type Application struct {
	Store          *userstore.Store
	Handler        ports.Handler
	Identity       Identifier
	Health         HealthFunc
	MetricsHandler http.Handler
}

// Create creates the appropriate runtime based on configuration
func Create(cfg *config.Config, app *Application, obs ports.Observability) (ports.Runtime, error) {
	switch cfg.Adapters.Runtime {
	case "lambda":
		if app == nil {
			return nil, fmt.Errorf("failed to create runtime: application is required")
		}
		rt, err := NewLambdaRuntime(&cfg.Lambda, app.Handler, obs)
		if err != nil {
			return nil, err
		}
		return rt, nil
	case "http":
		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		rt, err := NewHTTPRuntime(&cfg.HTTP, app, obs)
		if err != nil {
			return nil, err
		}
		return rt, nil
	default:
		return nil, fmt.Errorf("unsupported runtime adapter: %s", cfg.Adapters.Runtime)
	}
}
