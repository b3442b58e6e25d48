// Package auth resolves request identity from headers set by the upstream
// auth gateway. Credentials are never inspected here.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
)

const defaultRole = "user"

// HeaderAuthenticator implements ports.Authenticator over gateway headers.
type HeaderAuthenticator struct {
	cfg     config.AuthConfig
	logger  ports.Logger
	metrics ports.Metrics
}

func NewHeaderAuthenticator(cfg config.AuthConfig, obs ports.Observability) (*HeaderAuthenticator, error) {
	if cfg.UserHeader == "" {
		return nil, fmt.Errorf("user header is required")
	}
	logger, metrics, err := obs.ComponentsScoped("auth.header")
	if err != nil {
		return nil, fmt.Errorf("failed to scope observability: %w", err)
	}
	return &HeaderAuthenticator{cfg: cfg, logger: logger, metrics: metrics}, nil
}

// Identify builds the user described by header. It fails with
// ports.ErrUnauthenticated when the user header is missing or blank.
func (a *HeaderAuthenticator) Identify(header http.Header) (*ports.User, error) {
	id := strings.TrimSpace(header.Get(a.cfg.UserHeader))
	if id == "" {
		a.logger.Info("Request without identity", "header", a.cfg.UserHeader)
		a.metrics.IncrementCounter("auth.missing_identity", nil)
		return nil, ports.ErrUnauthenticated
	}

	user := &ports.User{
		ID:       id,
		Email:    a.header(header, a.cfg.EmailHeader),
		Fullname: a.header(header, a.cfg.NameHeader),
		Role:     a.header(header, a.cfg.RoleHeader),
	}
	if user.Role == "" {
		user.Role = defaultRole
	}
	a.metrics.IncrementCounter("auth.identified", nil)
	return user, nil
}

// CurrentUser returns the user attached to ctx by the transport layer.
func (a *HeaderAuthenticator) CurrentUser(ctx context.Context) (*ports.User, error) {
	if user, ok := ports.UserFromContext(ctx); ok {
		return user, nil
	}
	a.logger.Info("No user attached to request context")
	return nil, ports.ErrUnauthenticated
}

func (a *HeaderAuthenticator) header(h http.Header, name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(h.Get(name))
}
