package handler

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/application/usecase/userstore"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
)

// CodeInternal is returned when the wrapped handler panics.
const CodeInternal = "INTERNAL_ERROR"

// HandlerFunc adapts a function to ports.Handler
type HandlerFunc func(ctx context.Context, req ports.RuntimeRequest) (ports.RuntimeResponse, error)

func (f HandlerFunc) Handle(ctx context.Context, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
	return f(ctx, req)
}

// Middleware decorates a handler
type Middleware func(next ports.Handler) ports.Handler

// Chain applies middlewares so the first one listed runs outermost.
func Chain(h ports.Handler, middlewares ...Middleware) ports.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Recovery turns a panic in next into an INTERNAL_ERROR response.
func Recovery(logger ports.Logger, metrics ports.Metrics) Middleware {
	return func(next ports.Handler) ports.Handler {
		return HandlerFunc(func(ctx context.Context, req ports.RuntimeRequest) (resp ports.RuntimeResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Panic recovered",
						"request_id", req.ID,
						"type", req.Type,
						"panic", fmt.Sprintf("%v", r),
						"stack", string(debug.Stack()))
					metrics.IncrementCounter("handler.panics", map[string]string{"type": req.Type})

					resp = errorResponse(CodeInternal, "An internal error occurred")
					err = nil
				}
			}()

			return next.Handle(ctx, req)
		})
	}
}

// Retry re-runs requests whose response code marks a transient backend
// failure. MaxAttempts counts retries after the first try.
func Retry(cfg config.RetryConfig, logger ports.Logger, metrics ports.Metrics) Middleware {
	return func(next ports.Handler) ports.Handler {
		return HandlerFunc(func(ctx context.Context, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
			var resp ports.RuntimeResponse
			var err error

			for attempt := 0; attempt <= cfg.MaxAttempts; attempt++ {
				resp, err = next.Handle(ctx, req)
				if err != nil || resp.Success || !isRetryable(resp.Code) {
					return resp, err
				}
				if attempt == cfg.MaxAttempts {
					break
				}

				backoff := calculateBackoff(attempt, cfg)
				logger.Warn("Retrying request",
					"request_id", req.ID,
					"type", req.Type,
					"code", resp.Code,
					"attempt", attempt+1,
					"backoff_ms", backoff.Milliseconds())
				metrics.IncrementCounter("handler.retries", map[string]string{"type": req.Type})

				timer := time.NewTimer(backoff)
				select {
				case <-ctx.Done():
					timer.Stop()
					return resp, nil
				case <-timer.C:
				}
			}

			if cfg.MaxAttempts > 0 {
				resp.Error = fmt.Sprintf("failed after %d retries: %s", cfg.MaxAttempts, resp.Error)
			}
			return resp, nil
		})
	}
}

func isRetryable(code string) bool {
	switch code {
	case userstore.CodeBackendUnavailable, userstore.CodeCascadeAborted:
		return true
	}
	return false
}

func calculateBackoff(attempt int, cfg config.RetryConfig) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt))
	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}
