package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/application/usecase/userstore"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
)

// handles HTTP server runtime integration
type httpRuntime struct {
	store    *userstore.Store
	identity Identifier
	health   HealthFunc
	exporter http.Handler
	logger   ports.Logger
	metrics  ports.Metrics
	config   *config.HTTPConfig
	router   *gin.Engine
	server   *http.Server
}

// NewHTTPRuntime builds the gin router serving the file API
func NewHTTPRuntime(cfg *config.HTTPConfig, app *Application, obs ports.Observability) (*httpRuntime, error) {
	logger, metrics, err := obs.ComponentsScoped("runtime.http")
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: observability was not initialized: %w", err)
	}
	if app == nil || app.Store == nil {
		return nil, fmt.Errorf("failed to create runtime: store is required")
	}
	if app.Identity == nil {
		return nil, fmt.Errorf("failed to create runtime: identity resolver is required")
	}

	httpRuntime := &httpRuntime{
		store:    app.Store,
		identity: app.Identity,
		health:   app.Health,
		exporter: app.MetricsHandler,
		logger:   logger,
		metrics:  metrics,
		config:   cfg,
	}
	httpRuntime.router = httpRuntime.routes()
	return httpRuntime, nil
}

// Handler exposes the router, mainly for tests
func (httpRuntime *httpRuntime) Handler() http.Handler {
	return httpRuntime.router
}

// Start begins the HTTP server
func (httpRuntime *httpRuntime) Start() error {
	httpRuntime.server = &http.Server{
		Addr:         httpRuntime.config.Addr,
		Handler:      httpRuntime.router,
		ReadTimeout:  httpRuntime.config.Timeout,
		WriteTimeout: httpRuntime.config.Timeout,
	}

	httpRuntime.logStartup()

	if err := httpRuntime.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server
func (httpRuntime *httpRuntime) Stop(ctx context.Context) error {
	if httpRuntime.server == nil {
		return nil
	}

	httpRuntime.logger.Info("Shutting down HTTP server")
	return httpRuntime.server.Shutdown(ctx)
}

func (httpRuntime *httpRuntime) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), httpRuntime.trackRequest())

	router.GET("/healthz", httpRuntime.handleHealth)
	if httpRuntime.exporter != nil {
		router.GET("/metrics", gin.WrapH(httpRuntime.exporter))
	}

	api := router.Group("/api", httpRuntime.requireUser())
	api.GET("/files", httpRuntime.asUser(httpRuntime.handleList))
	api.POST("/files", httpRuntime.asUser(httpRuntime.handleUpload))
	api.DELETE("/files/*path", httpRuntime.asUser(httpRuntime.handleDelete))
	api.GET("/objects/*key", httpRuntime.asUser(httpRuntime.handleGetObject))
	api.POST("/folders", httpRuntime.asUser(httpRuntime.handleCreateFolder))
	api.DELETE("/folders/*path", httpRuntime.asUser(httpRuntime.handleDeleteFolder))
	api.GET("/results/*path", httpRuntime.asUser(httpRuntime.handleResultKeys))

	images := router.Group("/predictionimages", httpRuntime.requireUser())
	images.GET("/masks/:filename", httpRuntime.asUser(httpRuntime.handleMask))

	results := router.Group("/predictionresults", httpRuntime.requireUser())
	results.GET("/masks/:filename", httpRuntime.asUser(httpRuntime.handleMask))
	results.GET("/widthinfojsons/:filename", httpRuntime.asUser(httpRuntime.handleWidthInfo))

	return router
}

// --- Middleware ---

// trackRequest assigns a request id, applies the configured timeout and
// records the outcome once the handler chain has run.
func (httpRuntime *httpRuntime) trackRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		if httpRuntime.config.Timeout > 0 {
			ctx, cancel := context.WithTimeout(c.Request.Context(), httpRuntime.config.Timeout)
			defer cancel()
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)

		httpRuntime.metrics.IncrementCounter("http.requests", map[string]string{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		})
		httpRuntime.metrics.RecordHistogram("http.request_duration_ms",
			float64(duration.Milliseconds()), map[string]string{"route": route})

		httpRuntime.logger.Info("HTTP request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", duration.Milliseconds())
	}
}

// requireUser resolves the caller from the gateway headers and rejects
// anonymous requests.
func (httpRuntime *httpRuntime) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := httpRuntime.identity.Identify(c.Request.Header)
		if err != nil {
			httpRuntime.sendUnauthenticated(c)
			return
		}
		c.Request = c.Request.WithContext(ports.WithUser(c.Request.Context(), user))
		c.Next()
	}
}

// --- Responses ---

func (httpRuntime *httpRuntime) sendUnauthenticated(c *gin.Context) {
	httpRuntime.metrics.IncrementCounter("http.unauthenticated", nil)
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "Please log in"})
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Stage string `json:"stage,omitempty"`
}

// statusFor maps a store error code to an HTTP status
func statusFor(code string) int {
	switch code {
	case userstore.CodeForbidden:
		return http.StatusForbidden
	case userstore.CodeNotFound:
		return http.StatusNotFound
	case userstore.CodeCascadeAborted:
		return http.StatusConflict
	case userstore.CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func (httpRuntime *httpRuntime) sendStoreError(c *gin.Context, err error) {
	code := userstore.CodeOf(err)
	body := errorBody{Error: err.Error(), Code: code}

	var storeErr *userstore.Error
	if errors.As(err, &storeErr) {
		body.Error = storeErr.Message
		body.Stage = string(storeErr.Stage)
	}

	if code == userstore.CodeBackendUnavailable {
		httpRuntime.logger.Error("Request failed",
			"request_id", c.GetString(requestIDKey),
			"path", c.Request.URL.Path,
			"error", err)
	}
	c.JSON(statusFor(code), body)
}

func (httpRuntime *httpRuntime) sendBadRequest(c *gin.Context, err error) {
	httpRuntime.metrics.IncrementCounter("http.bad_request", nil)
	c.JSON(http.StatusBadRequest, errorBody{Error: err.Error(), Code: userstore.CodeInvalidRequest})
}

// --- Logging Helpers ---

func (httpRuntime *httpRuntime) logStartup() {
	httpRuntime.logger.Info("Starting HTTP adapter",
		"address", httpRuntime.config.Addr,
		"max_upload_size", httpRuntime.config.MaxUploadSize)
	httpRuntime.metrics.IncrementCounter("http.starts", nil)
}
