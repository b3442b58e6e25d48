package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"github.com/hicsail/kidney-web/internal/application/handler"
	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
)

// handles Lambda runtime integration
type lambdaRuntime struct {
	handler ports.Handler
	logger  ports.Logger
	metrics ports.Metrics
	config  *config.LambdaConfig
}

// NewLambdaRuntime creates a new Lambda runtime
func NewLambdaRuntime(cfg *config.LambdaConfig, h ports.Handler, obs ports.Observability) (*lambdaRuntime, error) {
	logger, metrics, err := obs.ComponentsScoped("runtime.lambda")
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: observability was not initialized: %w", err)
	}
	if h == nil {
		return nil, fmt.Errorf("failed to create runtime: handler is required")
	}

	return &lambdaRuntime{
		handler: h,
		logger:  logger,
		metrics: metrics,
		config:  cfg,
	}, nil
}

// Start begins the Lambda runtime
func (runtime *lambdaRuntime) Start() error {
	runtime.logStartup()
	lambda.Start(runtime.handleEvent)
	return nil
}

// Stop is a no-op; the Lambda service owns the process lifecycle
func (runtime *lambdaRuntime) Stop(ctx context.Context) error {
	return nil
}

// handleEvent is the main Lambda entry point
func (runtime *lambdaRuntime) handleEvent(ctx context.Context, event json.RawMessage) (interface{}, error) {
	invocation := runtime.trackInvocation(event)
	defer invocation.recordDuration()

	return runtime.routeEvent(ctx, event, invocation)
}

// routeEvent determines event type and routes to appropriate handler
func (runtime *lambdaRuntime) routeEvent(ctx context.Context, event json.RawMessage, invocation *invocationTracker) (interface{}, error) {
	// API Gateway proxy integration
	if proxy, ok := runtime.tryParseProxyEvent(event); ok {
		invocation.eventType = "apigateway"
		return runtime.processProxyEvent(ctx, proxy)
	}

	// Direct invocation
	if request, ok := runtime.tryParseDirectRequest(event); ok {
		invocation.eventType = "direct"
		return runtime.processDirectRequest(ctx, request)
	}

	runtime.recordUnsupportedEvent()
	return nil, fmt.Errorf("unsupported event type")
}

// --- API Gateway Processing ---

// processProxyEvent runs the command carried in the proxy body for the user
// the authorizer put in the request context.
func (runtime *lambdaRuntime) processProxyEvent(ctx context.Context, proxy events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var request ports.RuntimeRequest
	if err := json.Unmarshal([]byte(proxy.Body), &request); err != nil {
		runtime.metrics.IncrementCounter("lambda.bad_request", nil)
		return proxyResponse(http.StatusBadRequest, ports.RuntimeResponse{Error: "invalid JSON payload"}), nil
	}

	runtime.enrichRequest(&request, "apigateway")
	request.Metadata["apigateway_request_id"] = proxy.RequestContext.RequestID
	delete(request.Metadata, handler.MetadataUserID)
	if userID, ok := proxy.RequestContext.Authorizer[handler.MetadataUserID].(string); ok && userID != "" {
		request.Metadata[handler.MetadataUserID] = userID
	}

	resp, err := runtime.handle(ctx, request)
	if err != nil {
		return proxyResponse(http.StatusInternalServerError, ports.RuntimeResponse{Error: err.Error()}), nil
	}
	return proxyResponse(proxyStatus(resp), resp), nil
}

func proxyStatus(resp ports.RuntimeResponse) int {
	if resp.Success {
		return http.StatusOK
	}
	if resp.Code == handler.CodeUnauthenticated {
		return http.StatusUnauthorized
	}
	return statusFor(resp.Code)
}

func proxyResponse(status int, resp ports.RuntimeResponse) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(resp)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// --- Direct Request Processing ---

// processDirectRequest handles direct handler requests
func (runtime *lambdaRuntime) processDirectRequest(ctx context.Context, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
	runtime.enrichRequest(&req, "lambda")
	runtime.logger.Info("Processing direct request", "request_id", req.ID, "type", req.Type)
	runtime.metrics.IncrementCounter("lambda.invocations.direct", nil)

	return runtime.handle(ctx, req)
}

func (runtime *lambdaRuntime) handle(ctx context.Context, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
	if runtime.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runtime.config.Timeout)
		defer cancel()
	}
	return runtime.handler.Handle(ctx, req)
}

// enrichRequest fills in the fields callers may omit
func (runtime *lambdaRuntime) enrichRequest(req *ports.RuntimeRequest, source string) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Source == "" {
		req.Source = source
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}
	if req.Metadata == nil {
		req.Metadata = make(map[string]string)
	}
}

// --- Parsing Helpers ---

func (runtime *lambdaRuntime) tryParseProxyEvent(event json.RawMessage) (events.APIGatewayProxyRequest, bool) {
	var proxy events.APIGatewayProxyRequest
	err := json.Unmarshal(event, &proxy)
	return proxy, err == nil && proxy.HTTPMethod != ""
}

func (runtime *lambdaRuntime) tryParseDirectRequest(event json.RawMessage) (ports.RuntimeRequest, bool) {
	var req ports.RuntimeRequest
	err := json.Unmarshal(event, &req)
	return req, err == nil && req.Type != ""
}

// --- Logging Helpers ---

func (runtime *lambdaRuntime) logStartup() {
	runtime.logger.Info("Starting Lambda runtime")
	runtime.metrics.IncrementCounter("lambda.starts", nil)
}

// --- Metrics Helpers ---

// invocationTracker tracks metrics for a single invocation
type invocationTracker struct {
	runtime   *lambdaRuntime
	startTime time.Time
	eventType string
}

func (runtime *lambdaRuntime) trackInvocation(event json.RawMessage) *invocationTracker {
	runtime.logger.Info("Lambda invoked", "event_size", len(event))
	runtime.metrics.IncrementCounter("lambda.invocations", nil)

	return &invocationTracker{
		runtime:   runtime,
		startTime: time.Now(),
	}
}

func (t *invocationTracker) recordDuration() {
	if t.eventType == "" {
		return
	}

	duration := time.Since(t.startTime)
	t.runtime.metrics.RecordHistogram("lambda.duration_ms",
		float64(duration.Milliseconds()),
		map[string]string{"event_type": t.eventType})
}

func (runtime *lambdaRuntime) recordUnsupportedEvent() {
	runtime.logger.Error("Unsupported event type")
	runtime.metrics.IncrementCounter("lambda.invocations.unsupported", nil)
}
