package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
)

// cargoMiddlewareID names the Cargo step in the finalize stack. It sits
// right after the SDK's own "Signing" step.
const cargoMiddlewareID = "CargoSigning"

const cargoSignQuery = `query cargoSignRequest($request: JSON!) {
  cargoSignRequest(request: $request) {
    signature
    bodyHash
    timestamp
  }
}`

// cargoRequest is the outgoing S3 request as Cargo expects to see it
type cargoRequest struct {
	Method   string              `json:"method"`
	Protocol string              `json:"protocol"`
	Hostname string              `json:"hostname"`
	Port     string              `json:"port,omitempty"`
	Path     string              `json:"path"`
	Query    map[string][]string `json:"query"`
	Headers  map[string]string   `json:"headers"`
}

// cargoSignature holds the header values Cargo computed for a request
type cargoSignature struct {
	Signature string `json:"signature"`
	BodyHash  string `json:"bodyHash"`
	Timestamp string `json:"timestamp"`
}

type cargoResponse struct {
	Data struct {
		CargoSignRequest *cargoSignature `json:"cargoSignRequest"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// cargoSigner asks a Cargo GraphQL service to sign S3 requests so that
// callers never hold the bucket's credentials.
type cargoSigner struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     ports.Logger
	metrics    ports.Metrics
}

func newCargoSigner(cfg config.CargoConfig, logger ports.Logger, metrics ports.Metrics) (*cargoSigner, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("cargo endpoint is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("cargo token is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &cargoSigner{
		endpoint:   cfg.Endpoint,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// sign sends one cargoSignRequest query
func (s *cargoSigner) sign(ctx context.Context, req cargoRequest) (*cargoSignature, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordHistogram("cargo.sign.duration_ms", float64(time.Since(start).Milliseconds()), nil)
	}()

	body, err := json.Marshal(map[string]interface{}{
		"query":     cargoSignQuery,
		"variables": map[string]interface{}{"request": req},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode cargo request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create cargo request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		s.metrics.IncrementCounter("cargo.sign.errors", map[string]string{"reason": "transport"})
		return nil, fmt.Errorf("cargo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.metrics.IncrementCounter("cargo.sign.errors", map[string]string{"reason": "status"})
		return nil, fmt.Errorf("cargo returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded cargoResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		s.metrics.IncrementCounter("cargo.sign.errors", map[string]string{"reason": "decode"})
		return nil, fmt.Errorf("failed to decode cargo response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		s.metrics.IncrementCounter("cargo.sign.errors", map[string]string{"reason": "graphql"})
		return nil, fmt.Errorf("cargo rejected request: %s", decoded.Errors[0].Message)
	}
	sig := decoded.Data.CargoSignRequest
	if sig == nil || sig.Signature == "" {
		s.metrics.IncrementCounter("cargo.sign.errors", map[string]string{"reason": "empty"})
		return nil, errors.New("cargo returned no signature")
	}

	s.metrics.IncrementCounter("cargo.sign.success", nil)
	return sig, nil
}

// middleware replaces the SDK's signature headers with Cargo's
func (s *cargoSigner) middleware() middleware.FinalizeMiddleware {
	return middleware.FinalizeMiddlewareFunc(cargoMiddlewareID,
		func(ctx context.Context, in middleware.FinalizeInput, next middleware.FinalizeHandler) (middleware.FinalizeOutput, middleware.Metadata, error) {
			req, ok := in.Request.(*smithyhttp.Request)
			if !ok {
				return middleware.FinalizeOutput{}, middleware.Metadata{}, fmt.Errorf("unexpected request type %T", in.Request)
			}

			sig, err := s.sign(ctx, describeRequest(req))
			if err != nil {
				s.logger.Error("Cargo signing failed", "error", err, "method", req.Method, "path", req.URL.Path)
				return middleware.FinalizeOutput{}, middleware.Metadata{}, fmt.Errorf("cargo signing failed: %w", err)
			}

			req.Header.Set("Authorization", sig.Signature)
			req.Header.Set("X-Amz-Content-Sha256", sig.BodyHash)
			req.Header.Set("X-Amz-Date", sig.Timestamp)
			return next.HandleFinalize(ctx, in)
		})
}

// register is an s3.Options APIOptions entry
func (s *cargoSigner) register(stack *middleware.Stack) error {
	return stack.Finalize.Insert(s.middleware(), "Signing", middleware.After)
}

func describeRequest(req *smithyhttp.Request) cargoRequest {
	headers := make(map[string]string, len(req.Header))
	for name := range req.Header {
		headers[strings.ToLower(name)] = req.Header.Get(name)
	}
	if req.Host != "" {
		headers["host"] = req.Host
	}
	return cargoRequest{
		Method:   req.Method,
		Protocol: req.URL.Scheme + ":",
		Hostname: req.URL.Hostname(),
		Port:     req.URL.Port(),
		Path:     req.URL.EscapedPath(),
		Query:    req.URL.Query(),
		Headers:  headers,
	}
}
