package s3

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hicsail/kidney-web/internal/application/ports/mocks"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
)

type cargoQuery struct {
	Query     string `json:"query"`
	Variables struct {
		Request cargoRequest `json:"request"`
	} `json:"variables"`
}

// cargoServer answers sign queries with body, recording what it was asked
func cargoServer(t *testing.T, status int, body string, seen *cargoQuery) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSigner(t *testing.T, endpoint string) *cargoSigner {
	t.Helper()
	_, logger, metrics := mocks.NewQuietObservability()
	signer, err := newCargoSigner(config.CargoConfig{Endpoint: endpoint, Token: "jwt-token", Timeout: time.Second}, logger, metrics)
	require.NoError(t, err)
	return signer
}

func putRequest(t *testing.T) *smithyhttp.Request {
	t.Helper()
	req := smithyhttp.NewStackRequest().(*smithyhttp.Request)
	req.Method = http.MethodPut
	u, err := url.Parse("https://kidney.s3.us-east-1.amazonaws.com/12/inputs/a.csv?x-id=PutObject")
	require.NoError(t, err)
	req.URL = u
	req.Header.Set("Authorization", "AWS4-HMAC-SHA256 sdk-signature")
	req.Header.Set("X-Amz-Content-Sha256", "UNSIGNED-PAYLOAD")
	return req
}

func TestNewCargoSignerValidation(t *testing.T) {
	_, logger, metrics := mocks.NewQuietObservability()

	tests := []struct {
		name    string
		cfg     config.CargoConfig
		message string
	}{
		{"no endpoint", config.CargoConfig{Token: "t"}, "endpoint is required"},
		{"no token", config.CargoConfig{Endpoint: "http://cargo"}, "token is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newCargoSigner(tt.cfg, logger, metrics)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCargoMiddlewareReplacesSignature(t *testing.T) {
	var seen cargoQuery
	srv := cargoServer(t, http.StatusOK,
		`{"data":{"cargoSignRequest":{"signature":"AWS4-HMAC-SHA256 cargo","bodyHash":"abc123","timestamp":"20261019T120000Z"}}}`,
		&seen)
	signer := newTestSigner(t, srv.URL)

	var forwarded *smithyhttp.Request
	next := middleware.FinalizeHandlerFunc(func(ctx context.Context, in middleware.FinalizeInput) (middleware.FinalizeOutput, middleware.Metadata, error) {
		forwarded = in.Request.(*smithyhttp.Request)
		return middleware.FinalizeOutput{}, middleware.Metadata{}, nil
	})

	_, _, err := signer.middleware().HandleFinalize(context.Background(), middleware.FinalizeInput{Request: putRequest(t)}, next)

	require.NoError(t, err)
	require.NotNil(t, forwarded)
	assert.Equal(t, "AWS4-HMAC-SHA256 cargo", forwarded.Header.Get("Authorization"))
	assert.Equal(t, "abc123", forwarded.Header.Get("X-Amz-Content-Sha256"))
	assert.Equal(t, "20261019T120000Z", forwarded.Header.Get("X-Amz-Date"))

	assert.Contains(t, seen.Query, "cargoSignRequest")
	assert.Equal(t, http.MethodPut, seen.Variables.Request.Method)
	assert.Equal(t, "https:", seen.Variables.Request.Protocol)
	assert.Equal(t, "kidney.s3.us-east-1.amazonaws.com", seen.Variables.Request.Hostname)
	assert.Equal(t, "/12/inputs/a.csv", seen.Variables.Request.Path)
	assert.Equal(t, []string{"PutObject"}, seen.Variables.Request.Query["x-id"])
	assert.Equal(t, "UNSIGNED-PAYLOAD", seen.Variables.Request.Headers["x-amz-content-sha256"])
}

func TestCargoMiddlewareFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"server error", http.StatusInternalServerError, "boom", "status 500"},
		{"graphql error", http.StatusOK, `{"errors":[{"message":"invalid access key"}]}`, "invalid access key"},
		{"no signature", http.StatusOK, `{"data":{"cargoSignRequest":null}}`, "no signature"},
		{"garbage", http.StatusOK, `not json`, "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := newTestSigner(t, cargoServer(t, tt.status, tt.body, nil).URL)
			called := false
			next := middleware.FinalizeHandlerFunc(func(ctx context.Context, in middleware.FinalizeInput) (middleware.FinalizeOutput, middleware.Metadata, error) {
				called = true
				return middleware.FinalizeOutput{}, middleware.Metadata{}, nil
			})

			_, _, err := signer.middleware().HandleFinalize(context.Background(), middleware.FinalizeInput{Request: putRequest(t)}, next)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			assert.False(t, called, "unsigned request must not be sent")
		})
	}
}

func TestCargoRunsAfterSDKSigning(t *testing.T) {
	signer := newTestSigner(t, "http://cargo.invalid")
	passthrough := func(ctx context.Context, in middleware.FinalizeInput, next middleware.FinalizeHandler) (middleware.FinalizeOutput, middleware.Metadata, error) {
		return next.HandleFinalize(ctx, in)
	}

	stack := middleware.NewStack("PutObject", smithyhttp.NewStackRequest)
	require.NoError(t, stack.Finalize.Add(middleware.FinalizeMiddlewareFunc("Retry", passthrough), middleware.After))
	require.NoError(t, stack.Finalize.Add(middleware.FinalizeMiddlewareFunc("Signing", passthrough), middleware.After))
	require.NoError(t, stack.Finalize.Add(middleware.FinalizeMiddlewareFunc("Transmit", passthrough), middleware.After))

	require.NoError(t, signer.register(stack))

	assert.Equal(t, []string{"Retry", "Signing", cargoMiddlewareID, "Transmit"}, stack.Finalize.List())
}
