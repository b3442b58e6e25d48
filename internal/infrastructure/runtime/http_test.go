package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hicsail/kidney-web/internal/application/dto"
	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/application/ports/mocks"
	"github.com/hicsail/kidney-web/internal/application/usecase/userstore"
	"github.com/hicsail/kidney-web/internal/domain/userpath"
	"github.com/hicsail/kidney-web/internal/infrastructure/auth"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
	"github.com/hicsail/kidney-web/internal/infrastructure/storage/adapters/memory"
)

const userHeader = "X-Auth-User-Id"

type testServer struct {
	handler http.Handler
	store   *userstore.Store
	health  error
}

func newTestServer(t *testing.T, cfg config.HTTPConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	obs, logger, metrics := mocks.NewQuietObservability()
	store, err := userstore.New(memory.NewStorage("", logger, metrics), "", obs)
	require.NoError(t, err)
	identity, err := auth.NewHeaderAuthenticator(config.DefaultAuthConfig(), obs)
	require.NoError(t, err)

	ts := &testServer{store: store}
	rt, err := NewHTTPRuntime(&cfg, &Application{
		Store:    store,
		Identity: identity,
		Health:   func(context.Context) error { return ts.health },
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	}, obs)
	require.NoError(t, err)
	ts.handler = rt.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, userID string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if userID != "" {
		req.Header.Set(userHeader, userID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) seed(t *testing.T, userID string, category userpath.Category, rel, data string) {
	t.Helper()
	require.NoError(t, ts.store.Put(context.Background(), userID, string(category), rel, []byte(data)))
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		part, err := w.CreateFormFile(uploadField, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func TestRoutesRequireUser(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{})

	tests := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/api/files"},
		{http.MethodGet, "/api/objects/u1/inputs/a.png"},
		{http.MethodPost, "/api/files"},
		{http.MethodDelete, "/api/files/a.png"},
		{http.MethodPost, "/api/folders"},
		{http.MethodDelete, "/api/folders/x"},
		{http.MethodGet, "/predictionimages/masks/a.png"},
		{http.MethodGet, "/predictionresults/masks/a.png"},
		{http.MethodGet, "/predictionresults/widthinfojsons/a.png"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.target, "", nil, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "Please log in")
		})
	}
}

func TestUploadListAndGet(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{})

	body, ct := multipartBody(t, nil, map[string]string{"scan1.png": "one", "scan2.png": "two"})
	rec := ts.do(t, http.MethodPost, "/api/files", "u1", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var upload dto.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))
	assert.Equal(t, "2 of 2 files successfully uploaded.", upload.Message)

	rec = ts.do(t, http.MethodGet, "/api/files?category=inputs&delimited=true", "u1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []userstore.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "scan1.png", entries[0].Name)

	rec = ts.do(t, http.MethodGet, "/api/objects/u1/inputs/scan2.png", "u1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "two", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestUploadIntoSubpath(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{})

	body, ct := multipartBody(t, map[string]string{"subpath": "batch1/"}, map[string]string{"a.png": "a"})
	rec := ts.do(t, http.MethodPost, "/api/files", "u1", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	obj, err := ts.store.GetObject(context.Background(), "u1", "u1/inputs/batch1/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), obj.Data)
}

func TestUploadRejections(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{MaxUploadSize: 64})

	empty, emptyCT := multipartBody(t, nil, nil)
	big, bigCT := multipartBody(t, nil, map[string]string{"a.png": strings.Repeat("x", 512)})
	badCat, badCatCT := multipartBody(t, map[string]string{"category": "thumbs"}, map[string]string{"a.png": "x"})

	tests := []struct {
		name   string
		body   []byte
		ct     string
		status int
	}{
		{"no files", empty, emptyCT, http.StatusBadRequest},
		{"not multipart", []byte("{}"), "application/json", http.StatusBadRequest},
		{"too large", big, bigCT, http.StatusRequestEntityTooLarge},
		{"unknown category", badCat, badCatCT, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/files", "u1", tt.body, tt.ct)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestStatusMapping(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{})
	ts.seed(t, "u2", userpath.Inputs, "secret.png", "s")

	tests := []struct {
		name   string
		method string
		target string
		status int
		code   string
	}{
		{"foreign object", http.MethodGet, "/api/objects/u2/inputs/secret.png", http.StatusForbidden, userstore.CodeForbidden},
		{"partial prefix", http.MethodGet, "/api/objects/u/inputs/secret.png", http.StatusForbidden, userstore.CodeForbidden},
		{"traversal delete", http.MethodDelete, "/api/files/..%2Fu2%2Fsecret.png", http.StatusForbidden, userstore.CodeForbidden},
		{"missing object", http.MethodGet, "/api/objects/u1/inputs/none.png", http.StatusNotFound, userstore.CodeNotFound},
		{"missing mask", http.MethodGet, "/predictionresults/masks/none.png", http.StatusNotFound, userstore.CodeNotFound},
		{"unknown category", http.MethodGet, "/api/files?category=thumbs", http.StatusBadRequest, userstore.CodeInvalidRequest},
		{"bad delimited flag", http.MethodGet, "/api/files?delimited=maybe", http.StatusBadRequest, userstore.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.target, "u1", nil, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(userstore.CodeCascadeAborted))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(userstore.CodeBackendUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor("SOMETHING_ELSE"))
}

func TestDeleteCascadeRoute(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{})
	ts.seed(t, "u1", userpath.Inputs, "batch/scan.png", "in")
	ts.seed(t, "u1", userpath.MeasurementMasks, "batch/scan.png", "mask")
	ts.seed(t, "u1", userpath.WidthInfoJSONs, "batch/scan.json", "{}")

	rec := ts.do(t, http.MethodGet, "/predictionresults/widthinfojsons/scan.png", "u1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "artifacts are addressed from the namespace root")

	rec = ts.do(t, http.MethodDelete, "/api/files/batch/scan.png", "u1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result userstore.CascadeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Stages, 3)
	for _, s := range result.Stages {
		assert.Equal(t, userstore.StageDeleted, s.Status, s.Stage)
	}

	rec = ts.do(t, http.MethodDelete, "/api/files/batch/scan.png", "u1", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code, "deleting again is not an error")
}

func TestPredictionArtifacts(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{})
	ts.seed(t, "u1", userpath.MeasurementMasks, "scan.png", "mask-bytes")
	ts.seed(t, "u1", userpath.WidthInfoJSONs, "scan.json", `{"width": 3}`)

	rec := ts.do(t, http.MethodGet, "/predictionimages/masks/scan.png", "u1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mask-bytes", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/predictionresults/masks/scan.png", "u1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/predictionresults/widthinfojsons/scan.png", "u1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"width": 3}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	rec = ts.do(t, http.MethodGet, "/predictionresults/masks/scan.png", "u2", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "another user sees only their own namespace")
}

func TestFolderRoutes(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{})

	rec := ts.do(t, http.MethodPost, "/api/folders", "u1", []byte(`{"path":"projectA"}`), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/files?delimited=true", "u1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []userstore.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsFolder)
	assert.Equal(t, "projectA", entries[0].Name)

	rec = ts.do(t, http.MethodDelete, "/api/folders/projectA", "u1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out dto.DeleteFolderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Deleted)

	rec = ts.do(t, http.MethodPost, "/api/folders", "u1", []byte(`{"path":""}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/folders", "u1", []byte(`{"path":"../u2"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestResultKeysRoute(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{})

	rec := ts.do(t, http.MethodGet, "/api/results/batch/scan.png", "u1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var keys userstore.ResultKeys
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
	assert.Equal(t, "u1/widthinfojsons/batch/scan.json", keys.WidthInfo)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{})

	rec := ts.do(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.health = errors.New("connection refused")
	rec = ts.do(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestNewHTTPRuntimeRequiresDependencies(t *testing.T) {
	obs, _, _ := mocks.NewQuietObservability()

	_, err := NewHTTPRuntime(&config.HTTPConfig{}, &Application{}, obs)
	assert.Error(t, err)

	_, err = NewHTTPRuntime(&config.HTTPConfig{}, nil, obs)
	assert.Error(t, err)
}

// sessionIdentity accepts every request and reports session as the current
// user, whatever the headers say.
type sessionIdentity struct{ session *ports.User }

func (s sessionIdentity) Identify(header http.Header) (*ports.User, error) {
	return &ports.User{ID: header.Get(userHeader)}, nil
}

func (s sessionIdentity) CurrentUser(ctx context.Context) (*ports.User, error) {
	if s.session == nil {
		return nil, ports.ErrUnauthenticated
	}
	return s.session, nil
}

func TestRoutesActAsCurrentUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs, logger, metrics := mocks.NewQuietObservability()
	store, err := userstore.New(memory.NewStorage("", logger, metrics), "", obs)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), "u9", "inputs", "scan.png", []byte("x")))

	tests := []struct {
		name       string
		session    *ports.User
		wantStatus int
		wantBody   string
	}{
		{"session user", &ports.User{ID: "u9"}, http.StatusOK, "u9/inputs/scan.png"},
		{"no session", nil, http.StatusUnauthorized, "Please log in"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := NewHTTPRuntime(&config.HTTPConfig{}, &Application{
				Store:    store,
				Identity: sessionIdentity{session: tt.session},
			}, obs)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/api/files?category=inputs", nil)
			req.Header.Set(userHeader, "u1")
			rec := httptest.NewRecorder()
			rt.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
