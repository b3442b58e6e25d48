// Package handler dispatches command-style requests (lambda events, CLI
// invocations) to the user-scoped store.
package handler

import (
	"context"
	"fmt"

	"github.com/hicsail/kidney-web/internal/application/dto"
	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/application/usecase/userstore"
	"github.com/hicsail/kidney-web/internal/domain/userpath"
)

// MetadataUserID is the request metadata key carrying the caller's user id.
const MetadataUserID = "user_id"

type FilesHandler struct {
	store   *userstore.Store
	auth    ports.Authenticator
	logger  ports.Logger
	metrics ports.Metrics
}

func NewFilesHandler(store *userstore.Store, auth ports.Authenticator, obs ports.Observability) (*FilesHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	logger, metrics, err := obs.ComponentsScoped("handler.files")
	if err != nil {
		return nil, fmt.Errorf("failed to scope observability: %w", err)
	}
	return &FilesHandler{
		store:   store,
		auth:    auth,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Handle runs one request for the authenticator's current user or, failing
// that, for req.Metadata["user_id"]. Store failures come back as unsuccessful
// responses carrying the store's error code.
func (h *FilesHandler) Handle(ctx context.Context, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
	userID := h.userID(ctx, req)
	if userID == "" {
		h.logger.Info("Request without user", "request_id", req.ID, "type", req.Type)
		h.metrics.IncrementCounter("handler.unauthenticated", nil)
		return errorResponse(CodeUnauthenticated, "Please log in"), nil
	}

	switch req.Type {
	case dto.TypeList:
		return h.list(ctx, userID, req)
	case dto.TypeGet:
		return h.get(ctx, userID, req)
	case dto.TypePut:
		return h.put(ctx, userID, req)
	case dto.TypeDelete:
		return h.delete(ctx, userID, req)
	case dto.TypeCreateFolder:
		return h.createFolder(ctx, userID, req)
	case dto.TypeDeleteFolder:
		return h.deleteFolder(ctx, userID, req)
	case dto.TypeResults:
		return h.results(userID, req)
	default:
		return h.handleInvalid(req, ErrHandlerUnknownType(req.Type))
	}
}

func (h *FilesHandler) userID(ctx context.Context, req ports.RuntimeRequest) string {
	if user, err := h.auth.CurrentUser(ctx); err == nil {
		return user.ID
	}
	return req.Metadata[MetadataUserID]
}

func (h *FilesHandler) list(ctx context.Context, userID string, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
	var payload dto.ListRequest
	if len(req.Payload) > 0 {
		if err := req.Unmarshal(&payload); err != nil {
			return h.handleInvalid(req, ErrHandlerUnmarshal(err))
		}
	}

	entries, err := h.store.List(ctx, userID, payload.Category, payload.Subpath, payload.Delimited)
	if err != nil {
		return h.handleStoreError(req, err)
	}
	return h.handleSuccess(req, entries)
}

func (h *FilesHandler) get(ctx context.Context, userID string, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
	var payload dto.GetRequest
	if err := h.parse(req, &payload, payload.Validate); err != nil {
		return h.handleInvalid(req, err)
	}

	obj, err := h.store.GetObject(ctx, userID, payload.Key)
	if err != nil {
		return h.handleStoreError(req, err)
	}
	return h.handleSuccess(req, dto.NewObjectResponse(obj))
}

func (h *FilesHandler) put(ctx context.Context, userID string, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
	var payload dto.PutRequest
	if err := h.parse(req, &payload, payload.Validate); err != nil {
		return h.handleInvalid(req, err)
	}

	if payload.Category == "" {
		payload.Category = string(userpath.Inputs)
	}

	files := make([]userstore.File, 0, len(payload.Files))
	for _, f := range payload.Files {
		files = append(files, userstore.File{Name: f.Name, Data: f.Data})
	}

	result := h.store.PutBatch(ctx, userID, payload.Category, files)
	resp := dto.NewUploadResponse(result)
	if result.SuccessCount == 0 && len(result.Failures) > 0 {
		return h.handleStoreError(req, result.Failures[0].Err)
	}
	return h.handleSuccess(req, resp)
}

func (h *FilesHandler) delete(ctx context.Context, userID string, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
	var payload dto.DeleteRequest
	if err := h.parse(req, &payload, payload.Validate); err != nil {
		return h.handleInvalid(req, err)
	}

	var (
		result userstore.CascadeResult
		err    error
	)
	if payload.Key != "" {
		result, err = h.store.DeleteKey(ctx, userID, payload.Key)
	} else {
		result, err = h.store.Delete(ctx, userID, payload.RelativePath)
	}
	if err != nil {
		return h.handleStoreError(req, err)
	}
	return h.handleSuccess(req, result)
}

func (h *FilesHandler) createFolder(ctx context.Context, userID string, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
	var payload dto.FolderRequest
	if err := h.parse(req, &payload, payload.Validate); err != nil {
		return h.handleInvalid(req, err)
	}

	if err := h.store.CreateFolder(ctx, userID, payload.Path); err != nil {
		return h.handleStoreError(req, err)
	}
	return h.handleSuccess(req, payload)
}

func (h *FilesHandler) deleteFolder(ctx context.Context, userID string, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
	var payload dto.FolderRequest
	if err := h.parse(req, &payload, payload.Validate); err != nil {
		return h.handleInvalid(req, err)
	}

	n, err := h.store.DeleteFolder(ctx, userID, payload.Path)
	if err != nil {
		return h.handleStoreError(req, err)
	}
	return h.handleSuccess(req, dto.DeleteFolderResponse{Path: payload.Path, Deleted: n})
}

func (h *FilesHandler) results(userID string, req ports.RuntimeRequest) (ports.RuntimeResponse, error) {
	var payload dto.ResultsRequest
	if err := h.parse(req, &payload, payload.Validate); err != nil {
		return h.handleInvalid(req, err)
	}

	keys, err := h.store.ResultKeys(userID, payload.RelativePath)
	if err != nil {
		return h.handleStoreError(req, err)
	}
	return h.handleSuccess(req, keys)
}

// parse unmarshals the payload into v and then runs validate. validate must
// be a method value bound to v.
func (h *FilesHandler) parse(req ports.RuntimeRequest, v interface{}, validate func() error) error {
	if err := req.Unmarshal(v); err != nil {
		return ErrHandlerUnmarshal(err)
	}
	if err := validate(); err != nil {
		return ErrHandlerInvalidPayload(err)
	}
	return nil
}
