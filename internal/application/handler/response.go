package handler

import (
	"encoding/json"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/application/usecase/userstore"
)

func successResponse(data interface{}) (ports.RuntimeResponse, error) {
	resp := ports.RuntimeResponse{Success: true}
	if data == nil {
		return resp, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ports.RuntimeResponse{}, err
	}
	resp.Data = raw
	return resp, nil
}

func errorResponse(code, message string) ports.RuntimeResponse {
	return ports.RuntimeResponse{
		Success: false,
		Code:    code,
		Error:   message,
	}
}

// handleStoreError turns a store failure into an unsuccessful response. Only
// encoding problems are returned as errors.
func (h *FilesHandler) handleStoreError(req ports.RuntimeRequest, err error) (ports.RuntimeResponse, error) {
	code := userstore.CodeOf(err)
	h.logger.Error("Request failed",
		"request_id", req.ID,
		"type", req.Type,
		"code", code,
		"error", err.Error())
	h.metrics.IncrementCounter("handler.failures", map[string]string{"type": req.Type, "code": code})
	return errorResponse(code, err.Error()), nil
}

func (h *FilesHandler) handleInvalid(req ports.RuntimeRequest, err error) (ports.RuntimeResponse, error) {
	h.logger.Info("Rejected request", "request_id", req.ID, "type", req.Type, "error", err.Error())
	h.metrics.IncrementCounter("handler.failures", map[string]string{"type": req.Type, "code": userstore.CodeInvalidRequest})
	return errorResponse(userstore.CodeInvalidRequest, err.Error()), nil
}

func (h *FilesHandler) handleSuccess(req ports.RuntimeRequest, data interface{}) (ports.RuntimeResponse, error) {
	h.logger.Info("Request completed", "request_id", req.ID, "type", req.Type)
	h.metrics.IncrementCounter("handler.success", map[string]string{"type": req.Type})
	return successResponse(data)
}
