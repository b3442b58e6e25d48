package runtime

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hicsail/kidney-web/internal/application/dto"
	"github.com/hicsail/kidney-web/internal/application/usecase/userstore"
	"github.com/hicsail/kidney-web/internal/domain/userpath"
)

const uploadField = "file"

// userHandler serves a route on behalf of an authenticated user
type userHandler func(c *gin.Context, userID string)

// asUser resolves the current user through the authenticator and answers 401
// when there is none.
func (httpRuntime *httpRuntime) asUser(h userHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := httpRuntime.identity.CurrentUser(c.Request.Context())
		if err != nil {
			httpRuntime.sendUnauthenticated(c)
			return
		}
		h(c, user.ID)
	}
}

// wildcard returns a catch-all route parameter without its leading slash
func wildcard(c *gin.Context, name string) string {
	return strings.TrimPrefix(c.Param(name), "/")
}

func (httpRuntime *httpRuntime) handleHealth(c *gin.Context) {
	if httpRuntime.health != nil {
		if err := httpRuntime.health(c.Request.Context()); err != nil {
			httpRuntime.logger.Error("Health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /api/files?category=&subpath=&delimited=
func (httpRuntime *httpRuntime) handleList(c *gin.Context, userID string) {
	delimited := false
	if raw := c.Query("delimited"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpRuntime.sendBadRequest(c, fmt.Errorf("invalid delimited flag %q", raw))
			return
		}
		delimited = v
	}

	entries, err := httpRuntime.store.List(c.Request.Context(), userID, c.Query("category"), c.Query("subpath"), delimited)
	if err != nil {
		httpRuntime.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GET /api/objects/*key
func (httpRuntime *httpRuntime) handleGetObject(c *gin.Context, userID string) {
	obj, err := httpRuntime.store.GetObject(c.Request.Context(), userID, wildcard(c, "key"))
	if err != nil {
		httpRuntime.sendStoreError(c, err)
		return
	}
	sendObject(c, obj)
}

// POST /api/files, multipart with one or more "file" parts
func (httpRuntime *httpRuntime) handleUpload(c *gin.Context, userID string) {
	if httpRuntime.config.MaxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, httpRuntime.config.MaxUploadSize)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpRuntime.metrics.IncrementCounter("http.upload_too_large", nil)
			c.JSON(http.StatusRequestEntityTooLarge, errorBody{
				Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
				Code:  userstore.CodeInvalidRequest,
			})
			return
		}
		httpRuntime.sendBadRequest(c, fmt.Errorf("invalid multipart form: %w", err))
		return
	}

	headers := form.File[uploadField]
	if len(headers) == 0 {
		httpRuntime.sendBadRequest(c, errors.New("no files uploaded"))
		return
	}

	category := c.PostForm("category")
	if category == "" {
		category = string(userpath.Inputs)
	}
	subpath := strings.Trim(c.PostForm("subpath"), "/")

	files := make([]userstore.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			httpRuntime.sendBadRequest(c, fmt.Errorf("failed to read %s: %w", fh.Filename, err))
			return
		}
		name := fh.Filename
		if subpath != "" {
			name = subpath + userpath.Delimiter + name
		}
		files = append(files, userstore.File{Name: name, Data: data})
	}

	result := httpRuntime.store.PutBatch(c.Request.Context(), userID, category, files)
	if result.SuccessCount == 0 {
		httpRuntime.sendStoreError(c, result.Failures[0].Err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUploadResponse(result))
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// DELETE /api/files/*path deletes an input and its derived artifacts
func (httpRuntime *httpRuntime) handleDelete(c *gin.Context, userID string) {
	result, err := httpRuntime.store.Delete(c.Request.Context(), userID, wildcard(c, "path"))
	if err != nil {
		httpRuntime.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// POST /api/folders {"path": "..."}
func (httpRuntime *httpRuntime) handleCreateFolder(c *gin.Context, userID string) {
	var req dto.FolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpRuntime.sendBadRequest(c, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		httpRuntime.sendBadRequest(c, err)
		return
	}

	if err := httpRuntime.store.CreateFolder(c.Request.Context(), userID, req.Path); err != nil {
		httpRuntime.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// DELETE /api/folders/*path
func (httpRuntime *httpRuntime) handleDeleteFolder(c *gin.Context, userID string) {
	folder := wildcard(c, "path")
	n, err := httpRuntime.store.DeleteFolder(c.Request.Context(), userID, folder)
	if err != nil {
		httpRuntime.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DeleteFolderResponse{Path: folder, Deleted: n})
}

// GET /api/results/*path lists the artifact keys derived from an input
func (httpRuntime *httpRuntime) handleResultKeys(c *gin.Context, userID string) {
	keys, err := httpRuntime.store.ResultKeys(userID, wildcard(c, "path"))
	if err != nil {
		httpRuntime.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

// GET /predictionimages/masks/:filename and /predictionresults/masks/:filename
func (httpRuntime *httpRuntime) handleMask(c *gin.Context, userID string) {
	httpRuntime.sendArtifact(c, userID, userpath.MeasurementMasks, c.Param("filename"))
}

// GET /predictionresults/widthinfojsons/:filename, addressed by the input name
func (httpRuntime *httpRuntime) handleWidthInfo(c *gin.Context, userID string) {
	httpRuntime.sendArtifact(c, userID, userpath.WidthInfoJSONs, userpath.SidecarPath(c.Param("filename")))
}

func (httpRuntime *httpRuntime) sendArtifact(c *gin.Context, userID string, category userpath.Category, relativePath string) {
	obj, err := httpRuntime.store.GetArtifact(c.Request.Context(), userID, category, relativePath)
	if err != nil {
		httpRuntime.sendStoreError(c, err)
		return
	}
	sendObject(c, obj)
}

func sendObject(c *gin.Context, obj *userstore.Object) {
	if obj.ETag != "" {
		c.Header("ETag", `"`+strings.Trim(obj.ETag, `"`)+`"`)
	}
	if !obj.LastModified.IsZero() {
		c.Header("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, obj.Data)
}
