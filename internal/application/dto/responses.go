package dto

import (
	"time"

	"github.com/hicsail/kidney-web/internal/application/usecase/userstore"
)

type ObjectResponse struct {
	Key          string    `json:"key"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	Data         []byte    `json:"data"`
}

func NewObjectResponse(obj *userstore.Object) ObjectResponse {
	return ObjectResponse{
		Key:          obj.Key,
		ContentType:  obj.ContentType,
		Size:         obj.Size,
		LastModified: obj.LastModified,
		ETag:         obj.ETag,
		Data:         obj.Data,
	}
}

type UploadResponse struct {
	Message string `json:"message"`
	userstore.BatchResult
	Failed []string `json:"failed,omitempty"`
}

func NewUploadResponse(result userstore.BatchResult) UploadResponse {
	resp := UploadResponse{Message: result.Message(), BatchResult: result}
	for _, f := range result.Failures {
		resp.Failed = append(resp.Failed, f.Name)
	}
	return resp
}

type DeleteFolderResponse struct {
	Path    string `json:"path"`
	Deleted int    `json:"deleted"`
}
