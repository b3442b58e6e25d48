// Package dto holds the JSON payloads accepted by the command handler.
package dto

import (
	"errors"
	"fmt"
)

// Request types understood by the command handler
const (
	TypeList         = "list"
	TypeGet          = "get"
	TypePut          = "put"
	TypeDelete       = "delete"
	TypeCreateFolder = "create_folder"
	TypeDeleteFolder = "delete_folder"
	TypeResults      = "results"
)

type ListRequest struct {
	Category  string `json:"category"`
	Subpath   string `json:"subpath"`
	Delimited bool   `json:"delimited"`
}

type GetRequest struct {
	Key string `json:"key"`
}

func (r *GetRequest) Validate() error {
	if r.Key == "" {
		return errors.New("key is required")
	}
	return nil
}

// UploadFile carries base64 content when encoded as JSON.
type UploadFile struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

type PutRequest struct {
	Category string       `json:"category"`
	Files    []UploadFile `json:"files"`
}

func (r *PutRequest) Validate() error {
	if len(r.Files) == 0 {
		return errors.New("at least one file is required")
	}
	for i, f := range r.Files {
		if f.Name == "" {
			return fmt.Errorf("files[%d]: name is required", i)
		}
	}
	return nil
}

// DeleteRequest names the input either by relative path or by full key.
type DeleteRequest struct {
	RelativePath string `json:"relativePath"`
	Key          string `json:"key"`
}

func (r *DeleteRequest) Validate() error {
	if r.RelativePath == "" && r.Key == "" {
		return errors.New("relativePath or key is required")
	}
	if r.RelativePath != "" && r.Key != "" {
		return errors.New("relativePath and key are mutually exclusive")
	}
	return nil
}

type FolderRequest struct {
	Path string `json:"path"`
}

func (r *FolderRequest) Validate() error {
	if r.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

type ResultsRequest struct {
	RelativePath string `json:"relativePath"`
}

func (r *ResultsRequest) Validate() error {
	if r.RelativePath == "" {
		return errors.New("relativePath is required")
	}
	return nil
}
