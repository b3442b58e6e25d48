package userstore

import (
	"fmt"
	"time"

	"github.com/hicsail/kidney-web/internal/domain/userpath"
)

// Entry is one row of a listing.
type Entry struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	IsFolder     bool      `json:"isFolder"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// Object is a fetched object with the metadata the backend reported.
type Object struct {
	Key          string
	Data         []byte
	ContentType  string
	Size         int64
	LastModified time.Time
	ETag         string
}

// File is one file of a batch upload.
type File struct {
	Name string
	Data []byte
}

// FileFailure records why one file of a batch was not stored.
type FileFailure struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

// BatchResult summarizes a batch upload. Some files may fail while others
// succeed; callers inspect the counts.
type BatchResult struct {
	SuccessCount int           `json:"successCount"`
	AttemptCount int           `json:"attemptCount"`
	Failures     []FileFailure `json:"failures,omitempty"`
}

// Partial reports whether at least one file failed.
func (r BatchResult) Partial() bool {
	return r.SuccessCount < r.AttemptCount
}

// Message is the user-facing summary of the upload.
func (r BatchResult) Message() string {
	return fmt.Sprintf("%d of %d files successfully uploaded.", r.SuccessCount, r.AttemptCount)
}

// StageStatus is the outcome of one cascade step.
type StageStatus string

const (
	StageDeleted StageStatus = "deleted"
	StageAbsent  StageStatus = "absent"
	StageFailed  StageStatus = "failed"
)

type StageOutcome struct {
	Stage  userpath.Category `json:"stage"`
	Key    string            `json:"key"`
	Status StageStatus       `json:"status"`
}

// CascadeResult lists the steps a delete went through, in order. Steps after
// a failure are not attempted and do not appear.
type CascadeResult struct {
	RelativePath string         `json:"relativePath"`
	Stages       []StageOutcome `json:"stages"`
}

// FailedStage returns the stage that stopped the cascade, if any.
func (r CascadeResult) FailedStage() (userpath.Category, bool) {
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			return s.Stage, true
		}
	}
	return "", false
}

// ResultKeys are the keys of the prediction artifacts derived from one input.
type ResultKeys struct {
	Input     string `json:"input"`
	Mask      string `json:"mask"`
	WidthInfo string `json:"widthInfo"`
}
