package ports

import (
	"context"
	"encoding/json"
	"time"
)

type RuntimeRequest struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Type      string            `json:"type"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp time.Time         `json:"timestamp"`
}

func (r *RuntimeRequest) Unmarshal(v interface{}) error {
	return json.Unmarshal(r.Payload, v)
}

type RuntimeResponse struct {
	Success bool            `json:"success"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Handler processes command-style requests (lambda events, CLI calls)
type Handler interface {
	Handle(ctx context.Context, req RuntimeRequest) (RuntimeResponse, error)
}

// Runtime is a platform-specific entry point serving the application
type Runtime interface {
	Start() error
	Stop(ctx context.Context) error
}
