package ports

import (
	"context"
	"errors"
	"io"
	"time"
)

// Common storage errors
var (
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectMetadata represents metadata associated with stored objects
type ObjectMetadata struct {
	ContentType     string
	ContentLength   int64
	ContentEncoding string
	CacheControl    string
	LastModified    time.Time
	ETag            string
	UserMetadata    map[string]string
}

// ObjectInfo represents information about a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// ListResult is the outcome of a delimited listing. Objects are the keys
// directly under the prefix; CommonPrefixes are the grouped sub-prefixes,
// each ending with the delimiter.
type ListResult struct {
	Objects        []ObjectInfo
	CommonPrefixes []string
}

// Storage defines the interface for object storage operations.
// Implementations exist for S3 (and S3-compatible services such as MinIO),
// the local filesystem and process memory.
type Storage interface {
	// Put stores an object in the specified bucket with the given key
	Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ObjectMetadata) error

	// Get retrieves an object from the specified bucket by key.
	// Returns ErrObjectNotFound when the key does not exist.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// GetWithMetadata retrieves an object along with its metadata
	GetWithMetadata(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectMetadata, error)

	// Delete removes an object from the specified bucket. Backends that can
	// tell a missing key apart report it as ErrObjectNotFound.
	Delete(ctx context.Context, bucket, key string) error

	// DeleteBatch removes all given keys in as few calls as the backend allows
	DeleteBatch(ctx context.Context, bucket string, keys []string) error

	// Exists checks if an object exists in the specified bucket
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// List returns every object under prefix, recursively
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// ListDelimited returns one level of hierarchy under prefix
	ListDelimited(ctx context.Context, bucket, prefix, delimiter string) (*ListResult, error)

	// CreateBucket creates a new bucket if it doesn't exist
	CreateBucket(ctx context.Context, bucket string) error
}
