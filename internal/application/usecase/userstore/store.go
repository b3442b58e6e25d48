// Package userstore confines object storage access to the caller's own
// namespace and keeps derived prediction artifacts consistent with their
// source inputs.
package userstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/domain/userpath"
)

const (
	folderContentType = "application/x-directory"
	batchConcurrency  = 4
)

type Store struct {
	storage ports.Storage
	bucket  string
	logger  ports.Logger
	metrics ports.Metrics
}

// New builds a Store over storage. An empty bucket means the backend's
// configured default.
func New(storage ports.Storage, bucket string, obs ports.Observability) (*Store, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	logger, metrics, err := obs.ComponentsScoped("usecase.userstore")
	if err != nil {
		return nil, fmt.Errorf("failed to scope observability: %w", err)
	}
	return &Store{
		storage: storage,
		bucket:  bucket,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// List returns the entries under {userID}/{category}/{subpath}. An empty
// category lists from the namespace root. With delimited set only one level
// is returned, sub-folders first.
func (s *Store) List(ctx context.Context, userID, category, subpath string, delimited bool) ([]Entry, error) {
	const op = "list"
	start := time.Now()

	prefix, err := userpath.ListPrefix(userID, userpath.Category(category), subpath)
	if err != nil {
		return nil, s.reject(op, userID, category+"/"+subpath, err)
	}

	entries := []Entry{}
	if delimited {
		res, err := s.storage.ListDelimited(ctx, s.bucket, prefix, userpath.Delimiter)
		if err != nil {
			return nil, s.backendFailure(op, prefix, err)
		}
		for _, p := range res.CommonPrefixes {
			entries = append(entries, Entry{Key: p, Name: userpath.Name(p), IsFolder: true})
		}
		entries = appendObjects(entries, prefix, res.Objects)
	} else {
		objects, err := s.storage.List(ctx, s.bucket, prefix)
		if err != nil {
			return nil, s.backendFailure(op, prefix, err)
		}
		entries = appendObjects(entries, prefix, objects)
	}

	s.metrics.IncrementCounter("userstore.list.success", nil)
	s.metrics.RecordHistogram("userstore.list.duration_ms", float64(time.Since(start).Milliseconds()), nil)
	s.logger.Info("Listed objects",
		"user_id", userID,
		"prefix", prefix,
		"delimited", delimited,
		"count", len(entries),
	)
	return entries, nil
}

// appendObjects skips the marker of the listed folder itself.
func appendObjects(entries []Entry, prefix string, objects []ports.ObjectInfo) []Entry {
	for _, o := range objects {
		if o.Key == prefix {
			continue
		}
		entries = append(entries, Entry{
			Key:          o.Key,
			Name:         userpath.Name(o.Key),
			IsFolder:     userpath.IsFolder(o.Key),
			Size:         o.Size,
			LastModified: o.LastModified,
		})
	}
	return entries
}

// Get returns the content of key, which must be a full key owned by userID.
func (s *Store) Get(ctx context.Context, userID, key string) ([]byte, error) {
	obj, err := s.GetObject(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

// GetObject returns the content of key along with its metadata.
func (s *Store) GetObject(ctx context.Context, userID, key string) (*Object, error) {
	const op = "get"
	if _, err := userpath.ParseOwned(userID, key); err != nil {
		return nil, s.reject(op, userID, key, err)
	}
	return s.fetch(ctx, op, key)
}

// GetArtifact returns the object stored at relativePath in category.
func (s *Store) GetArtifact(ctx context.Context, userID string, category userpath.Category, relativePath string) (*Object, error) {
	const op = "get"
	key, err := userpath.ObjectKey(userID, category, relativePath)
	if err != nil {
		return nil, s.reject(op, userID, string(category)+"/"+relativePath, err)
	}
	return s.fetch(ctx, op, key)
}

func (s *Store) fetch(ctx context.Context, op, key string) (*Object, error) {
	reader, meta, err := s.storage.GetWithMetadata(ctx, s.bucket, key)
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			s.metrics.IncrementCounter("userstore.get.not_found", nil)
			return nil, errNotFound(op, key, err)
		}
		return nil, s.backendFailure(op, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, s.backendFailure(op, key, err)
	}

	obj := &Object{Key: key, Data: data, Size: int64(len(data))}
	if meta != nil {
		obj.ContentType = meta.ContentType
		obj.LastModified = meta.LastModified
		obj.ETag = meta.ETag
	}
	if obj.ContentType == "" {
		obj.ContentType = contentTypeFor(key, data)
	}

	s.metrics.IncrementCounter("userstore.get.success", nil)
	s.metrics.RecordHistogram("userstore.get.size_bytes", float64(len(data)), nil)
	return obj, nil
}

// Put writes data to {userID}/{category}/{relativePath}. No folder markers
// are created for intermediate directories.
func (s *Store) Put(ctx context.Context, userID, category, relativePath string, data []byte) error {
	const op = "put"

	cat, err := userpath.ParseCategory(category)
	if err != nil {
		return errInvalidRequest(op, category, err)
	}
	key, err := userpath.ObjectKey(userID, cat, relativePath)
	if err != nil {
		return s.reject(op, userID, category+"/"+relativePath, err)
	}

	metadata := ports.ObjectMetadata{
		ContentType:   contentTypeFor(key, data),
		ContentLength: int64(len(data)),
		UserMetadata: map[string]string{
			"user_id":  userID,
			"category": string(cat),
		},
	}
	if err := s.storage.Put(ctx, s.bucket, key, bytes.NewReader(data), metadata); err != nil {
		return s.backendFailure(op, key, err)
	}

	s.metrics.IncrementCounter("userstore.put.success", nil)
	s.metrics.RecordHistogram("userstore.put.size_bytes", float64(len(data)), nil)
	s.logger.Info("Stored object", "user_id", userID, "key", key, "size", len(data))
	return nil
}

// PutBatch attempts every file independently, at most batchConcurrency at a
// time. Failures are collected in the result, in input order, rather than
// returned.
func (s *Store) PutBatch(ctx context.Context, userID, category string, files []File) BatchResult {
	errs := make([]error, len(files))

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, f := range files {
		g.Go(func() error {
			errs[i] = s.Put(ctx, userID, category, f.Name, f.Data)
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{AttemptCount: len(files)}
	for i, err := range errs {
		if err != nil {
			result.Failures = append(result.Failures, FileFailure{Name: files[i].Name, Err: err})
			continue
		}
		result.SuccessCount++
	}

	if result.Partial() {
		s.metrics.IncrementCounter("userstore.put_batch.partial", nil)
		s.logger.Warn("Batch upload partially failed",
			"user_id", userID,
			"category", category,
			"success_count", result.SuccessCount,
			"attempt_count", result.AttemptCount,
		)
	}
	return result
}

// CreateFolder writes the zero-byte marker {userID}/{folderPath}/.
func (s *Store) CreateFolder(ctx context.Context, userID, folderPath string) error {
	const op = "create_folder"

	key, err := userpath.FolderKey(userID, folderPath)
	if err != nil {
		return s.reject(op, userID, folderPath, err)
	}

	metadata := ports.ObjectMetadata{ContentType: folderContentType}
	if err := s.storage.Put(ctx, s.bucket, key, bytes.NewReader(nil), metadata); err != nil {
		return s.backendFailure(op, key, err)
	}

	s.metrics.IncrementCounter("userstore.create_folder.success", nil)
	s.logger.Info("Created folder", "user_id", userID, "key", key)
	return nil
}

// DeleteFolder removes every key under {userID}/{folderPath}/ in one batch
// and returns how many were removed. An empty folder is not an error.
func (s *Store) DeleteFolder(ctx context.Context, userID, folderPath string) (int, error) {
	const op = "delete_folder"

	prefix, err := userpath.FolderKey(userID, folderPath)
	if err != nil {
		return 0, s.reject(op, userID, folderPath, err)
	}

	objects, err := s.storage.List(ctx, s.bucket, prefix)
	if err != nil {
		return 0, s.backendFailure(op, prefix, err)
	}
	if len(objects) == 0 {
		s.logger.Info("Folder already empty", "user_id", userID, "prefix", prefix)
		return 0, nil
	}

	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	if err := s.storage.DeleteBatch(ctx, s.bucket, keys); err != nil {
		return 0, s.backendFailure(op, prefix, err)
	}

	s.metrics.IncrementCounter("userstore.delete_folder.success", nil)
	s.metrics.RecordGauge("userstore.delete_folder.keys", float64(len(keys)), nil)
	s.logger.Info("Deleted folder", "user_id", userID, "prefix", prefix, "count", len(keys))
	return len(keys), nil
}

// reject logs a path that failed validation and converts the error.
func (s *Store) reject(op, userID, target string, err error) error {
	converted := classifyPathError(op, target, err)
	if errors.Is(converted, ErrForbidden) {
		s.metrics.IncrementCounter("userstore.forbidden", map[string]string{"op": op})
		s.logger.Warn("Fishy activity detected",
			"op", op,
			"user_id", userID,
			"target", target,
			"reason", err.Error(),
		)
	}
	return converted
}

func (s *Store) backendFailure(op, key string, err error) error {
	s.metrics.IncrementCounter("userstore.backend.failure", map[string]string{"op": op})
	s.logger.Error("Storage backend call failed",
		"op", op,
		"key", key,
		"error", err.Error(),
	)
	return errBackendUnavailable(op, key, err)
}

func contentTypeFor(key string, data []byte) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
