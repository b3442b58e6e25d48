package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/infrastructure/storage/listing"
)

const (
	metadataSuffix = ".metadata.json"
	// Keys ending in "/" are stored as a directory holding this file
	folderMarker = ".folder"
	// Bucket used when callers pass ""
	defaultBucket = "default"
)

// Storage implements ports.Storage on the local filesystem. Each bucket is a
// directory under basePath and each object a file, with its metadata in a
// sidecar next to it.
type Storage struct {
	basePath string
	logger   ports.Logger
	metrics  ports.Metrics
}

// NewStorage creates a new filesystem-based object storage
func NewStorage(basePath string, logger ports.Logger, metrics ports.Metrics) (*Storage, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, defaultBucket), 0o755); err != nil {
		logger.Error("Failed to create base path", "path", abs, "error", err)
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	logger.Info("Filesystem storage initialized", "base_path", abs)
	return &Storage{
		basePath: abs,
		logger:   logger,
		metrics:  metrics.WithTags(map[string]string{"storage": "filesystem"}),
	}, nil
}

// Put stores an object
func (s *Storage) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ports.ObjectMetadata) error {
	startTime := time.Now()

	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		s.metrics.IncrementCounter("fs.put.errors", map[string]string{"error": "mkdir"})
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(objectPath)
	if err != nil {
		s.metrics.IncrementCounter("fs.put.errors", map[string]string{"error": "create"})
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	bytesWritten, err := io.Copy(file, reader)
	if err != nil {
		s.metrics.IncrementCounter("fs.put.errors", map[string]string{"error": "write"})
		return fmt.Errorf("failed to write data: %w", err)
	}

	metadata.ContentLength = bytesWritten
	metadata.LastModified = time.Now().UTC()
	if err := s.saveMetadata(objectPath, metadata); err != nil {
		s.metrics.IncrementCounter("fs.put.errors", map[string]string{"error": "metadata"})
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	duration := time.Since(startTime)
	s.logger.Info("Object stored",
		"bucket", s.bucketName(bucket),
		"key", key,
		"bytes", bytesWritten,
		"duration_ms", duration.Milliseconds())
	s.metrics.IncrementCounter("fs.put.success", nil)
	s.metrics.RecordHistogram("fs.put.duration_ms", float64(duration.Milliseconds()), nil)
	return nil
}

// Get retrieves an object
func (s *Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(objectPath)
	if err != nil {
		if os.IsNotExist(err) {
			s.metrics.IncrementCounter("fs.get.not_found", nil)
			return nil, ports.ErrObjectNotFound
		}
		s.metrics.IncrementCounter("fs.get.errors", nil)
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	s.metrics.IncrementCounter("fs.get.success", nil)
	return file, nil
}

// GetWithMetadata retrieves an object with its metadata
func (s *Storage) GetWithMetadata(ctx context.Context, bucket, key string) (io.ReadCloser, *ports.ObjectMetadata, error) {
	reader, err := s.Get(ctx, bucket, key)
	if err != nil {
		return nil, nil, err
	}

	objectPath, _ := s.objectPath(bucket, key)
	metadata, err := s.loadMetadata(objectPath)
	if err != nil {
		reader.Close()
		s.logger.Error("Failed to load metadata", "key", key, "error", err)
		return nil, nil, err
	}
	return reader, &metadata, nil
}

// Delete removes an object and its metadata sidecar
func (s *Storage) Delete(ctx context.Context, bucket, key string) error {
	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.Remove(objectPath); err != nil {
		if os.IsNotExist(err) {
			return ports.ErrObjectNotFound
		}
		s.metrics.IncrementCounter("fs.delete.errors", nil)
		return fmt.Errorf("failed to delete object: %w", err)
	}
	_ = os.Remove(objectPath + metadataSuffix)
	s.pruneEmptyDirs(bucket, filepath.Dir(objectPath))

	s.logger.Info("Object deleted", "bucket", s.bucketName(bucket), "key", key)
	s.metrics.IncrementCounter("fs.delete.success", nil)
	return nil
}

// DeleteBatch removes every key, skipping those already gone
func (s *Storage) DeleteBatch(ctx context.Context, bucket string, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Delete(ctx, bucket, key); err != nil && !errors.Is(err, ports.ErrObjectNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		s.metrics.IncrementCounter("fs.delete_batch.errors", nil)
		return fmt.Errorf("failed to delete %d of %d objects: %w", len(errs), len(keys), errors.Join(errs...))
	}
	s.metrics.IncrementCounter("fs.delete_batch.success", nil)
	return nil
}

// Exists checks if an object exists
func (s *Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(objectPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// List returns every object under prefix, sorted by key
func (s *Storage) List(ctx context.Context, bucket, prefix string) ([]ports.ObjectInfo, error) {
	startTime := time.Now()
	bucketPath := filepath.Join(s.basePath, s.bucketName(bucket))

	objects := []ports.ObjectInfo{}
	err := filepath.WalkDir(bucketPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, metadataSuffix) {
			return nil
		}

		relPath, err := filepath.Rel(bucketPath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relPath)
		if d.Name() == folderMarker {
			key = strings.TrimSuffix(key, folderMarker)
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		size := info.Size()
		if d.Name() == folderMarker {
			size = 0
		}
		objects = append(objects, ports.ObjectInfo{
			Key:          key,
			Size:         size,
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to list objects", "prefix", prefix, "error", err)
		s.metrics.IncrementCounter("fs.list.errors", nil)
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	listing.SortByKey(objects)
	s.metrics.IncrementCounter("fs.list.success", nil)
	s.metrics.RecordHistogram("fs.list.duration_ms", float64(time.Since(startTime).Milliseconds()), nil)
	return objects, nil
}

// ListDelimited returns one level below prefix
func (s *Storage) ListDelimited(ctx context.Context, bucket, prefix, delimiter string) (*ports.ListResult, error) {
	objects, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	return listing.Group(objects, prefix, delimiter), nil
}

// CreateBucket creates a new bucket directory
func (s *Storage) CreateBucket(ctx context.Context, bucket string) error {
	bucketPath := filepath.Join(s.basePath, s.bucketName(bucket))
	if err := os.MkdirAll(bucketPath, 0o755); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	s.logger.Info("Bucket created", "bucket", s.bucketName(bucket))
	return nil
}

func (s *Storage) bucketName(bucket string) string {
	if bucket == "" {
		return defaultBucket
	}
	return bucket
}

// objectPath maps a key to a file inside the bucket directory and refuses
// keys that would resolve outside it.
func (s *Storage) objectPath(bucket, key string) (string, error) {
	bucketPath := filepath.Join(s.basePath, s.bucketName(bucket))
	rel := filepath.FromSlash(strings.TrimPrefix(key, "/"))
	if strings.HasSuffix(key, "/") {
		rel = filepath.Join(rel, folderMarker)
	}
	p := filepath.Join(bucketPath, rel)

	r, err := filepath.Rel(bucketPath, p)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return p, nil
}

// pruneEmptyDirs removes now-empty parent directories up to the bucket root.
func (s *Storage) pruneEmptyDirs(bucket, dir string) {
	bucketPath := filepath.Join(s.basePath, s.bucketName(bucket))
	for dir != bucketPath && strings.HasPrefix(dir, bucketPath) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (s *Storage) saveMetadata(objectPath string, metadata ports.ObjectMetadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return os.WriteFile(objectPath+metadataSuffix, data, 0o644)
}

func (s *Storage) loadMetadata(objectPath string) (ports.ObjectMetadata, error) {
	data, err := os.ReadFile(objectPath + metadataSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return ports.ObjectMetadata{}, nil
		}
		return ports.ObjectMetadata{}, err
	}

	var metadata ports.ObjectMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return ports.ObjectMetadata{}, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return metadata, nil
}
