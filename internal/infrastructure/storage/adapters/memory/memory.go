// Package memory is an in-process ports.Storage for tests and single-process
// runs. Objects are copied on the way in and out.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/infrastructure/storage/listing"
)

type object struct {
	data     []byte
	metadata ports.ObjectMetadata
}

// Storage keeps objects in a bucket -> key map guarded by an RWMutex.
type Storage struct {
	mu            sync.RWMutex
	buckets       map[string]map[string]object
	defaultBucket string
	logger        ports.Logger
	metrics       ports.Metrics
}

// NewStorage returns a store with defaultBucket already created.
func NewStorage(defaultBucket string, logger ports.Logger, metrics ports.Metrics) *Storage {
	if defaultBucket == "" {
		defaultBucket = "default"
	}
	return &Storage{
		buckets:       map[string]map[string]object{defaultBucket: {}},
		defaultBucket: defaultBucket,
		logger:        logger,
		metrics:       metrics,
	}
}

func (s *Storage) bucket(name string) string {
	if name == "" {
		return s.defaultBucket
	}
	return name
}

// objects must be called with s.mu held.
func (s *Storage) objects(bucket string) (map[string]object, error) {
	m, ok := s.buckets[s.bucket(bucket)]
	if !ok {
		return nil, fmt.Errorf("bucket %s does not exist", s.bucket(bucket))
	}
	return m, nil
}

func (s *Storage) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ports.ObjectMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read object body: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.objects(bucket)
	if err != nil {
		return err
	}

	sum := md5.Sum(data)
	metadata.ContentLength = int64(len(data))
	metadata.LastModified = time.Now().UTC()
	metadata.ETag = hex.EncodeToString(sum[:])
	metadata.UserMetadata = copyMap(metadata.UserMetadata)
	m[key] = object{data: data, metadata: metadata}

	s.metrics.IncrementCounter("memory.put.success", nil)
	return nil
}

func (s *Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	reader, _, err := s.GetWithMetadata(ctx, bucket, key)
	return reader, err
}

func (s *Storage) GetWithMetadata(ctx context.Context, bucket, key string) (io.ReadCloser, *ports.ObjectMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.objects(bucket)
	if err != nil {
		return nil, nil, err
	}
	obj, ok := m[key]
	if !ok {
		return nil, nil, ports.ErrObjectNotFound
	}

	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	meta := obj.metadata
	meta.UserMetadata = copyMap(obj.metadata.UserMetadata)
	return io.NopCloser(bytes.NewReader(cp)), &meta, nil
}

// Delete reports ErrObjectNotFound for a missing key.
func (s *Storage) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.objects(bucket)
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return ports.ErrObjectNotFound
	}
	delete(m, key)
	s.metrics.IncrementCounter("memory.delete.success", nil)
	return nil
}

// DeleteBatch removes every key that exists; missing keys are ignored.
func (s *Storage) DeleteBatch(ctx context.Context, bucket string, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.objects(bucket)
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(m, k)
	}
	s.metrics.IncrementCounter("memory.delete_batch.success", nil)
	return nil
}

func (s *Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.objects(bucket)
	if err != nil {
		return false, err
	}
	_, ok := m[key]
	return ok, nil
}

// List returns objects under prefix sorted by key.
func (s *Storage) List(ctx context.Context, bucket, prefix string) ([]ports.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.objects(bucket)
	if err != nil {
		return nil, err
	}

	objects := []ports.ObjectInfo{}
	for key, obj := range m {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, info(key, obj))
		}
	}
	listing.SortByKey(objects)
	return objects, nil
}

// ListDelimited groups keys below prefix the way S3 does
func (s *Storage) ListDelimited(ctx context.Context, bucket, prefix, delimiter string) (*ports.ListResult, error) {
	objects, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	return listing.Group(objects, prefix, delimiter), nil
}

func (s *Storage) CreateBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.bucket(bucket)
	if _, ok := s.buckets[name]; !ok {
		s.buckets[name] = map[string]object{}
		s.logger.Info("Created in-memory bucket", "bucket", name)
	}
	return nil
}

func info(key string, obj object) ports.ObjectInfo {
	return ports.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.metadata.LastModified,
		ETag:         obj.metadata.ETag,
	}
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
