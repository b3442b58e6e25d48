// Package mocks provides testify mocks of the application ports
package mocks

import (
	"context"
	"io"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/stretchr/testify/mock"
)

// MockStorage is a mock implementation of ports.Storage
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ports.ObjectMetadata) error {
	args := m.Called(ctx, bucket, key, reader, metadata)
	return args.Error(0)
}

func (m *MockStorage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStorage) GetWithMetadata(ctx context.Context, bucket, key string) (io.ReadCloser, *ports.ObjectMetadata, error) {
	args := m.Called(ctx, bucket, key)

	var reader io.ReadCloser
	var metadata *ports.ObjectMetadata

	if args.Get(0) != nil {
		reader = args.Get(0).(io.ReadCloser)
	}
	if args.Get(1) != nil {
		metadata = args.Get(1).(*ports.ObjectMetadata)
	}

	return reader, metadata, args.Error(2)
}

func (m *MockStorage) Delete(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

func (m *MockStorage) DeleteBatch(ctx context.Context, bucket string, keys []string) error {
	args := m.Called(ctx, bucket, keys)
	return args.Error(0)
}

func (m *MockStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	args := m.Called(ctx, bucket, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) List(ctx context.Context, bucket, prefix string) ([]ports.ObjectInfo, error) {
	args := m.Called(ctx, bucket, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.ObjectInfo), args.Error(1)
}

func (m *MockStorage) ListDelimited(ctx context.Context, bucket, prefix, delimiter string) (*ports.ListResult, error) {
	args := m.Called(ctx, bucket, prefix, delimiter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ListResult), args.Error(1)
}

func (m *MockStorage) CreateBucket(ctx context.Context, bucket string) error {
	args := m.Called(ctx, bucket)
	return args.Error(0)
}
