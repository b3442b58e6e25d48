package userstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/application/ports/mocks"
	"github.com/hicsail/kidney-web/internal/domain/userpath"
	"github.com/hicsail/kidney-web/internal/infrastructure/storage/adapters/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errBackendDown = errors.New("connection refused")

// spyStorage counts backend calls and fails the keys listed in failKeys.
type spyStorage struct {
	ports.Storage
	mu       sync.Mutex
	calls    int
	failKeys map[string]bool
	failAll  bool
}

func (s *spyStorage) record(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAll || s.failKeys[key] {
		return errBackendDown
	}
	return nil
}

func (s *spyStorage) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *spyStorage) Put(ctx context.Context, bucket, key string, r io.Reader, m ports.ObjectMetadata) error {
	if err := s.record(key); err != nil {
		return err
	}
	return s.Storage.Put(ctx, bucket, key, r, m)
}

func (s *spyStorage) GetWithMetadata(ctx context.Context, bucket, key string) (io.ReadCloser, *ports.ObjectMetadata, error) {
	if err := s.record(key); err != nil {
		return nil, nil, err
	}
	return s.Storage.GetWithMetadata(ctx, bucket, key)
}

func (s *spyStorage) Delete(ctx context.Context, bucket, key string) error {
	if err := s.record(key); err != nil {
		return err
	}
	return s.Storage.Delete(ctx, bucket, key)
}

func (s *spyStorage) DeleteBatch(ctx context.Context, bucket string, keys []string) error {
	if err := s.record(""); err != nil {
		return err
	}
	return s.Storage.DeleteBatch(ctx, bucket, keys)
}

func (s *spyStorage) List(ctx context.Context, bucket, prefix string) ([]ports.ObjectInfo, error) {
	if err := s.record(prefix); err != nil {
		return nil, err
	}
	return s.Storage.List(ctx, bucket, prefix)
}

func (s *spyStorage) ListDelimited(ctx context.Context, bucket, prefix, delimiter string) (*ports.ListResult, error) {
	if err := s.record(prefix); err != nil {
		return nil, err
	}
	return s.Storage.ListDelimited(ctx, bucket, prefix, delimiter)
}

func newTestStore(t *testing.T) (*Store, *spyStorage) {
	t.Helper()
	obs, logger, metrics := mocks.NewQuietObservability()
	spy := &spyStorage{
		Storage:  memory.NewStorage("kidney", logger, metrics),
		failKeys: map[string]bool{},
	}
	store, err := New(spy, "", obs)
	require.NoError(t, err)
	return store, spy
}

func TestForbiddenBeforeBackendCall(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(s *Store) error
	}{
		{"get foreign owner", func(s *Store) error {
			_, err := s.Get(ctx, "12", "34/inputs/a.png")
			return err
		}},
		{"get partial prefix", func(s *Store) error {
			_, err := s.Get(ctx, "12", "123/inputs/a.png")
			return err
		}},
		{"get parent escape", func(s *Store) error {
			_, err := s.Get(ctx, "12", "12/../34/inputs/a.png")
			return err
		}},
		{"get absolute", func(s *Store) error {
			_, err := s.Get(ctx, "12", "/12/inputs/a.png")
			return err
		}},
		{"put escape", func(s *Store) error {
			return s.Put(ctx, "12", "inputs", "../../34/inputs/a.png", []byte("x"))
		}},
		{"list escape", func(s *Store) error {
			_, err := s.List(ctx, "12", "inputs", "../..", false)
			return err
		}},
		{"delete escape", func(s *Store) error {
			_, err := s.Delete(ctx, "12", "../34/a.png")
			return err
		}},
		{"delete key foreign", func(s *Store) error {
			_, err := s.DeleteKey(ctx, "12", "123/inputs/a.png")
			return err
		}},
		{"delete key outside inputs", func(s *Store) error {
			_, err := s.DeleteKey(ctx, "12", "12/measurementmasks/a.png")
			return err
		}},
		{"create folder escape", func(s *Store) error {
			return s.CreateFolder(ctx, "12", "../34")
		}},
		{"delete folder escape", func(s *Store) error {
			_, err := s.DeleteFolder(ctx, "12", "/etc")
			return err
		}},
		{"empty user", func(s *Store) error {
			_, err := s.Get(ctx, "", "12/inputs/a.png")
			return err
		}},
		{"list as nested user id", func(s *Store) error {
			_, err := s.List(ctx, "12/inputs", "", "", false)
			return err
		}},
		{"put as nested user id", func(s *Store) error {
			return s.Put(ctx, "a/b", "inputs", "foo.png", []byte("x"))
		}},
		{"delete as climbing user id", func(s *Store) error {
			_, err := s.Delete(ctx, "12/..", "a.png")
			return err
		}},
		{"create folder as nested user id", func(s *Store) error {
			return s.CreateFolder(ctx, "12/inputs", "x")
		}},
		{"delete folder as nested user id", func(s *Store) error {
			_, err := s.DeleteFolder(ctx, "12/inputs", "x")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, spy := newTestStore(t)

			err := tt.call(store)

			assert.ErrorIs(t, err, ErrForbidden)
			assert.Equal(t, CodeForbidden, CodeOf(err))
			assert.Zero(t, spy.Calls())
		})
	}
}

func TestForbiddenIsLoggedAsSuspicious(t *testing.T) {
	logger := &mocks.MockLogger{}
	logger.On("Warn", "Fishy activity detected", mock.Anything).Once()

	metrics := &mocks.MockMetrics{}
	metrics.On("IncrementCounter", "userstore.forbidden", map[string]string{"op": "get"}).Once()

	obs := &mocks.MockObservability{}
	obs.On("ComponentsScoped", "usecase.userstore").Return(logger, metrics, nil)

	storage := &mocks.MockStorage{}
	store, err := New(storage, "", obs)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "12", "123/inputs/a.png")
	assert.ErrorIs(t, err, ErrForbidden)

	logger.AssertExpectations(t)
	metrics.AssertExpectations(t)
	storage.AssertNotCalled(t, "GetWithMetadata", mock.Anything, mock.Anything, mock.Anything)
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	data := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}

	require.NoError(t, store.Put(ctx, "u1", "inputs", "foo.png", data))

	got, err := store.Get(ctx, "u1", "u1/inputs/foo.png")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	obj, err := store.GetObject(ctx, "u1", "u1/inputs/foo.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, int64(len(data)), obj.Size)
}

func TestGetNotFoundAndBackendFailure(t *testing.T) {
	store, spy := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "u1", "u1/inputs/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)

	spy.failAll = true
	_, err = store.Get(ctx, "u1", "u1/inputs/missing.png")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, errBackendDown)

	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	assert.True(t, storeErr.Retryable)
	assert.Equal(t, "get", storeErr.Op)
}

func TestPutRejectsUnknownCategory(t *testing.T) {
	store, spy := newTestStore(t)

	err := store.Put(context.Background(), "u1", "secrets", "a.png", []byte("x"))

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, spy.Calls())
}

func TestPutBatchPartialFailure(t *testing.T) {
	store, spy := newTestStore(t)
	ctx := context.Background()
	spy.failKeys["u1/inputs/b.png"] = true

	result := store.PutBatch(ctx, "u1", "inputs", []File{
		{Name: "a.png", Data: []byte("a")},
		{Name: "b.png", Data: []byte("b")},
		{Name: "c.png", Data: []byte("c")},
	})

	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 3, result.AttemptCount)
	assert.True(t, result.Partial())
	assert.Equal(t, "2 of 3 files successfully uploaded.", result.Message())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "b.png", result.Failures[0].Name)
	assert.ErrorIs(t, result.Failures[0].Err, ErrBackendUnavailable)

	for _, key := range []string{"u1/inputs/a.png", "u1/inputs/c.png"} {
		_, err := store.Get(ctx, "u1", key)
		assert.NoError(t, err, key)
	}
}

func TestPutBatchKeepsFailureOrder(t *testing.T) {
	store, spy := newTestStore(t)
	files := make([]File, 0, 12)
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("f%02d.png", i)
		files = append(files, File{Name: name, Data: []byte(name)})
		if i%3 == 0 {
			spy.failKeys["u1/inputs/"+name] = true
		}
	}

	result := store.PutBatch(context.Background(), "u1", "inputs", files)

	assert.Equal(t, 8, result.SuccessCount)
	names := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"f00.png", "f03.png", "f06.png", "f09.png"}, names)
}

func TestListEmptyNamespace(t *testing.T) {
	store, _ := newTestStore(t)

	for _, delimited := range []bool{false, true} {
		entries, err := store.List(context.Background(), "nobody", "inputs", "", delimited)
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	}
}

func TestListBackendUnavailable(t *testing.T) {
	store, spy := newTestStore(t)
	spy.failAll = true

	entries, err := store.List(context.Background(), "u1", "", "", true)

	assert.Nil(t, entries)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestListDelimited(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "u1", "inputs", "a.png", []byte("a")))
	require.NoError(t, store.Put(ctx, "u1", "inputs", "run1/b.png", []byte("bb")))
	require.NoError(t, store.Put(ctx, "u2", "inputs", "other.png", []byte("x")))

	entries, err := store.List(ctx, "u1", "inputs", "", true)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Key: "u1/inputs/run1/", Name: "run1", IsFolder: true}, entries[0])
	assert.Equal(t, "u1/inputs/a.png", entries[1].Key)
	assert.Equal(t, "a.png", entries[1].Name)
	assert.Equal(t, int64(1), entries[1].Size)

	entries, err = store.List(ctx, "u1", "inputs", "", false)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "u1/inputs/a.png", entries[0].Key)
	assert.Equal(t, "u1/inputs/run1/b.png", entries[1].Key)
	assert.False(t, entries[1].IsFolder)
}

func TestFolderLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateFolder(ctx, "u1", "projectA"))

	entries, err := store.List(ctx, "u1", "", "", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1/projectA/", entries[0].Key)
	assert.Equal(t, "projectA", entries[0].Name)
	assert.True(t, entries[0].IsFolder)

	// The folder's own marker is not listed inside it.
	inside, err := store.List(ctx, "u1", "", "projectA", true)
	require.NoError(t, err)
	assert.Empty(t, inside)

	removed, err := store.DeleteFolder(ctx, "u1", "projectA")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err = store.List(ctx, "u1", "", "", false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEmptyPathIsInvalidRequest(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(s *Store) error
	}{
		{"create folder", func(s *Store) error {
			return s.CreateFolder(ctx, "u1", "")
		}},
		{"delete folder", func(s *Store) error {
			_, err := s.DeleteFolder(ctx, "u1", "")
			return err
		}},
		{"get", func(s *Store) error {
			_, err := s.Get(ctx, "u1", "")
			return err
		}},
		{"delete", func(s *Store) error {
			_, err := s.Delete(ctx, "u1", "")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, logger, metrics := mocks.NewQuietObservability()
			spy := &spyStorage{Storage: memory.NewStorage("kidney", logger, metrics)}
			store, err := New(spy, "", obs)
			require.NoError(t, err)

			err = tt.call(store)

			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, CodeInvalidRequest, CodeOf(err))
			assert.Zero(t, spy.Calls())
			logger.AssertNotCalled(t, "Warn", "Fishy activity detected", mock.Anything)
		})
	}
}

func TestDeleteFolderEmptyIsNoop(t *testing.T) {
	store, spy := newTestStore(t)

	removed, err := store.DeleteFolder(context.Background(), "u1", "ghost")

	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, 1, spy.Calls(), "only the listing reaches the backend")
}

func TestDeleteFolderRemovesContents(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateFolder(ctx, "u1", "projectA"))
	require.NoError(t, store.CreateFolder(ctx, "u1", "projectA/sub"))
	require.NoError(t, store.CreateFolder(ctx, "u1", "projectAB"))

	removed, err := store.DeleteFolder(ctx, "u1", "projectA/")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := store.List(ctx, "u1", "", "", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1/projectAB/", entries[0].Key)
}

func seedInput(t *testing.T, store *Store, userID, rel string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, userID, "inputs", rel, []byte("img")))
	require.NoError(t, store.Put(ctx, userID, "measurementmasks", rel, []byte("mask")))
	require.NoError(t, store.Put(ctx, userID, "widthinfojsons", userpath.SidecarPath(rel), []byte("{}")))
}

func TestDeleteCascade(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedInput(t, store, "u1", "run1/a.png")

	result, err := store.Delete(ctx, "u1", "run1/a.png")
	require.NoError(t, err)
	assert.Equal(t, []StageOutcome{
		{Stage: userpath.MeasurementMasks, Key: "u1/measurementmasks/run1/a.png", Status: StageDeleted},
		{Stage: userpath.WidthInfoJSONs, Key: "u1/widthinfojsons/run1/a.json", Status: StageDeleted},
		{Stage: userpath.Inputs, Key: "u1/inputs/run1/a.png", Status: StageDeleted},
	}, result.Stages)

	entries, err := store.List(ctx, "u1", "", "", false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedInput(t, store, "u1", "a.png")

	_, err := store.Delete(ctx, "u1", "a.png")
	require.NoError(t, err)

	result, err := store.Delete(ctx, "u1", "a.png")
	require.NoError(t, err)
	require.Len(t, result.Stages, 3)
	for _, s := range result.Stages {
		assert.Equal(t, StageAbsent, s.Status, s.Stage)
	}
}

func TestDeleteCascadeAbortsOnDerivedFailure(t *testing.T) {
	tests := []struct {
		name      string
		failKey   string
		stage     userpath.Category
		numStages int
	}{
		{"mask", "u1/measurementmasks/a.png", userpath.MeasurementMasks, 1},
		{"sidecar", "u1/widthinfojsons/a.json", userpath.WidthInfoJSONs, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, spy := newTestStore(t)
			ctx := context.Background()
			seedInput(t, store, "u1", "a.png")
			spy.failKeys[tt.failKey] = true

			result, err := store.Delete(ctx, "u1", "a.png")

			assert.ErrorIs(t, err, ErrCascadeAborted)
			var storeErr *Error
			require.ErrorAs(t, err, &storeErr)
			assert.Equal(t, tt.stage, storeErr.Stage)

			stage, failed := result.FailedStage()
			assert.True(t, failed)
			assert.Equal(t, tt.stage, stage)
			assert.Len(t, result.Stages, tt.numStages)

			got, err := store.Get(ctx, "u1", "u1/inputs/a.png")
			require.NoError(t, err)
			assert.Equal(t, []byte("img"), got)
		})
	}
}

func TestDeleteSourceFailureIsBackendUnavailable(t *testing.T) {
	store, spy := newTestStore(t)
	seedInput(t, store, "u1", "a.png")
	spy.failKeys["u1/inputs/a.png"] = true

	result, err := store.Delete(context.Background(), "u1", "a.png")

	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.NotErrorIs(t, err, ErrCascadeAborted)
	require.Len(t, result.Stages, 3)
	assert.Equal(t, StageFailed, result.Stages[2].Status)
}

func TestDeleteKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedInput(t, store, "u1", "a.tif")

	result, err := store.DeleteKey(ctx, "u1", "u1/inputs/a.tif")
	require.NoError(t, err)
	assert.Equal(t, "a.tif", result.RelativePath)
	assert.Equal(t, "u1/widthinfojsons/a.json", result.Stages[1].Key)

	_, err = store.Get(ctx, "u1", "u1/inputs/a.tif")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResultKeys(t *testing.T) {
	store, _ := newTestStore(t)

	keys, err := store.ResultKeys("u1", "run/a.b.png")
	require.NoError(t, err)
	assert.Equal(t, ResultKeys{
		Input:     "u1/inputs/run/a.b.png",
		Mask:      "u1/measurementmasks/run/a.b.png",
		WidthInfo: "u1/widthinfojsons/run/a.b.json",
	}, keys)

	_, err = store.ResultKeys("u1", "../a.png")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestGetArtifact(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedInput(t, store, "u1", "a.png")

	obj, err := store.GetArtifact(ctx, "u1", userpath.WidthInfoJSONs, "a.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), obj.Data)

	_, err = store.GetArtifact(ctx, "u1", userpath.MeasurementMasks, "b.png")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetArtifact(ctx, "u1", userpath.MeasurementMasks, "../../u2/x.png")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestNewRequiresStorage(t *testing.T) {
	obs, _, _ := mocks.NewQuietObservability()
	_, err := New(nil, "", obs)
	assert.Error(t, err)
}
