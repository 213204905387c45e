package state_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/pinsync/internal/config"
	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/state"
)

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

func TestJSONStore(t *testing.T) {
	store, err := state.NewJSONStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestBoltStore(t *testing.T) {
	store, err := state.NewBoltStore(filepath.Join(t.TempDir(), "cache.bolt"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestMemoryStore(t *testing.T) {
	store := state.NewMemoryStore()
	defer store.Close()

	testStoreOperations(t, store)
}

func TestS3Store(t *testing.T) {
	store := state.NewS3StoreWithClient(newFakeS3(), "bucket", "cache", testLogger())
	defer store.Close()

	testStoreOperations(t, store)
}

func testStoreOperations(t *testing.T, store state.Store) {
	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(state.KeyPins)
		assert.ErrorIs(t, err, state.ErrNotFound)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, store.Set(state.KeyPins, []byte(`{"items":[1,2,3]}`)))

		value, err := store.Get(state.KeyPins)
		require.NoError(t, err)
		assert.JSONEq(t, `{"items":[1,2,3]}`, string(value))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(state.KeyPins, []byte(`{"items":[]}`)))

		value, err := store.Get(state.KeyPins)
		require.NoError(t, err)
		assert.JSONEq(t, `{"items":[]}`, string(value))
	})

	t.Run("json helpers", func(t *testing.T) {
		require.NoError(t, state.SetJSON(store, state.KeyTagOptions, []string{"DB", "ログ"}))

		var options []string
		require.NoError(t, state.GetJSON(store, state.KeyTagOptions, &options))
		assert.Equal(t, []string{"DB", "ログ"}, options)
	})

	t.Run("keys", func(t *testing.T) {
		keys, err := store.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{state.KeyPins, state.KeyTagOptions}, keys)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(state.KeyPins))
		_, err := store.Get(state.KeyPins)
		assert.ErrorIs(t, err, state.ErrNotFound)

		assert.NoError(t, store.Delete("never-existed"))
	})
}

func TestJSONStoreRejectsNonJSON(t *testing.T) {
	store, err := state.NewJSONStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	assert.Error(t, store.Set("k", []byte("not json")))
}

func TestJSONStoreBackupRecovery(t *testing.T) {
	dir := t.TempDir()
	store, err := state.NewJSONStore(dir, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Set(state.KeyPins, []byte(`{"v":1}`)))
	require.NoError(t, store.Set(state.KeyPins, []byte(`{"v":2}`)))

	// Damage the live file; the backup holds the previous value.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pins.v1.json"), []byte("{broken"), 0600))

	value, err := store.Get(state.KeyPins)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(value))
}

func TestJSONStoreChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := state.NewJSONStore(dir, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Set(state.KeyPins, []byte(`{"v":1}`)))

	path := filepath.Join(dir, "pins.v1.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"v": 1`, `"v": 9`, 1)
	require.NotEqual(t, string(data), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0600))

	_, err = store.Get(state.KeyPins)
	assert.ErrorIs(t, err, state.ErrCorrupt)
}

func TestGetJSONCorrupt(t *testing.T) {
	store := state.NewMemoryStore()
	require.NoError(t, store.Set("k", []byte(`"a string"`)))

	var n []int
	err := state.GetJSON(store, "k", &n)
	assert.ErrorIs(t, err, state.ErrCorrupt)
}

func TestMigrate(t *testing.T) {
	src := state.NewMemoryStore()
	require.NoError(t, src.Set("a", []byte(`1`)))
	require.NoError(t, src.Set("b", []byte(`2`)))

	dst, err := state.NewBoltStore(filepath.Join(t.TempDir(), "dst.bolt"), testLogger())
	require.NoError(t, err)
	defer dst.Close()

	n, err := state.Migrate(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	value, err := dst.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "2", string(value))
}

func TestMigrateWriteFailure(t *testing.T) {
	src := state.NewMemoryStore()
	require.NoError(t, src.Set("a", []byte(`1`)))

	dst := state.NewMemoryStore()
	dst.SetError = errors.New("disk full")

	_, err := state.Migrate(src, dst)
	assert.ErrorContains(t, err, "disk full")
}

func TestOpen(t *testing.T) {
	for _, backend := range []string{"json", "sqlite", "bolt", "memory"} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.State.Backend = backend
			cfg.State.DataDir = t.TempDir()

			store, err := state.Open(cfg, testLogger())
			require.NoError(t, err)
			defer store.Close()

			require.NoError(t, store.Set("k", []byte(`true`)))
		})
	}

	cfg := config.DefaultConfig()
	cfg.State.Backend = "redis"
	_, err := state.Open(cfg, testLogger())
	assert.Error(t, err)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := state.NewMemoryStore()
	require.NoError(t, store.Close())

	_, err := store.Get("k")
	assert.ErrorIs(t, err, state.ErrClosed)
}

// fakeS3 is an in-memory stand-in for the S3 API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, *in.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		key := k
		out.Contents = append(out.Contents, types.Object{Key: &key})
	}
	return out, nil
}
