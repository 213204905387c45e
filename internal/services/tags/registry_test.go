package tags_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/services/pins"
	"github.com/TheMichaelB/pinsync/internal/services/tags"
	"github.com/TheMichaelB/pinsync/internal/state"
	"github.com/TheMichaelB/pinsync/test/testutil"
)

func newRegistry(t *testing.T, store state.Store) (*tags.Registry, *pins.PinSet) {
	t.Helper()
	logger := testutil.NewTestLogger()
	set := pins.NewPinSet(nil, logger)
	return tags.NewRegistry(store, set, logger), set
}

func TestRegistryDefaults(t *testing.T) {
	r, _ := newRegistry(t, state.NewMemoryStore())
	require.NoError(t, r.Load())

	assert.ElementsMatch(t, tags.DefaultOptions, r.Options())
	assert.Len(t, r.Options(), 4)
}

func TestRegistryLoad(t *testing.T) {
	t.Run("stored list is trimmed and sorted", func(t *testing.T) {
		store := state.NewMemoryStore()
		require.NoError(t, state.SetJSON(store, state.KeyTagOptions, []string{" b ", "", "a", "b"}))

		r, _ := newRegistry(t, store)
		require.NoError(t, r.Load())

		assert.Equal(t, []string{"a", "b"}, r.Options())
	})

	t.Run("empty list keeps defaults", func(t *testing.T) {
		store := state.NewMemoryStore()
		require.NoError(t, state.SetJSON(store, state.KeyTagOptions, []string{"  "}))

		r, _ := newRegistry(t, store)
		require.NoError(t, r.Load())

		assert.Len(t, r.Options(), len(tags.DefaultOptions))
	})

	t.Run("corrupt value", func(t *testing.T) {
		store := state.NewMemoryStore()
		require.NoError(t, store.Set(state.KeyTagOptions, []byte("{")))

		r, _ := newRegistry(t, store)
		assert.ErrorIs(t, r.Load(), state.ErrCorrupt)
	})
}

func TestRegistryAdd(t *testing.T) {
	store := state.NewMemoryStore()
	r, _ := newRegistry(t, store)

	changed, err := r.Add("  請求書 ")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, r.Options(), "請求書")

	changed, err = r.Add("請求書")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = r.Add("   ")
	require.NoError(t, err)
	assert.False(t, changed)

	var stored []string
	require.NoError(t, state.GetJSON(store, state.KeyTagOptions, &stored))
	assert.Equal(t, r.Options(), stored)
	assert.Equal(t, 1, store.Writes)
}

func TestRegistrySorted(t *testing.T) {
	r, _ := newRegistry(t, nil)
	for _, tag := range []string{"b", "A", "c"} {
		_, err := r.Add(tag)
		require.NoError(t, err)
	}

	options := r.Options()
	idx := func(s string) int {
		for i, o := range options {
			if o == s {
				return i
			}
		}
		return -1
	}
	assert.Less(t, idx("A"), idx("b"))
	assert.Less(t, idx("b"), idx("c"))
	// Katakana sort together
	assert.Less(t, idx("アセット"), idx("ログ"))
}

func TestRegistryAddPersistFailure(t *testing.T) {
	store := state.NewMemoryStore()
	store.SetError = errors.New("read-only")
	r, _ := newRegistry(t, store)

	_, err := r.Add("new")

	assert.Error(t, err)
	assert.NotContains(t, r.Options(), "new")
}

func TestRegistryDeleteGuard(t *testing.T) {
	store := state.NewMemoryStore()
	r, set := newRegistry(t, store)
	set.Prepend(testutil.SampleItem("bafyA", "0xabc", "ログ"))
	before := r.Options()

	err := r.Delete("ログ")

	assert.ErrorIs(t, err, models.ErrTagInUse)
	assert.Equal(t, before, r.Options())
	assert.Equal(t, 0, store.Writes)

	require.True(t, set.RemoveByCID("bafyA"))
	require.NoError(t, r.Delete("ログ"))
	assert.NotContains(t, r.Options(), "ログ")
	assert.Equal(t, 1, store.Writes)
}

func TestRegistryDeleteMissing(t *testing.T) {
	store := state.NewMemoryStore()
	r, _ := newRegistry(t, store)

	assert.NoError(t, r.Delete("nope"))
	assert.Equal(t, 0, store.Writes)
	assert.ErrorIs(t, r.Delete(" "), models.ErrEmptyTag)
}

func TestRegistryAvailable(t *testing.T) {
	r, set := newRegistry(t, nil)
	set.Prepend(testutil.SampleItem("bafyA", "0xabc", "invoice", "DB"))

	available := r.Available()

	assert.Contains(t, available, "invoice")
	assert.Len(t, available, len(tags.DefaultOptions)+1)
	assert.NotContains(t, r.Options(), "invoice")
}
