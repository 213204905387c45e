package pins_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/services/pins"
	"github.com/TheMichaelB/pinsync/internal/state"
	"github.com/TheMichaelB/pinsync/test/testutil"
)

func TestPinSetPrependAndGet(t *testing.T) {
	set := pins.NewPinSet(nil, testutil.NewTestLogger())

	set.Prepend(testutil.SampleItem("bafyA", "0xabc"))
	set.Prepend(testutil.SampleItem("bafyB", "0xabc"))

	items := set.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "bafyB", items[0].CID)

	item, ok := set.GetByID("id-bafyA")
	require.True(t, ok)
	assert.Equal(t, "bafyA", item.CID)

	_, ok = set.Get("missing")
	assert.False(t, ok)
}

func TestPinSetItemsAreCopies(t *testing.T) {
	set := pins.NewPinSet(nil, testutil.NewTestLogger())
	set.Prepend(testutil.SampleItem("bafyA", "0xabc", "DB"))

	items := set.Items()
	items[0].Tags[0] = "changed"

	got, _ := set.Get("bafyA")
	assert.Equal(t, []string{"DB"}, got.Tags)
}

func TestPinSetReplaceOverlaysNewerEdits(t *testing.T) {
	set := pins.NewPinSet(nil, testutil.NewTestLogger())
	set.Prepend(testutil.SampleItem("bafyA", "0xabc", "DB"))
	set.Prepend(testutil.SampleItem("bafyB", "0xabc"))

	since := set.Generation()
	require.True(t, set.PatchTags("bafyA", []string{"DB", "ログ"}))
	assert.Greater(t, set.Generation(), since)

	fetched := []models.PinnedItem{
		testutil.SampleItem("bafyA", "0xabc", "DB"),
		testutil.SampleItem("bafyB", "0xabc", "その他"),
	}
	set.Replace(fetched, since)

	a, _ := set.Get("bafyA")
	b, _ := set.Get("bafyB")
	assert.Equal(t, []string{"DB", "ログ"}, a.Tags)
	assert.Equal(t, []string{"その他"}, b.Tags)
}

func TestPinSetApplyEditFillsMissingOwner(t *testing.T) {
	set := pins.NewPinSet(nil, testutil.NewTestLogger())
	set.Prepend(testutil.SampleItem("bafyA", ""))
	set.Prepend(testutil.SampleItem("bafyB", "0xabc"))

	since := set.Generation()
	require.True(t, set.ApplyEdit("bafyA", []string{"DB"}, "0xme"))
	require.True(t, set.ApplyEdit("bafyB", []string{"DB"}, "0xme"))

	a, _ := set.Get("bafyA")
	b, _ := set.Get("bafyB")
	assert.Equal(t, "0xme", a.Owner)
	assert.Equal(t, "0xabc", b.Owner, "an existing owner is kept")

	// A listing fetched before the write still has no owner.
	set.Replace([]models.PinnedItem{testutil.SampleItem("bafyA", "")}, since)
	a, _ = set.Get("bafyA")
	assert.Equal(t, "0xme", a.Owner)
	assert.Equal(t, []string{"DB"}, a.Tags)
}

func TestPinSetReplaceDropsSeenEdits(t *testing.T) {
	set := pins.NewPinSet(nil, testutil.NewTestLogger())
	set.Prepend(testutil.SampleItem("bafyA", "0xabc"))
	set.PatchTags("bafyA", []string{"DB"})

	// The fetch started after the edit, so the listing wins.
	set.Replace([]models.PinnedItem{testutil.SampleItem("bafyA", "0xabc", "アセット")}, set.Generation())

	a, _ := set.Get("bafyA")
	assert.Equal(t, []string{"アセット"}, a.Tags)
}

func TestPinSetPatchMissing(t *testing.T) {
	set := pins.NewPinSet(nil, testutil.NewTestLogger())

	assert.False(t, set.PatchTags("missing", []string{"DB"}))
	assert.Equal(t, uint64(0), set.Generation())
}

func TestPinSetRemoveByCID(t *testing.T) {
	set := pins.NewPinSet(nil, testutil.NewTestLogger())
	set.Prepend(testutil.SampleItem("bafyA", "0xabc"))
	set.Prepend(testutil.SampleItem("bafyB", "0xabc"))

	assert.True(t, set.RemoveByCID("bafyA"))
	assert.False(t, set.RemoveByCID("bafyA"))
	assert.Equal(t, 1, set.Len())
}

func TestPinSetPersistence(t *testing.T) {
	store := state.NewMemoryStore()
	set := pins.NewPinSet(store, testutil.NewTestLogger())

	set.Prepend(testutil.SampleItem("bafyA", "0xabc", "DB"))
	set.SetNodeCount(3)
	set.SetNodeCount(3)

	assert.Equal(t, 2, store.Writes)

	restored := pins.NewPinSet(store, testutil.NewTestLogger())
	require.NoError(t, restored.Restore())
	assert.Equal(t, 3, restored.NodeCount())
	item, ok := restored.Get("bafyA")
	require.True(t, ok)
	assert.Equal(t, []string{"DB"}, item.Tags)
	assert.Equal(t, "0xabc", item.Owner)
}

func TestPinSetPersistFailureIsNotFatal(t *testing.T) {
	store := state.NewMemoryStore()
	store.SetError = errors.New("disk full")
	set := pins.NewPinSet(store, testutil.NewTestLogger())

	set.Prepend(testutil.SampleItem("bafyA", "0xabc"))

	assert.Equal(t, 1, set.Len())
}

func TestPinSetRestore(t *testing.T) {
	t.Run("missing cache", func(t *testing.T) {
		set := pins.NewPinSet(state.NewMemoryStore(), testutil.NewTestLogger())
		require.NoError(t, set.Restore())
		assert.Equal(t, 0, set.Len())
	})

	t.Run("legacy single type", func(t *testing.T) {
		store := state.NewMemoryStore()
		require.NoError(t, store.Set(state.KeyPins, []byte(`{
			"version": 1,
			"items": [
				{"id":"1","cid":"bafyOld","name":"old.log","size":3,"createdAt":"2023-01-01T00:00:00Z","type":"ログ"},
				{"id":"2","cid":"bafyNone","name":"none","size":1,"createdAt":"2023-01-01T00:00:00Z"}
			]
		}`)))

		set := pins.NewPinSet(store, testutil.NewTestLogger())
		require.NoError(t, set.Restore())

		old, ok := set.Get("bafyOld")
		require.True(t, ok)
		assert.Equal(t, []string{"ログ"}, old.Tags)
		none, _ := set.Get("bafyNone")
		assert.Equal(t, []string{}, none.Tags)
	})

	t.Run("corrupt cache", func(t *testing.T) {
		store := state.NewMemoryStore()
		require.NoError(t, store.Set(state.KeyPins, []byte(`{not json`)))

		set := pins.NewPinSet(store, testutil.NewTestLogger())
		err := set.Restore()
		assert.ErrorIs(t, err, state.ErrCorrupt)
	})

	t.Run("no store", func(t *testing.T) {
		set := pins.NewPinSet(nil, testutil.NewTestLogger())
		assert.NoError(t, set.Restore())
	})
}

func TestPinSetTagsInUse(t *testing.T) {
	set := pins.NewPinSet(nil, testutil.NewTestLogger())
	set.Prepend(testutil.SampleItem("bafyA", "0xabc", "DB", "ログ"))
	set.Prepend(testutil.SampleItem("bafyB", "0xdef", "ログ", "アセット"))

	assert.True(t, set.TagInUse("DB"))
	assert.False(t, set.TagInUse("その他"))
	assert.ElementsMatch(t, []string{"DB", "ログ", "アセット"}, set.TagsInUse())
}
