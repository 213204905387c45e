package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/pinsync/internal/models"
)

func TestPinCacheLegacyType(t *testing.T) {
	raw := `{"version":1,"items":[
		{"id":"1","cid":"Qm1","name":"a","type":"ログ"},
		{"id":"2","cid":"Qm2","name":"b","tags":["x"],"type":"ignored"},
		{"id":"3","cid":"Qm3","name":"c"}
	]}`

	var cache models.PinCache
	require.NoError(t, json.Unmarshal([]byte(raw), &cache))

	items := cache.PinnedItems()
	require.Len(t, items, 3)
	assert.Equal(t, []string{"ログ"}, items[0].Tags)
	assert.Equal(t, []string{"x"}, items[1].Tags)
	assert.Equal(t, []string{}, items[2].Tags)
}

func TestPinCacheRoundTrip(t *testing.T) {
	items := []models.PinnedItem{
		{ID: "1", CID: "Qm1", Name: "docs", Tags: []string{"a"}, IsFolder: true, FileCount: models.IntPtr(2)},
	}
	data, err := json.Marshal(models.NewPinCache(items, 3))
	require.NoError(t, err)

	var cache models.PinCache
	require.NoError(t, json.Unmarshal(data, &cache))
	assert.Equal(t, 3, cache.NodeCount)
	assert.Equal(t, items, cache.PinnedItems())
}
