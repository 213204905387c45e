package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/pinsync/internal/models"
)

var uploadedAt = time.Date(2025, 3, 4, 5, 6, 7, 890_000_000, time.UTC)

func TestFileMetadata(t *testing.T) {
	m := models.FileMetadata("report.pdf", 42, []string{"invoice"}, "0xABC", "", uploadedAt)

	assert.Equal(t, models.Metadata{
		"size":         "42",
		"tags":         `["invoice"]`,
		"uploadedAt":   "2025-03-04T05:06:07.890Z",
		"originalName": "report.pdf",
		"owner":        "0xabc",
	}, m)

	withPath := models.FileMetadata("b.txt", 1, nil, "0xabc", "docs/b.txt", uploadedAt)
	assert.Equal(t, "docs/b.txt", withPath[models.MetaRelativePath])
	assert.Equal(t, "[]", withPath[models.MetaTags])
}

func TestFolderMetadata(t *testing.T) {
	m := models.FolderMetadata("📁 photos", 300, 3, []string{"DB"}, "0xabc", uploadedAt)

	assert.Equal(t, "photos", m[models.MetaOriginalName])
	assert.Equal(t, "true", m[models.MetaIsFolder])
	assert.Equal(t, "3", m[models.MetaFileCount])
	assert.Equal(t, "300", m[models.MetaSize])
}

func TestMetadataForCarriesAllFields(t *testing.T) {
	item := models.PinnedItem{
		CID:          "Qm1",
		Name:         "📁 photos",
		Size:         300,
		CreatedAt:    "2025-01-01T00:00:00.000Z",
		Tags:         []string{"a"},
		Owner:        "0xabc",
		IsFolder:     true,
		FileCount:    models.IntPtr(3),
		RelativePath: "photos/x",
	}

	m := models.MetadataFor(item, []string{"a", "b"}, "0xother")

	assert.Equal(t, models.Metadata{
		"size":         "300",
		"tags":         `["a","b"]`,
		"uploadedAt":   "2025-01-01T00:00:00.000Z",
		"originalName": "photos",
		"owner":        "0xabc",
		"isFolder":     "true",
		"fileCount":    "3",
		"relativePath": "photos/x",
	}, m)
}

func TestMetadataForOwnerFallback(t *testing.T) {
	item := models.PinnedItem{CID: "Qm1", Name: "a.txt", CreatedAt: "2025-01-01T00:00:00.000Z"}

	m := models.MetadataFor(item, nil, "0xFALLBACK")
	assert.Equal(t, "0xfallback", m[models.MetaOwner])

	m = models.MetadataFor(item, nil, "")
	_, ok := m[models.MetaOwner]
	assert.False(t, ok)
	_, ok = m[models.MetaIsFolder]
	assert.False(t, ok)
}

func TestMetadataForSkipsCIDFallbackName(t *testing.T) {
	item := models.PinnedItem{CID: "bafyNoName", Name: "bafyNoName", Owner: "0xabc"}

	m := models.MetadataFor(item, []string{"DB"}, "")

	_, ok := m[models.MetaOriginalName]
	assert.False(t, ok, "the CID is not written back as a name")
	assert.Equal(t, `["DB"]`, m[models.MetaTags])

	item.Name = ""
	_, ok = models.MetadataFor(item, nil, "")[models.MetaOriginalName]
	assert.False(t, ok)
}

func TestMetadataQuery(t *testing.T) {
	m := models.Metadata{"owner": "0xabc", "tags": `["x"]`}
	q := m.Query("📁 docs")

	assert.Equal(t, "docs", q.Get("name"))
	assert.Equal(t, "0xabc", q.Get("meta-owner"))
	assert.Equal(t, `["x"]`, q.Get("meta-tags"))
	assert.Equal(t, "meta-owner=0xabc&meta-tags=%5B%22x%22%5D&name=docs", q.Encode())
}
