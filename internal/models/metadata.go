package models

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Metadata keys written to the cluster.
const (
	MetaSize         = "size"
	MetaTags         = "tags"
	MetaUploadedAt   = "uploadedAt"
	MetaOriginalName = "originalName"
	MetaOwner        = "owner"
	MetaIsFolder     = "isFolder"
	MetaFileCount    = "fileCount"
	MetaRelativePath = "relativePath"

	// MetaLegacyType held a single tag before multi-tag support.
	MetaLegacyType = "type"
)

// Metadata is the flat string map attached to a pin. Every write replaces
// the whole stored record, so a Metadata value must always be complete.
type Metadata map[string]string

// FileMetadata builds the record for a single uploaded file.
func FileMetadata(name string, size int64, tags []string, owner, relativePath string, uploadedAt time.Time) Metadata {
	m := Metadata{
		MetaSize:         strconv.FormatInt(size, 10),
		MetaTags:         EncodeTags(tags),
		MetaUploadedAt:   FormatTimestamp(uploadedAt),
		MetaOriginalName: StripFolderMarker(name),
		MetaOwner:        strings.ToLower(owner),
	}
	if relativePath != "" {
		m[MetaRelativePath] = relativePath
	}
	return m
}

// FolderMetadata builds the record for a composed folder.
func FolderMetadata(name string, size int64, fileCount int, tags []string, owner string, uploadedAt time.Time) Metadata {
	return Metadata{
		MetaSize:         strconv.FormatInt(size, 10),
		MetaTags:         EncodeTags(tags),
		MetaUploadedAt:   FormatTimestamp(uploadedAt),
		MetaOriginalName: StripFolderMarker(name),
		MetaIsFolder:     "true",
		MetaFileCount:    strconv.Itoa(fileCount),
		MetaOwner:        strings.ToLower(owner),
	}
}

// MetadataFor rebuilds the full record of an existing item with a new tag
// set. fallbackOwner is used when the item has no owner of its own; an empty
// result leaves the owner key out.
func MetadataFor(item PinnedItem, tags []string, fallbackOwner string) Metadata {
	uploadedAt := item.CreatedAt
	if uploadedAt == "" {
		uploadedAt = FormatTimestamp(time.Now())
	}

	m := Metadata{
		MetaSize:       strconv.FormatInt(item.Size, 10),
		MetaTags:       EncodeTags(tags),
		MetaUploadedAt: uploadedAt,
	}
	// A pin listed without a name carries its CID as Name.
	if name := StripFolderMarker(item.Name); name != "" && name != item.CID {
		m[MetaOriginalName] = name
	}

	owner := item.Owner
	if owner == "" {
		owner = fallbackOwner
	}
	if owner = strings.ToLower(owner); owner != "" {
		m[MetaOwner] = owner
	}

	if item.IsFolder {
		m[MetaIsFolder] = "true"
	}
	if item.FileCount != nil {
		m[MetaFileCount] = strconv.Itoa(*item.FileCount)
	}
	if item.RelativePath != "" {
		m[MetaRelativePath] = item.RelativePath
	}
	return m
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Query encodes the pin name and metadata as cluster query parameters.
func (m Metadata) Query(name string) url.Values {
	q := url.Values{}
	q.Set("name", StripFolderMarker(name))
	for _, k := range m.Keys() {
		q.Add("meta-"+k, m[k])
	}
	return q
}
