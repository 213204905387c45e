package models

import (
	"bytes"
	"io"
	"path"
	"strings"
)

// UploadItem pairs a payload with the path it should occupy inside an
// uploaded tree. It is transient and never persisted.
type UploadItem struct {
	// RelativePath uses forward slashes and, for folder uploads, starts with
	// the folder name.
	RelativePath string
	Size         int64
	Open         func() (io.ReadCloser, error)
}

// NewBytesItem wraps an in-memory payload.
func NewBytesItem(relativePath string, data []byte) UploadItem {
	return UploadItem{
		RelativePath: NormalizePath(relativePath),
		Size:         int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// BaseName returns the last path element.
func (u UploadItem) BaseName() string {
	return path.Base(u.RelativePath)
}

// Dir returns the parent directory of the item, or "" for a top-level item.
func (u UploadItem) Dir() string {
	dir := path.Dir(u.RelativePath)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// NormalizePath returns the cleaned, forward-slash, relative path.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// TotalSize sums the sizes of items.
func TotalSize(items []UploadItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Size
	}
	return total
}
