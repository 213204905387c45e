package models

import (
	"strings"
	"time"
)

// FolderMarker prefixes folder names for display only. It is never stored.
const FolderMarker = "📁 "

// PinnedItem is the canonical local view of one cluster pin.
type PinnedItem struct {
	// ID is regenerated on every reconciliation and must not outlive a refresh.
	ID           string   `json:"id"`
	CID          string   `json:"cid"`
	Name         string   `json:"name"`
	Size         int64    `json:"size"`
	CreatedAt    string   `json:"createdAt"`
	Tags         []string `json:"tags"`
	Owner        string   `json:"owner,omitempty"`
	Replication  int      `json:"replication"`
	IsFolder     bool     `json:"isFolder,omitempty"`
	FileCount    *int     `json:"fileCount,omitempty"`
	RelativePath string   `json:"relativePath,omitempty"`
}

// Label returns the display name, with the folder marker for folders.
func (p PinnedItem) Label() string {
	if p.IsFolder {
		return FolderMarker + StripFolderMarker(p.Name)
	}
	return p.Name
}

// HasTag reports whether the item carries tag.
func (p PinnedItem) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// OwnedBy reports whether the item belongs to account. Items without an
// owner never match.
func (p PinnedItem) OwnedBy(account string) bool {
	if p.Owner == "" || account == "" {
		return false
	}
	return strings.EqualFold(p.Owner, account)
}

// Clone returns a deep copy.
func (p PinnedItem) Clone() PinnedItem {
	c := p
	if p.Tags != nil {
		c.Tags = append(make([]string, 0, len(p.Tags)), p.Tags...)
	}
	if p.FileCount != nil {
		n := *p.FileCount
		c.FileCount = &n
	}
	return c
}

// StripFolderMarker removes a leading folder marker and the spaces after it.
func StripFolderMarker(name string) string {
	trimmed := strings.TrimPrefix(name, strings.TrimSpace(FolderMarker))
	if trimmed == name {
		return name
	}
	return strings.TrimLeft(trimmed, " \t")
}

// FormatTimestamp renders t the way metadata timestamps are stored:
// UTC, millisecond precision, Z suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// IntPtr is a helper for optional counts.
func IntPtr(n int) *int {
	return &n
}
