package pins

import (
	"strings"
	"time"

	"github.com/TheMichaelB/pinsync/internal/models"
)

// TagAll disables tag filtering.
const TagAll = "all"

// Query selects items from the pin set.
type Query struct {
	// Owner limits results to the account's items. Ignored when All is set.
	Owner  string
	All    bool
	Tag    string
	Search string
}

// Stats summarises the owner's view of the pin set.
type Stats struct {
	TotalSize int64 `json:"totalSize" yaml:"total_size"`
	Files     int   `json:"files" yaml:"files"`
	Nodes     int   `json:"nodes" yaml:"nodes"`
}

// List returns the items matching q, newest first.
func (s *Service) List(q Query) []models.PinnedItem {
	items := s.set.Items()
	if !q.All {
		items = Visible(items, q.Owner)
	}
	items = FilterByTag(items, q.Tag)
	return Search(items, q.Search)
}

// Stats returns totals over the owner's items and the cluster node count.
func (s *Service) Stats(owner string) Stats {
	visible := Visible(s.set.Items(), owner)
	st := Stats{Files: len(visible), Nodes: s.set.NodeCount()}
	for _, it := range visible {
		st.TotalSize += it.Size
	}
	return st
}

// Visible keeps the items owned by account. Items without an owner are
// never visible, and no account sees nothing.
func Visible(items []models.PinnedItem, account string) []models.PinnedItem {
	out := make([]models.PinnedItem, 0, len(items))
	if account == "" {
		return out
	}
	for _, it := range items {
		if it.OwnedBy(account) {
			out = append(out, it)
		}
	}
	return out
}

// FilterByTag keeps items carrying tag. An empty tag or TagAll keeps all.
func FilterByTag(items []models.PinnedItem, tag string) []models.PinnedItem {
	if tag == "" || tag == TagAll {
		return items
	}
	out := make([]models.PinnedItem, 0, len(items))
	for _, it := range items {
		if it.HasTag(tag) {
			out = append(out, it)
		}
	}
	return out
}

// Search keeps items whose name, identifier, tags or creation date contain
// term, ignoring case.
func Search(items []models.PinnedItem, term string) []models.PinnedItem {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return items
	}
	out := make([]models.PinnedItem, 0, len(items))
	for _, it := range items {
		if matches(it, term) {
			out = append(out, it)
		}
	}
	return out
}

func matches(it models.PinnedItem, term string) bool {
	fields := []string{it.Name, it.CID, it.CreatedAt, DisplayDate(it.CreatedAt)}
	fields = append(fields, it.Tags...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// DisplayDate formats an ISO-8601 timestamp in local time, or returns it
// unchanged when it does not parse.
func DisplayDate(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006/01/02 15:04:05")
}
