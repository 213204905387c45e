package models

import "time"

// PinCacheVersion is bumped when the cached layout changes.
const PinCacheVersion = 1

// PinCache is the persisted snapshot of the last known pin list. It is a
// cache only; the next reconciliation overwrites it.
type PinCache struct {
	Version   int          `json:"version"`
	SavedAt   time.Time    `json:"saved_at"`
	Items     []CachedItem `json:"items"`
	NodeCount int          `json:"node_count,omitempty"`
}

// CachedItem is a PinnedItem as stored, including the single-tag field of
// older caches.
type CachedItem struct {
	PinnedItem
	Type string `json:"type,omitempty"`
}

// NewPinCache snapshots items.
func NewPinCache(items []PinnedItem, nodeCount int) *PinCache {
	cached := make([]CachedItem, len(items))
	for i, it := range items {
		cached[i] = CachedItem{PinnedItem: it.Clone()}
	}
	return &PinCache{
		Version:   PinCacheVersion,
		SavedAt:   time.Now().UTC(),
		Items:     cached,
		NodeCount: nodeCount,
	}
}

// PinnedItems converts the snapshot back, turning a legacy single type into
// a one-element tag list.
func (c *PinCache) PinnedItems() []PinnedItem {
	items := make([]PinnedItem, 0, len(c.Items))
	for _, ci := range c.Items {
		it := ci.PinnedItem.Clone()
		if it.Tags == nil {
			if ci.Type != "" {
				it.Tags = []string{ci.Type}
			} else {
				it.Tags = []string{}
			}
		}
		items = append(items, it)
	}
	return items
}
