package pins

import (
	"errors"
	"sync"

	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/state"
)

// PinSet is the local canonical pin list. The cluster is authoritative:
// Replace swaps the whole list, the other mutations target one item.
type PinSet struct {
	mu        sync.RWMutex
	items     []models.PinnedItem
	nodeCount int

	// Confirmed tag edits by CID, stamped with the generation they were
	// applied at. A refresh that started before an edit overlays it.
	generation uint64
	edits      map[string]tagEdit

	store  state.Store
	logger *events.Logger
}

type tagEdit struct {
	generation uint64
	tags       []string
	owner      string
}

// NewPinSet creates an empty set. store may be nil.
func NewPinSet(store state.Store, logger *events.Logger) *PinSet {
	return &PinSet{
		items:  []models.PinnedItem{},
		edits:  make(map[string]tagEdit),
		store:  store,
		logger: logger.WithField("component", "pin_set"),
	}
}

// Restore loads the cached list. A missing cache is not an error.
func (s *PinSet) Restore() error {
	if s.store == nil {
		return nil
	}

	var cache models.PinCache
	if err := state.GetJSON(s.store, state.KeyPins, &cache); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil
		}
		return err
	}

	items := cache.PinnedItems()

	s.mu.Lock()
	s.items = items
	s.nodeCount = cache.NodeCount
	s.mu.Unlock()

	s.logger.WithField("items", len(items)).Debug("Restored cached pins")
	return nil
}

// Items returns a copy of the list.
func (s *PinSet) Items() []models.PinnedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.items)
}

// Len returns the number of items.
func (s *PinSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Get returns the item with cid.
func (s *PinSet) Get(cid string) (models.PinnedItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.CID == cid {
			return it.Clone(), true
		}
	}
	return models.PinnedItem{}, false
}

// GetByID returns the item with the local id.
func (s *PinSet) GetByID(id string) (models.PinnedItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ID == id {
			return it.Clone(), true
		}
	}
	return models.PinnedItem{}, false
}

// Generation returns the current edit generation. Capture it before
// fetching a listing and pass it to Replace.
func (s *PinSet) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Replace swaps in a freshly fetched list. Tag edits confirmed after since
// are reapplied to the fetched items; older edits are dropped.
func (s *PinSet) Replace(items []models.PinnedItem, since uint64) {
	s.mu.Lock()

	next := cloneItems(items)
	for cid, edit := range s.edits {
		if edit.generation <= since {
			delete(s.edits, cid)
			continue
		}
		for i := range next {
			if next[i].CID == cid {
				next[i].Tags = append([]string{}, edit.tags...)
				if next[i].Owner == "" {
					next[i].Owner = edit.owner
				}
			}
		}
	}
	s.items = next
	s.persistLocked()
	s.mu.Unlock()
}

// Prepend adds a newly uploaded item at the front.
func (s *PinSet) Prepend(item models.PinnedItem) {
	s.mu.Lock()
	s.items = append([]models.PinnedItem{item.Clone()}, s.items...)
	s.persistLocked()
	s.mu.Unlock()
}

// PatchTags sets the tags of the item with cid and records the edit. It
// reports whether the item was found.
func (s *PinSet) PatchTags(cid string, tags []string) bool {
	return s.ApplyEdit(cid, tags, "")
}

// ApplyEdit is PatchTags that also fills an empty owner with owner.
func (s *PinSet) ApplyEdit(cid string, tags []string, owner string) bool {
	s.mu.Lock()

	found := false
	for i := range s.items {
		if s.items[i].CID != cid {
			continue
		}
		s.items[i].Tags = append([]string{}, tags...)
		if s.items[i].Owner == "" {
			s.items[i].Owner = owner
		}
		s.generation++
		s.edits[cid] = tagEdit{
			generation: s.generation,
			tags:       append([]string{}, tags...),
			owner:      owner,
		}
		found = true
		break
	}
	if found {
		s.persistLocked()
	}
	s.mu.Unlock()
	return found
}

// RemoveByCID drops the item with cid.
func (s *PinSet) RemoveByCID(cid string) bool {
	s.mu.Lock()

	kept := s.items[:0:0]
	for _, it := range s.items {
		if it.CID != cid {
			kept = append(kept, it)
		}
	}
	removed := len(kept) != len(s.items)
	s.items = kept
	delete(s.edits, cid)
	if removed {
		s.persistLocked()
	}
	s.mu.Unlock()
	return removed
}

// SetNodeCount records the cluster peer count.
func (s *PinSet) SetNodeCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nodeCount != n {
		s.nodeCount = n
		s.persistLocked()
	}
}

// NodeCount returns the last recorded peer count.
func (s *PinSet) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodeCount
}

// TagInUse reports whether any item carries tag.
func (s *PinSet) TagInUse(tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.HasTag(tag) {
			return true
		}
	}
	return false
}

// TagsInUse returns every distinct tag on any item, in first-seen order.
func (s *PinSet) TagsInUse() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var tags []string
	for _, it := range s.items {
		for _, t := range it.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	return tags
}

// persistLocked writes the cache. The cache is not authoritative, so
// failures are only logged. Callers hold s.mu.
func (s *PinSet) persistLocked() {
	if s.store == nil {
		return
	}
	if err := state.SetJSON(s.store, state.KeyPins, models.NewPinCache(s.items, s.nodeCount)); err != nil {
		s.logger.WithError(err).Warn("Failed to persist pin cache")
	}
}

func cloneItems(items []models.PinnedItem) []models.PinnedItem {
	out := make([]models.PinnedItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
