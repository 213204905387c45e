// Package tags keeps the user's list of tag options.
package tags

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/state"
)

// DefaultOptions are used when nothing is stored.
var DefaultOptions = []string{"DB", "ログ", "アセット", "その他"}

// UsageSource reports which tags are carried by pinned items.
type UsageSource interface {
	TagInUse(tag string) bool
	TagsInUse() []string
}

// Registry is the persisted list of tag options, kept in Japanese
// collation order.
type Registry struct {
	mu       sync.Mutex
	options  []string
	collator *collate.Collator

	usage  UsageSource
	store  state.Store
	logger *events.Logger
}

// NewRegistry creates a registry holding the defaults. Call Load to read
// the stored list. store may be nil.
func NewRegistry(store state.Store, usage UsageSource, logger *events.Logger) *Registry {
	r := &Registry{
		collator: collate.New(language.Japanese),
		usage:    usage,
		store:    store,
		logger:   logger.WithField("component", "tag_registry"),
	}
	r.options = r.normalize(DefaultOptions)
	return r
}

// Load reads the stored options. An empty or missing list keeps the
// defaults.
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}

	var stored []string
	if err := state.GetJSON(r.store, state.KeyTagOptions, &stored); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load tag options: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if options := r.normalize(stored); len(options) > 0 {
		r.options = options
	}
	r.logger.WithField("count", len(r.options)).Debug("Loaded tag options")
	return nil
}

// Options returns the configured options.
func (r *Registry) Options() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.options...)
}

// Add inserts tag. Empty and duplicate tags are ignored. It reports whether
// the list changed.
func (r *Registry) Add(tag string) (bool, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.options {
		if o == tag {
			return false, nil
		}
	}

	next := r.normalize(append(append([]string{}, r.options...), tag))
	if err := r.persistLocked(next); err != nil {
		return false, err
	}
	r.options = next

	r.logger.WithField("tag", tag).Info("Tag option added")
	return true, nil
}

// Delete removes tag. A tag still carried by a pinned item is refused with
// models.ErrTagInUse and the list is left unchanged.
func (r *Registry) Delete(tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return models.ErrEmptyTag
	}
	if r.usage != nil && r.usage.TagInUse(tag) {
		return fmt.Errorf("%w: %s", models.ErrTagInUse, tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]string, 0, len(r.options))
	for _, o := range r.options {
		if o != tag {
			next = append(next, o)
		}
	}
	if len(next) == len(r.options) {
		return nil
	}
	if err := r.persistLocked(next); err != nil {
		return err
	}
	r.options = next

	r.logger.WithField("tag", tag).Info("Tag option deleted")
	return nil
}

// Available returns the options together with every tag in use, sorted.
func (r *Registry) Available() []string {
	var inUse []string
	if r.usage != nil {
		inUse = r.usage.TagsInUse()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.normalize(append(append([]string{}, r.options...), inUse...))
}

// normalize trims, drops empties and duplicates, and sorts. Callers hold
// r.mu once the registry is shared.
func (r *Registry) normalize(tags []string) []string {
	out := models.NormalizeTags(tags)
	r.collator.SortStrings(out)
	return out
}

func (r *Registry) persistLocked(options []string) error {
	if r.store == nil {
		return nil
	}
	if err := state.SetJSON(r.store, state.KeyTagOptions, options); err != nil {
		return fmt.Errorf("save tag options: %w", err)
	}
	return nil
}
