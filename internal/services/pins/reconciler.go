package pins

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/metrics"
	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/transport"
)

// Reconciler rebuilds the pin set from the cluster listing.
type Reconciler struct {
	cluster transport.Cluster
	set     *PinSet
	metrics *metrics.Metrics
	logger  *events.Logger

	group singleflight.Group
	now   func() time.Time
	newID func() string
}

// NewReconciler creates a reconciler that writes into set.
func NewReconciler(cluster transport.Cluster, set *PinSet, m *metrics.Metrics, logger *events.Logger) *Reconciler {
	return &Reconciler{
		cluster: cluster,
		set:     set,
		metrics: m,
		logger:  logger.WithField("component", "reconciler"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Refresh fetches the listing and replaces the pin set with it. Concurrent
// calls share one fetch. On a listing failure the set is left as it was.
func (r *Reconciler) Refresh(ctx context.Context) ([]models.PinnedItem, error) {
	v, err, shared := r.group.Do("refresh", func() (interface{}, error) {
		return r.refresh(ctx)
	})
	if shared {
		r.logger.Debug("Joined in-flight refresh")
	}
	if err != nil {
		return nil, err
	}
	return cloneItems(v.([]models.PinnedItem)), nil
}

func (r *Reconciler) refresh(ctx context.Context) ([]models.PinnedItem, error) {
	since := r.set.Generation()

	records, err := r.cluster.ListPins(ctx)
	if err != nil {
		r.metrics.RecordReconcile(0, err)
		return nil, fmt.Errorf("list pins: %w", err)
	}

	items := r.Build(records)
	r.set.Replace(items, since)
	r.metrics.RecordReconcile(len(items), nil)

	r.logger.WithFields(map[string]interface{}{
		"records": len(records),
		"items":   len(items),
	}).Info("Pin set reconciled")

	return r.set.Items(), nil
}

// Peers refreshes the cluster peer count.
func (r *Reconciler) Peers(ctx context.Context) (int, error) {
	n, err := r.cluster.Peers(ctx)
	if err != nil {
		return 0, fmt.Errorf("cluster peers: %w", err)
	}
	r.set.SetNodeCount(n)
	r.metrics.SetPeers(n)
	return n, nil
}

// Build converts raw records into items, newest first. Records without an
// identifier are skipped.
func (r *Reconciler) Build(records []models.Record) []models.PinnedItem {
	now := r.now()
	items := make([]models.PinnedItem, 0, len(records))
	for _, rec := range records {
		item, ok := ItemFromRecord(rec, r.newID(), now)
		if !ok {
			r.logger.Debug("Skipping record without identifier")
			continue
		}
		items = append(items, item)
	}

	// ISO-8601 strings in one format order lexicographically.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt > items[j].CreatedAt
	})
	return items
}

// ItemFromRecord extracts one canonical item. Missing fields take their
// defaults: size 0, no tags, replication 0, no owner.
func ItemFromRecord(rec models.Record, id string, now time.Time) (models.PinnedItem, bool) {
	cid, ok := models.CIDField.String(rec)
	if !ok {
		return models.PinnedItem{}, false
	}

	meta, ok := models.MetaField.Object(rec)
	if !ok {
		meta = models.Record{}
	}

	item := models.PinnedItem{
		ID:           id,
		CID:          cid,
		Name:         recordName(rec, meta, cid),
		Size:         recordSize(rec, meta),
		CreatedAt:    recordCreated(rec, meta, now),
		Tags:         recordTags(meta),
		Replication:  models.AllocationsField.Count(rec),
		IsFolder:     metaBool(meta, models.MetaIsFolder),
		RelativePath: metaString(meta, models.MetaRelativePath),
	}
	if item.Replication == 0 {
		item.Replication = models.PeerMapField.Count(rec)
	}
	if owner := metaString(meta, models.MetaOwner); owner != "" {
		item.Owner = strings.ToLower(owner)
	}
	if item.IsFolder {
		if v, ok := meta.Lookup(models.MetaFileCount); ok {
			if n, ok := models.AsInt64(v); ok {
				item.FileCount = models.IntPtr(int(n))
			}
		}
	}
	return item, true
}

func recordName(rec, meta models.Record, cid string) string {
	if name, ok := models.NameField.String(rec); ok {
		return name
	}
	if name := metaString(meta, "name"); name != "" {
		return name
	}
	if name := metaString(meta, models.MetaOriginalName); name != "" {
		return name
	}
	return cid
}

func recordCreated(rec, meta models.Record, now time.Time) string {
	if ts := metaString(meta, models.MetaUploadedAt); ts != "" {
		return ts
	}
	if ts, ok := models.CreatedField.String(rec); ok {
		return ts
	}
	return models.FormatTimestamp(now)
}

func recordSize(rec, meta models.Record) int64 {
	if v, ok := meta.Lookup(models.MetaSize); ok {
		if n, ok := models.AsInt64(v); ok {
			return n
		}
	}
	if n, ok := models.SizeField.Int64(rec); ok {
		return n
	}
	return 0
}

// recordTags decodes the tag list, falling back to the legacy single type.
func recordTags(meta models.Record) []string {
	var tags []string
	if v, ok := meta.Lookup(models.MetaTags); ok {
		switch t := v.(type) {
		case string:
			tags = models.DecodeTags(t)
		case []interface{}:
			for _, e := range t {
				if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
					tags = append(tags, s)
				}
			}
		}
	}
	if len(tags) == 0 {
		if legacy := strings.TrimSpace(metaString(meta, models.MetaLegacyType)); legacy != "" {
			tags = []string{legacy}
		}
	}
	if tags == nil {
		tags = []string{}
	}
	return tags
}

func metaString(meta models.Record, key string) string {
	s, _ := meta.String(key)
	return s
}

func metaBool(meta models.Record, key string) bool {
	v, ok := meta.Lookup(key)
	return ok && models.AsBool(v)
}
