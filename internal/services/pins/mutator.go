package pins

import (
	"context"
	"strings"

	"github.com/TheMichaelB/pinsync/internal/models"
)

// Metadata update operations for metrics.
const (
	opAddTag    = "add_tag"
	opRemoveTag = "remove_tag"
)

// AddTag adds tag to item. Adding a tag the item already has is a no-op.
// account fills in the owner when the item has none.
func (s *Service) AddTag(ctx context.Context, item models.PinnedItem, tag, account string) (models.PinnedItem, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return item, models.ErrEmptyTag
	}

	tags := models.WithTag(item.Tags, tag)
	if tags == nil {
		return item, nil
	}
	return s.writeTags(ctx, opAddTag, item, tags, account)
}

// RemoveTag removes tag from item. The write is issued even when the item
// does not carry the tag.
func (s *Service) RemoveTag(ctx context.Context, item models.PinnedItem, tag, account string) (models.PinnedItem, error) {
	return s.writeTags(ctx, opRemoveTag, item, models.WithoutTag(item.Tags, tag), account)
}

// writeTags re-pins the item with its full metadata and the new tag set.
// The local set is patched only after the cluster accepts the write.
func (s *Service) writeTags(ctx context.Context, op string, item models.PinnedItem, tags []string, account string) (models.PinnedItem, error) {
	ctx, logger := s.withOperation(ctx, op)
	logger = logger.WithField("cid", item.CID)

	meta := models.MetadataFor(item, tags, account)
	err := s.cluster.Pin(ctx, item.CID, item.Name, meta)
	s.metrics.RecordMetadataUpdate(op, err)
	if err != nil {
		logger.WithError(err).Error("Metadata update failed")
		return item, &models.PinError{Kind: models.ErrMetadataUpdateFailed, CID: item.CID, Err: err}
	}

	updated := item.Clone()
	updated.Tags = append([]string{}, tags...)
	if updated.Owner == "" {
		updated.Owner = meta[models.MetaOwner]
	}
	if !s.set.ApplyEdit(item.CID, tags, meta[models.MetaOwner]) {
		logger.Debug("Tagged item is not in the local set")
	}

	logger.WithField("tags", strings.Join(tags, ",")).Info("Tags updated")
	return updated, nil
}
