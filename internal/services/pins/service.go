// Package pins implements uploads, reconciliation and tag edits against a
// pinning cluster.
package pins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheMichaelB/pinsync/internal/config"
	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/metrics"
	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/transport"
)

// Service provides the pin operations over one pin set.
type Service struct {
	content  transport.ContentStore
	cluster  transport.Cluster
	fallback transport.Pinner

	set        *PinSet
	waiter     *Waiter
	reconciler *Reconciler
	metrics    *metrics.Metrics
	logger     *events.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a pin service. fallback may be nil, in which case a
// failed cluster pin fails the upload directly.
func NewService(
	content transport.ContentStore,
	cluster transport.Cluster,
	fallback transport.Pinner,
	set *PinSet,
	visibility config.VisibilityConfig,
	m *metrics.Metrics,
	logger *events.Logger,
) *Service {
	return &Service{
		content:    content,
		cluster:    cluster,
		fallback:   fallback,
		set:        set,
		waiter:     NewWaiter(cluster, visibility, m, logger),
		reconciler: NewReconciler(cluster, set, m, logger),
		metrics:    m,
		logger:     logger.WithField("service", "pins"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Set returns the pin set.
func (s *Service) Set() *PinSet {
	return s.set
}

// Refresh reconciles the pin set with the cluster.
func (s *Service) Refresh(ctx context.Context) ([]models.PinnedItem, error) {
	return s.reconciler.Refresh(ctx)
}

// Peers refreshes the cluster peer count.
func (s *Service) Peers(ctx context.Context) (int, error) {
	return s.reconciler.Peers(ctx)
}

// WaitVisible polls until cid is visible in the cluster.
func (s *Service) WaitVisible(ctx context.Context, cid string) bool {
	return s.waiter.Wait(ctx, cid)
}

// pinWithFallback pins through the cluster, then the fallback service. Both
// failures are kept in the returned error.
func (s *Service) pinWithFallback(ctx context.Context, cid, name string, meta models.Metadata) error {
	logger := events.FromContext(ctx).WithField("cid", cid)

	primaryErr := s.cluster.Pin(ctx, cid, name, meta)
	if primaryErr == nil {
		logger.Debug("Pinned through cluster")
		return nil
	}

	if s.fallback == nil {
		return &models.PinError{Kind: models.ErrPinFailed, CID: cid, Err: fmt.Errorf("cluster: %w", primaryErr)}
	}

	logger.WithError(primaryErr).Warn("Cluster pin failed, trying pinning service")

	fallbackErr := s.fallback.Pin(ctx, cid, name, meta)
	s.metrics.RecordFallback(fallbackErr)
	if fallbackErr == nil {
		logger.Info("Pinned through pinning service")
		return nil
	}

	return &models.PinError{
		Kind: models.ErrPinFailed,
		CID:  cid,
		Err: errors.Join(
			fmt.Errorf("cluster: %w", primaryErr),
			fmt.Errorf("pinning service: %w", fallbackErr),
		),
	}
}

// Unpin removes the pin from the cluster and the local set, then refreshes.
// A failed refresh is only logged.
func (s *Service) Unpin(ctx context.Context, cid string) error {
	err := s.cluster.Unpin(ctx, cid)
	s.metrics.RecordUnpin(err)
	if err != nil {
		return &models.PinError{Kind: models.ErrUnpinFailed, CID: cid, Err: err}
	}

	s.set.RemoveByCID(cid)
	s.logger.WithField("cid", cid).Info("Unpinned")

	if _, err := s.Refresh(ctx); err != nil {
		s.logger.WithError(err).Warn("Refresh after unpin failed")
	}
	return nil
}

// Find returns the item with cid from the local set.
func (s *Service) Find(cid string) (models.PinnedItem, error) {
	item, ok := s.set.Get(strings.TrimSpace(cid))
	if !ok {
		return models.PinnedItem{}, fmt.Errorf("%w: %s", models.ErrPinNotFound, cid)
	}
	return item, nil
}

func (s *Service) withOperation(ctx context.Context, op string) (context.Context, *events.Logger) {
	id := events.GetOperationID(ctx)
	if id == "" {
		id = s.newID()
		ctx = events.WithOperationID(ctx, id)
	}
	fields := map[string]interface{}{
		"op":    op,
		"op_id": id,
	}
	if account := events.GetAccount(ctx); account != "" {
		fields["account"] = account
	}
	logger := s.logger.WithFields(fields)
	return events.WithLogger(ctx, logger), logger
}
