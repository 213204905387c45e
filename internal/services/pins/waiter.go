package pins

import (
	"context"
	"time"

	"github.com/TheMichaelB/pinsync/internal/config"
	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/metrics"
	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/transport"
)

// Default visibility polling.
const (
	DefaultAttempts  = 12
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultStep      = 300 * time.Millisecond
)

// Waiter polls the cluster until a new pin shows up.
type Waiter struct {
	cluster   transport.Cluster
	attempts  int
	baseDelay time.Duration
	step      time.Duration
	metrics   *metrics.Metrics
	logger    *events.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewWaiter creates a waiter. Zero config values take the defaults.
func NewWaiter(cluster transport.Cluster, cfg config.VisibilityConfig, m *metrics.Metrics, logger *events.Logger) *Waiter {
	w := &Waiter{
		cluster:   cluster,
		attempts:  cfg.Attempts,
		baseDelay: cfg.BaseDelay,
		step:      cfg.Step,
		metrics:   m,
		logger:    logger.WithField("component", "visibility_waiter"),
		sleep:     sleepContext,
	}
	if w.attempts <= 0 {
		w.attempts = DefaultAttempts
	}
	if w.baseDelay <= 0 {
		w.baseDelay = DefaultBaseDelay
	}
	if w.step < 0 {
		w.step = DefaultStep
	}
	return w
}

// Wait reports whether cid became visible within the attempt budget. It
// never fails: lookup errors count as a missed attempt. A cancelled context
// ends the wait early with false.
func (w *Waiter) Wait(ctx context.Context, cid string) bool {
	start := time.Now()
	visible := w.poll(ctx, cid)
	w.metrics.RecordVisibilityWait(time.Since(start), visible)

	logger := w.logger.WithFields(map[string]interface{}{
		"cid":     cid,
		"visible": visible,
		"elapsed": time.Since(start).String(),
	})
	if visible {
		logger.Debug("Pin visible")
	} else {
		logger.Warn("Pin not visible after retries")
	}
	return visible
}

func (w *Waiter) poll(ctx context.Context, cid string) bool {
	for i := 0; i < w.attempts; i++ {
		if w.visible(ctx, cid) {
			return true
		}
		if i == w.attempts-1 {
			break
		}
		if err := w.sleep(ctx, w.baseDelay+time.Duration(i)*w.step); err != nil {
			return false
		}
	}
	return false
}

// visible checks the single-pin lookup, then the full listing.
func (w *Waiter) visible(ctx context.Context, cid string) bool {
	rec, err := w.cluster.GetPin(ctx, cid)
	if err == nil {
		return true
	}
	w.logger.WithError(err).WithField("cid", cid).Debug("Pin lookup missed")

	records, err := w.cluster.ListPins(ctx)
	if err != nil {
		w.logger.WithError(err).Debug("Pin listing failed")
		return false
	}
	for _, rec = range records {
		if got, ok := models.CIDField.String(rec); ok && got == cid {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
