package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TheMichaelB/pinsync/internal/config"
	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/metrics"
	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/services/account"
	"github.com/TheMichaelB/pinsync/internal/services/pins"
	"github.com/TheMichaelB/pinsync/internal/services/tags"
	"github.com/TheMichaelB/pinsync/internal/state"
	"github.com/TheMichaelB/pinsync/internal/storage"
	"github.com/TheMichaelB/pinsync/internal/transport"
)

// Client provides the high-level API for pinsync operations.
type Client struct {
	Pins    *pins.Service
	Tags    *tags.Registry
	Account *account.Service
	Walker  *storage.Walker
	Metrics *metrics.Metrics

	config    *config.Config
	logger    *events.Logger
	store     state.Store
	provider  account.Provider
	endpoints *transport.Endpoints
}

// Option customises New.
type Option func(*options)

type options struct {
	registry prometheus.Registerer
	provider account.Provider
	store    state.Store
}

// WithRegistry registers metrics on reg instead of the default registry.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithProvider uses p instead of the configured wallet provider.
func WithProvider(p account.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithStore uses s instead of opening the configured backend.
func WithStore(s state.Store) Option {
	return func(o *options) { o.store = s }
}

// New creates a client and restores the cached pin list, tag options and
// remembered account. Cache restore failures are logged, not returned.
func New(ctx context.Context, cfg *config.Config, logger *events.Logger, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		if store, err = state.Open(cfg, logger); err != nil {
			return nil, fmt.Errorf("open state: %w", err)
		}
	}

	provider := o.provider
	if provider == nil {
		var err error
		if provider, err = account.NewProvider(ctx, cfg.Wallet, cfg.API.Token, logger); err != nil {
			store.Close()
			return nil, err
		}
	}

	m := metrics.New(o.registry, cfg.Metrics.Namespace)

	endpoints := transport.NewEndpoints(&cfg.API, logger)
	endpoints.SetObserver(m.ObserveRequest)

	// A nil *PinningClient must not become a non-nil Pinner.
	var fallback transport.Pinner
	if cfg.API.PinningURL != "" {
		fallback = endpoints.Pinning
	}

	set := pins.NewPinSet(store, logger)
	c := &Client{
		Pins:      pins.NewService(endpoints.Content, endpoints.Cluster, fallback, set, cfg.Visibility, m, logger),
		Tags:      tags.NewRegistry(store, set, logger),
		Account:   account.NewService(provider, store, logger),
		Walker:    storage.NewWalker(cfg.Upload, logger),
		Metrics:   m,
		config:    cfg,
		logger:    logger,
		store:     store,
		provider:  provider,
		endpoints: endpoints,
	}

	if err := set.Restore(); err != nil {
		logger.WithError(err).Warn("Failed to restore pin cache")
	}
	if err := c.Tags.Load(); err != nil {
		logger.WithError(err).Warn("Failed to load tag options")
	}
	if _, err := c.Account.Restore(ctx); err != nil {
		logger.WithError(err).Warn("Failed to restore account")
	}

	return c, nil
}

// Close releases the provider and the store.
func (c *Client) Close() error {
	perr := c.provider.Close()
	if err := c.store.Close(); err != nil {
		return err
	}
	return perr
}

// Store returns the durable store.
func (c *Client) Store() state.Store {
	return c.store
}

// Connect asks the wallet for an account.
func (c *Client) Connect(ctx context.Context) (string, error) {
	return c.Account.Connect(ctx)
}

// Refresh reconciles the pin set and the peer count. A peer count failure
// is logged only.
func (c *Client) Refresh(ctx context.Context) ([]models.PinnedItem, error) {
	items, err := c.Pins.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := c.Pins.Peers(ctx); err != nil {
		c.logger.WithError(err).Warn("Failed to refresh peer count")
	}
	return items, nil
}

// UploadFiles uploads local files one by one as the connected account.
func (c *Client) UploadFiles(ctx context.Context, paths []string, opts pins.UploadOptions) (*pins.BatchResult, error) {
	owner, err := c.Account.Require()
	if err != nil {
		return nil, err
	}
	items, err := c.Walker.Files(paths)
	if err != nil {
		return nil, err
	}
	opts.Owner = owner
	return c.Pins.UploadBatch(ctx, items, opts), nil
}

// UploadFolder uploads a local directory as one folder pin.
func (c *Client) UploadFolder(ctx context.Context, dir string, opts pins.UploadOptions) (*models.PinnedItem, error) {
	owner, err := c.Account.Require()
	if err != nil {
		return nil, err
	}
	items, err := c.Walker.Collect(dir)
	if err != nil {
		return nil, err
	}
	opts.Owner = owner
	return c.Pins.UploadFolder(ctx, items, opts)
}

// List returns the connected account's items matching q. q.All lists
// every item regardless of owner.
func (c *Client) List(q pins.Query) []models.PinnedItem {
	q.Owner = c.Account.Current()
	return c.Pins.List(q)
}

// Stats summarises the connected account's items.
func (c *Client) Stats() pins.Stats {
	return c.Pins.Stats(c.Account.Current())
}

// AddTag tags the pin with cid and adds the tag to the options.
func (c *Client) AddTag(ctx context.Context, cid, tag string) (models.PinnedItem, error) {
	account, item, err := c.target(cid)
	if err != nil {
		return models.PinnedItem{}, err
	}
	updated, err := c.Pins.AddTag(ctx, item, tag, account)
	if err != nil {
		return updated, err
	}
	if _, err := c.Tags.Add(tag); err != nil {
		c.logger.WithError(err).Warn("Failed to save tag option")
	}
	return updated, nil
}

// RemoveTag removes tag from the pin with cid.
func (c *Client) RemoveTag(ctx context.Context, cid, tag string) (models.PinnedItem, error) {
	account, item, err := c.target(cid)
	if err != nil {
		return models.PinnedItem{}, err
	}
	return c.Pins.RemoveTag(ctx, item, tag, account)
}

// Unpin removes the pin with cid from the cluster.
func (c *Client) Unpin(ctx context.Context, cid string) error {
	if _, err := c.Account.Require(); err != nil {
		return err
	}
	return c.Pins.Unpin(ctx, cid)
}

func (c *Client) target(cid string) (string, models.PinnedItem, error) {
	account, err := c.Account.Require()
	if err != nil {
		return "", models.PinnedItem{}, err
	}
	item, err := c.Pins.Find(cid)
	if err != nil {
		return "", models.PinnedItem{}, err
	}
	return account, item, nil
}

// Event is reported by Watch after every refresh or account change.
type Event struct {
	Time    time.Time
	Account string
	Items   int
	Err     error
}

// Watch refreshes every interval and follows account changes until ctx is
// done. fn may be nil.
func (c *Client) Watch(ctx context.Context, interval time.Duration, fn func(Event)) {
	if fn == nil {
		fn = func(Event) {}
	}

	changed := make(chan string, 1)
	go c.Account.Watch(ctx, func(account string) {
		select {
		case changed <- account:
		default:
		}
	})

	refresh := func() {
		items, err := c.Refresh(ctx)
		fn(Event{Time: time.Now(), Account: c.Account.Current(), Items: len(items), Err: err})
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		case <-changed:
			refresh()
		}
	}
}
