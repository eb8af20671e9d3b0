// Package syncer keeps the local cache converged with the remote store: a
// full load at startup, live change events while connected, a differential
// catch-up after reconnects and a periodic full resync.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/changefeed"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
)

const (
	tableProducts   = "products"
	tableUnits      = "product_items"
	tableOrders     = "orders"
	tableOrderLines = "order_items"
)

// Source reads the remote store.
type Source interface {
	ListProducts(ctx context.Context) ([]*repository.Product, error)
	ListUnits(ctx context.Context) ([]*repository.Unit, error)
	ListUnitsSince(ctx context.Context, since time.Time) ([]*repository.Unit, error)
	ListOrders(ctx context.Context) ([]*repository.Order, error)
	ListOrdersSince(ctx context.Context, since time.Time) ([]*repository.Order, error)
	GetUnit(ctx context.Context, id string) (*repository.Unit, error)
	// Now is the remote clock that stamps updated_at.
	Now(ctx context.Context) (time.Time, error)
}

// Feed delivers row change events.
type Feed interface {
	Subscribe(table string, h changefeed.Handler) func()
	OnListen(fn func(ctx context.Context))
}

type Coordinator struct {
	store  *cache.Store
	source Source
	feed   Feed
	cfg    config.SyncConfig
	log    *zap.Logger

	timeNow func() time.Time

	// resync serialises full and differential syncs.
	resync sync.Mutex

	mu            sync.Mutex
	unsubscribers []func()
	cancel        context.CancelFunc
	closed        bool
	wg            sync.WaitGroup

	ordersDirty chan struct{}
}

func New(store *cache.Store, source Source, feed Feed, cfg config.SyncConfig, log *zap.Logger) *Coordinator {
	return &Coordinator{
		store:       store,
		source:      source,
		feed:        feed,
		cfg:         cfg,
		log:         log.With(zap.String("component", "syncer")),
		timeNow:     time.Now,
		ordersDirty: make(chan struct{}, 1),
	}
}

// Bootstrap loads the whole remote state into the cache.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	return c.FullResync(ctx)
}

// FullResync replaces the cache with a fresh remote snapshot. The sync time
// is read from the remote clock before reading so nothing written during the
// read is skipped by the next catch-up.
func (c *Coordinator) FullResync(ctx context.Context) error {
	c.resync.Lock()
	defer c.resync.Unlock()

	at, err := c.source.Now(ctx)
	if err != nil {
		return fmt.Errorf("full resync: %w", err)
	}
	var (
		products []*repository.Product
		units    []*repository.Unit
		orders   []*repository.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = c.source.ListProducts(gctx)
		return wrap("products", err)
	})
	g.Go(func() (err error) {
		units, err = c.source.ListUnits(gctx)
		return wrap("units", err)
	})
	g.Go(func() (err error) {
		orders, err = c.source.ListOrders(gctx)
		return wrap("orders", err)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("full resync: %w", err)
	}

	c.store.ReplaceAll(products, units, orders, at)
	metrics.SyncRunsTotal.WithLabelValues("full").Inc()
	c.log.Info("full resync complete", zap.Time("at", at))
	return nil
}

// CatchUp merges everything that changed remotely since the last sync,
// reading CatchUpOverlap further back. Merging a row twice is harmless.
func (c *Coordinator) CatchUp(ctx context.Context) error {
	c.resync.Lock()
	defer c.resync.Unlock()

	since := c.store.LastSync()
	if !since.IsZero() {
		since = since.Add(-c.cfg.CatchUpOverlap)
	}
	at, err := c.source.Now(ctx)
	if err != nil {
		return fmt.Errorf("catch-up: %w", err)
	}
	var (
		units  []*repository.Unit
		orders []*repository.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		units, err = c.source.ListUnitsSince(gctx, since)
		return wrap("units", err)
	})
	g.Go(func() (err error) {
		orders, err = c.source.ListOrdersSince(gctx, since)
		return wrap("orders", err)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("catch-up: %w", err)
	}

	c.store.MergeUnits(units)
	c.store.MergeOrders(orders)
	c.store.MarkSynced(at)
	metrics.SyncRunsTotal.WithLabelValues("differential").Inc()
	c.log.Info("catch-up complete",
		zap.Time("since", since),
		zap.Int("units", len(units)),
		zap.Int("orders", len(orders)),
	)
	return nil
}

// CheckAndResync runs a full resync when the last one is older than the
// configured interval, and reports whether it did.
func (c *Coordinator) CheckAndResync(ctx context.Context) (bool, error) {
	last := c.store.LastFullSync()
	if !last.IsZero() && c.timeNow().Sub(last) < c.cfg.FullInterval {
		return false, nil
	}
	c.log.Info("full resync due", zap.Time("last_full_sync", last))
	return true, c.FullResync(ctx)
}

// Start subscribes to the change feed and starts the background loops.
// Close undoes both.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.unsubscribers = append(c.unsubscribers,
		c.feed.Subscribe(tableUnits, c.onUnitEvent),
		c.feed.Subscribe(tableProducts, c.onProductEvent),
		c.feed.Subscribe(tableOrders, c.onOrderEvent),
		c.feed.Subscribe(tableOrderLines, c.onOrderEvent),
	)
	c.mu.Unlock()

	// The snapshot Bootstrap read may predate the first LISTEN, and every
	// reconnect leaves a gap, so each new listening connection catches up.
	c.feed.OnListen(func(ctx context.Context) {
		if c.isClosed() {
			return
		}
		if err := c.CatchUp(ctx); err != nil {
			c.log.Error("catch-up after listen failed", zap.Error(err))
		}
	})

	c.wg.Add(2)
	go c.refreshOrdersLoop(ctx)
	go c.periodicLoop(ctx)
}

func (c *Coordinator) Close() {
	c.mu.Lock()
	for _, unsubscribe := range c.unsubscribers {
		unsubscribe()
	}
	c.unsubscribers = nil
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.log.Info("sync coordinator stopped")
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) onUnitEvent(ctx context.Context, ev changefeed.Event) {
	var key struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(ev.Row, &key); err != nil || key.ID == "" {
		c.log.Warn("undecodable unit event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if ev.Type == changefeed.EventDelete {
		c.store.RemoveUnit(key.ID)
		return
	}

	var unit repository.Unit
	if err := json.Unmarshal(ev.Row, &unit); err != nil {
		c.log.Warn("unit event row unreadable, refetching", zap.String("unit_id", key.ID), zap.Error(err))
		c.refetchUnit(ctx, key.ID)
		return
	}
	c.store.MergeUnits([]*repository.Unit{&unit})
}

func (c *Coordinator) refetchUnit(ctx context.Context, id string) {
	unit, err := c.source.GetUnit(ctx, id)
	switch {
	case errors.Is(err, repository.ErrObjectNotFound):
		c.store.RemoveUnit(id)
	case err != nil:
		c.log.Error("failed to refetch unit", zap.String("unit_id", id), zap.Error(err))
	default:
		c.store.MergeUnits([]*repository.Unit{unit})
	}
}

func (c *Coordinator) onProductEvent(_ context.Context, ev changefeed.Event) {
	if ev.Type == changefeed.EventDelete {
		return
	}
	var product repository.Product
	if err := json.Unmarshal(ev.Row, &product); err != nil || product.ID == "" {
		c.log.Warn("undecodable product event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	c.store.MergeProducts([]*repository.Product{&product})
}

// onOrderEvent marks orders stale. Order aggregates are refetched whole and
// bursts of line events collapse into one refetch.
func (c *Coordinator) onOrderEvent(_ context.Context, _ changefeed.Event) {
	select {
	case c.ordersDirty <- struct{}{}:
	default:
	}
}

func (c *Coordinator) refreshOrdersLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ordersDirty:
			orders, err := c.source.ListOrders(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.log.Error("failed to refetch orders", zap.Error(err))
				}
				continue
			}
			c.store.ReplaceOrders(orders)
			c.log.Debug("orders refetched", zap.Int("orders", len(orders)))
		}
	}
}

func (c *Coordinator) periodicLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.CheckAndResync(ctx); err != nil && ctx.Err() == nil {
				c.log.Error("periodic resync failed", zap.Error(err))
			}
		}
	}
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", what, err)
	}
	return nil
}
