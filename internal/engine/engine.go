// Package engine is the allocation and reservation surface. Reads are served
// from the local cache; every mutation goes through the cache's optimistic
// protocol and is then persisted to the remote store in one conditional write.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/allocation"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/reservation"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage"
)

// Remote is the authoritative store as the engine sees it.
type Remote interface {
	CreateOrders(ctx context.Context, orders []*repository.Order) error
	Apply(ctx context.Context, m storage.Mutation) error
	LatestAssignment(ctx context.Context, unitID, orderID string) (*repository.ItemHistory, error)
	UnitHistory(ctx context.Context, unitID string) ([]*repository.ItemHistory, error)
}

type Engine struct {
	store        *cache.Store
	remote       Remote
	log          *zap.Logger
	defaultActor string
	timeNow      func() time.Time
	newID        func() string
}

func New(store *cache.Store, remote Remote, log *zap.Logger, defaultActor string) *Engine {
	return &Engine{
		store:        store,
		remote:       remote,
		log:          log.With(zap.String("component", "engine")),
		defaultActor: defaultActor,
		timeNow:      time.Now,
		newID:        uuid.NewString,
	}
}

type actorKey struct{}

// WithActor attaches the display name recorded as the actor of every
// mutation made with ctx.
func WithActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actorKey{}, name)
}

func (e *Engine) actor(ctx context.Context) string {
	if name, ok := ctx.Value(actorKey{}).(string); ok && name != "" {
		return name
	}
	return e.defaultActor
}

func (e *Engine) now() time.Time {
	return e.timeNow().UTC()
}

func (e *Engine) ComputeAvailability(productID string) reservation.Availability {
	units, orders := e.store.Snapshot()
	return reservation.Compute(orders, units, productID)
}

func (e *Engine) InventorySummary() []reservation.Summary {
	products := e.store.Products()
	units, orders := e.store.Snapshot()
	return reservation.Summarize(products, units, orders)
}

func (e *Engine) Reservations() map[string]reservation.Reservation {
	_, orders := e.store.Snapshot()
	return reservation.Reservations(orders)
}

func (e *Engine) UnitHistory(ctx context.Context, unitID string) ([]*repository.ItemHistory, error) {
	history, err := e.remote.UnitHistory(ctx, unitID)
	if err != nil {
		return nil, e.result("unit_history", remoteErr(err))
	}
	return history, nil
}

// mutate plans a mutation against the cache, applies it optimistically and
// persists it. The plan may modify the values the view hands out.
func (e *Engine) mutate(ctx context.Context, op string, plan func(v *cache.View) (*storage.Mutation, error)) error {
	var m *storage.Mutation
	err := e.store.Mutate(ctx,
		func(v *cache.View) (*cache.Change, error) {
			var err error
			if m, err = plan(v); err != nil {
				return nil, err
			}
			return changeOf(m), nil
		},
		func(ctx context.Context, _ *cache.Change) error {
			return remoteErr(e.remote.Apply(ctx, *m))
		},
	)
	return e.result(op, err)
}

func changeOf(m *storage.Mutation) *cache.Change {
	c := &cache.Change{}
	if m.Order != nil {
		c.Orders = append(c.Orders, m.Order)
	}
	for _, uc := range m.Units {
		c.Units = append(c.Units, uc.Unit)
	}
	return c
}

// remoteErr maps repository failures onto the engine's error taxonomy.
func remoteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", allocation.ErrAssignmentConflict, err)
	default:
		return fmt.Errorf("%w: %w", allocation.ErrPersistence, err)
	}
}

func (e *Engine) result(op string, err error) error {
	if err == nil {
		return nil
	}
	metrics.OperationErrorsTotal.WithLabelValues(op).Inc()

	switch {
	case errors.Is(err, allocation.ErrAssignmentConflict):
		metrics.ConflictsTotal.WithLabelValues("assignment").Inc()
	case errors.Is(err, allocation.ErrStockConflict):
		metrics.ConflictsTotal.WithLabelValues("stock").Inc()
	}

	if errors.Is(err, allocation.ErrPersistence) {
		e.log.Error("operation failed", zap.String("operation", op), zap.Error(err))
	} else {
		e.log.Warn("operation rejected", zap.String("operation", op), zap.Error(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func findLine(v *cache.View, lineID string) (*repository.Order, *repository.OrderLine, error) {
	o, ok := v.OrderForLine(lineID)
	if !ok {
		return nil, nil, fmt.Errorf("order line %s: %w", lineID, repository.ErrObjectNotFound)
	}
	return o, o.Line(lineID), nil
}

func findUnit(v *cache.View, unitID string) (*repository.Unit, error) {
	u, ok := v.Unit(unitID)
	if !ok {
		return nil, fmt.Errorf("unit %s: %w", unitID, repository.ErrObjectNotFound)
	}
	return u, nil
}

// touch refreshes the order's derived status and timestamp.
func touch(o *repository.Order, now time.Time) {
	allocation.Recompute(o)
	o.UpdatedAt = now
}
