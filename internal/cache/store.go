package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
)

type unitEntry struct {
	value *repository.Unit
	rev   uint64
}

type orderEntry struct {
	value *repository.Order
	rev   uint64
}

// Store mirrors the remote catalog, units and orders in memory. Every write,
// local or remote, goes through mu and stamps the touched entities with a
// fresh revision from one monotonic counter.
type Store struct {
	mu       sync.RWMutex
	revision uint64
	products map[string]*repository.Product
	units    map[string]*unitEntry
	orders   map[string]*orderEntry
	lineIdx  map[string]string

	lastSync     time.Time
	lastFullSync time.Time

	log *zap.Logger
}

func NewStore(log *zap.Logger) *Store {
	return &Store{
		products: make(map[string]*repository.Product),
		units:    make(map[string]*unitEntry),
		orders:   make(map[string]*orderEntry),
		lineIdx:  make(map[string]string),
		log:      log.With(zap.String("component", "cache")),
	}
}

func (s *Store) nextRevision() uint64 {
	s.revision++
	return s.revision
}

// Change carries full new values for every entity an operation touches.
// Orders carry their lines.
type Change struct {
	Orders []*repository.Order
	Units  []*repository.Unit
}

// undo records what a change replaced; a nil value means the entity did not
// exist before.
type undo struct {
	rev    uint64
	orders map[string]*repository.Order
	units  map[string]*repository.Unit
}

// Mutate runs the optimistic protocol: plan reads the current state and
// returns the change, which is applied under the lock; persist then runs
// without the lock. If persist fails, every entity still at this mutation's
// revision is put back and the error is returned. Entities a newer write has
// touched since are left alone.
func (s *Store) Mutate(ctx context.Context, plan func(v *View) (*Change, error), persist func(ctx context.Context, c *Change) error) error {
	s.mu.Lock()
	change, err := plan(&View{s: s})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	u := s.apply(change)
	s.mu.Unlock()

	if err := persist(ctx, change); err != nil {
		s.rollback(u)
		return err
	}
	return nil
}

func (s *Store) apply(c *Change) *undo {
	u := &undo{
		rev:    s.nextRevision(),
		orders: make(map[string]*repository.Order, len(c.Orders)),
		units:  make(map[string]*repository.Unit, len(c.Units)),
	}
	for _, o := range c.Orders {
		if _, seen := u.orders[o.ID]; !seen {
			if prev, ok := s.orders[o.ID]; ok {
				u.orders[o.ID] = prev.value
			} else {
				u.orders[o.ID] = nil
			}
		}
		s.putOrder(o.Clone(), u.rev)
	}
	for _, unit := range c.Units {
		if _, seen := u.units[unit.ID]; !seen {
			if prev, ok := s.units[unit.ID]; ok {
				u.units[unit.ID] = prev.value
			} else {
				u.units[unit.ID] = nil
			}
		}
		s.units[unit.ID] = &unitEntry{value: unit.Clone(), rev: u.rev}
	}
	s.updateGauges()
	return u
}

func (s *Store) rollback(u *undo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored, stale := 0, 0
	for id, prev := range u.orders {
		cur, ok := s.orders[id]
		if !ok || cur.rev != u.rev {
			stale++
			continue
		}
		if prev == nil {
			s.deleteOrder(id)
		} else {
			s.putOrder(prev, s.nextRevision())
		}
		restored++
	}
	for id, prev := range u.units {
		cur, ok := s.units[id]
		if !ok || cur.rev != u.rev {
			stale++
			continue
		}
		if prev == nil {
			delete(s.units, id)
		} else {
			s.units[id] = &unitEntry{value: prev, rev: s.nextRevision()}
		}
		restored++
	}
	s.updateGauges()

	metrics.RollbacksTotal.Inc()
	if stale > 0 {
		metrics.StaleCompletionsTotal.Add(float64(stale))
	}
	s.log.Warn("optimistic change rolled back",
		zap.Uint64("revision", u.rev),
		zap.Int("restored", restored),
		zap.Int("superseded", stale),
	)
}

func (s *Store) putOrder(o *repository.Order, rev uint64) {
	if prev, ok := s.orders[o.ID]; ok {
		for _, l := range prev.value.Lines {
			delete(s.lineIdx, l.ID)
		}
	}
	s.orders[o.ID] = &orderEntry{value: o, rev: rev}
	for _, l := range o.Lines {
		s.lineIdx[l.ID] = o.ID
	}
}

func (s *Store) deleteOrder(id string) {
	prev, ok := s.orders[id]
	if !ok {
		return
	}
	for _, l := range prev.value.Lines {
		delete(s.lineIdx, l.ID)
	}
	delete(s.orders, id)
}

func (s *Store) updateGauges() {
	metrics.CacheUnits.Set(float64(len(s.units)))
	metrics.CacheOrders.Set(float64(len(s.orders)))
}

// Revision is the newest revision handed out so far.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Store) Unit(id string) (*repository.Unit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&View{s: s}).Unit(id)
}

func (s *Store) Order(id string) (*repository.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&View{s: s}).Order(id)
}

// OrderForLine returns a copy of the order holding lineID.
func (s *Store) OrderForLine(lineID string) (*repository.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&View{s: s}).OrderForLine(lineID)
}

func (s *Store) Products() []*repository.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*repository.Product, 0, len(s.products))
	for _, p := range s.products {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns deep copies of all units and orders taken under one read
// lock, so figures computed from them are mutually consistent.
func (s *Store) Snapshot() ([]*repository.Unit, []*repository.Order) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	units := make([]*repository.Unit, 0, len(s.units))
	for _, e := range s.units {
		units = append(units, e.value.Clone())
	}
	orders := make([]*repository.Order, 0, len(s.orders))
	for _, e := range s.orders {
		orders = append(orders, e.value.Clone())
	}
	sortUnits(units)
	sortOrders(orders)
	return units, orders
}

func sortUnits(units []*repository.Unit) {
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
}

func sortOrders(orders []*repository.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}

func (s *Store) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

func (s *Store) LastFullSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFullSync
}

// View is read access to the store for the duration of a Mutate plan.
// Values it returns are copies the plan may modify freely.
type View struct {
	s *Store
}

func (v *View) Unit(id string) (*repository.Unit, bool) {
	e, ok := v.s.units[id]
	if !ok {
		return nil, false
	}
	return e.value.Clone(), true
}

func (v *View) Order(id string) (*repository.Order, bool) {
	e, ok := v.s.orders[id]
	if !ok {
		return nil, false
	}
	return e.value.Clone(), true
}

func (v *View) OrderForLine(lineID string) (*repository.Order, bool) {
	orderID, ok := v.s.lineIdx[lineID]
	if !ok {
		return nil, false
	}
	return v.Order(orderID)
}

func (v *View) Product(id string) (*repository.Product, bool) {
	p, ok := v.s.products[id]
	if !ok {
		return nil, false
	}
	c := *p
	return &c, true
}

func (v *View) Products() map[string]*repository.Product {
	out := make(map[string]*repository.Product, len(v.s.products))
	for id, p := range v.s.products {
		c := *p
		out[id] = &c
	}
	return out
}

// Units and Orders share the store's values; callers must not modify them.
func (v *View) Units() []*repository.Unit {
	out := make([]*repository.Unit, 0, len(v.s.units))
	for _, e := range v.s.units {
		out = append(out, e.value)
	}
	return out
}

func (v *View) Orders() []*repository.Order {
	out := make([]*repository.Order, 0, len(v.s.orders))
	for _, e := range v.s.orders {
		out = append(out, e.value)
	}
	return out
}
