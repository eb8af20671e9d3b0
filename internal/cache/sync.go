package cache

import (
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
)

// Remote values always win: every method here overwrites whatever the
// cache holds, including optimistic values whose writes are still in flight.

// ReplaceAll swaps the whole cache for a fresh remote snapshot taken at at.
func (s *Store) ReplaceAll(products []*repository.Product, units []*repository.Unit, orders []*repository.Order, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rev := s.nextRevision()
	s.products = make(map[string]*repository.Product, len(products))
	for _, p := range products {
		c := *p
		s.products[p.ID] = &c
	}
	s.units = make(map[string]*unitEntry, len(units))
	for _, u := range units {
		s.units[u.ID] = &unitEntry{value: u.Clone(), rev: rev}
	}
	s.orders = make(map[string]*orderEntry, len(orders))
	s.lineIdx = make(map[string]string)
	for _, o := range orders {
		s.putOrder(o.Clone(), rev)
	}
	s.lastSync = at
	s.lastFullSync = at
	s.updateGauges()

	s.log.Info("cache replaced",
		zap.Int("products", len(products)),
		zap.Int("units", len(units)),
		zap.Int("orders", len(orders)),
	)
}

// MergeUnits updates units by id, adding ones the cache has not seen.
func (s *Store) MergeUnits(units []*repository.Unit) {
	if len(units) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rev := s.nextRevision()
	for _, u := range units {
		s.units[u.ID] = &unitEntry{value: u.Clone(), rev: rev}
	}
	s.updateGauges()
}

func (s *Store) RemoveUnit(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRevision()
	delete(s.units, id)
	s.updateGauges()
}

// ReplaceOrders swaps the order collection for a fresh remote copy.
func (s *Store) ReplaceOrders(orders []*repository.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rev := s.nextRevision()
	s.orders = make(map[string]*orderEntry, len(orders))
	s.lineIdx = make(map[string]string)
	for _, o := range orders {
		s.putOrder(o.Clone(), rev)
	}
	s.updateGauges()
}

// MergeOrders updates order aggregates by id, adding unseen ones.
func (s *Store) MergeOrders(orders []*repository.Order) {
	if len(orders) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rev := s.nextRevision()
	for _, o := range orders {
		s.putOrder(o.Clone(), rev)
	}
	s.updateGauges()
}

func (s *Store) MergeProducts(products []*repository.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		c := *p
		s.products[p.ID] = &c
	}
}

// MarkSynced records a completed differential catch-up.
func (s *Store) MarkSynced(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = at
}
