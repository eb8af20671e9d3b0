package engine

import (
	"context"
	"fmt"
	"sync"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/allocation"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage"
)

// fakeRemote is an in-memory store with the same conditional-write rules as
// the postgres one: a write whose expected statuses no longer match, or that
// would bind a unit twice, fails with repository.ErrConflict and leaves
// nothing behind. The stored order status is derived from the stored lines.
type fakeRemote struct {
	mu        sync.Mutex
	units     map[string]*repository.Unit
	orders    map[string]*repository.Order
	histories []*repository.ItemHistory
	applies   int

	// err, when set, fails the next write.
	err error
}

func newFakeRemote(units []*repository.Unit, orders []*repository.Order) *fakeRemote {
	f := &fakeRemote{
		units:  make(map[string]*repository.Unit),
		orders: make(map[string]*repository.Order),
	}
	for _, u := range units {
		f.units[u.ID] = u.Clone()
	}
	for _, o := range orders {
		f.orders[o.ID] = o.Clone()
	}
	return f
}

func (f *fakeRemote) snapshot() ([]*repository.Unit, []*repository.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var units []*repository.Unit
	for _, u := range f.units {
		units = append(units, u.Clone())
	}
	var orders []*repository.Order
	for _, o := range f.orders {
		orders = append(orders, o.Clone())
	}
	return units, orders
}

func (f *fakeRemote) unit(id string) *repository.Unit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units[id].Clone()
}

func (f *fakeRemote) order(id string) *repository.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Clone()
}

func (f *fakeRemote) history() []*repository.ItemHistory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*repository.ItemHistory(nil), f.histories...)
}

func (f *fakeRemote) failNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRemote) takeErr() error {
	err := f.err
	f.err = nil
	return err
}

func (f *fakeRemote) CreateOrders(_ context.Context, orders []*repository.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return err
	}
	for _, o := range orders {
		f.orders[o.ID] = o.Clone()
	}
	return nil
}

func (f *fakeRemote) findLine(id string) (*repository.Order, int) {
	for _, o := range f.orders {
		for i, l := range o.Lines {
			if l.ID == id {
				return o, i
			}
		}
	}
	return nil, -1
}

func (f *fakeRemote) Apply(_ context.Context, m storage.Mutation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return err
	}

	for _, lc := range m.Lines {
		o, i := f.findLine(lc.Line.ID)
		if o == nil || o.Lines[i].ProcessingStatus != lc.ExpectedStatus || o.Lines[i].ApprovalStatus != lc.ExpectedApproval {
			return fmt.Errorf("order line %s: %w", lc.Line.ID, repository.ErrConflict)
		}
		if !allocation.Binds(lc.Line) {
			continue
		}
		for _, other := range f.orders {
			for _, l := range other.Lines {
				if l.ID != lc.Line.ID && allocation.Binds(l) && l.AssignedUnit() == lc.Line.AssignedUnit() {
					return fmt.Errorf("unit %s already bound: %w", l.AssignedUnit(), repository.ErrConflict)
				}
			}
		}
	}
	for _, uc := range m.Units {
		cur, ok := f.units[uc.Unit.ID]
		if !ok || cur.Status != uc.ExpectedStatus {
			return fmt.Errorf("unit %s: %w", uc.Unit.ID, repository.ErrConflict)
		}
	}

	if m.Order != nil {
		cur, ok := f.orders[m.Order.ID]
		if !ok {
			return fmt.Errorf("order %s: %w", m.Order.ID, repository.ErrConflict)
		}
		header := m.Order.Clone()
		header.Lines = cur.Lines
		f.orders[m.Order.ID] = header
	}
	for _, lc := range m.Lines {
		o, i := f.findLine(lc.Line.ID)
		o.Lines[i] = lc.Line.Clone()
	}
	if m.Order != nil {
		o := f.orders[m.Order.ID]
		o.Status = allocation.DeriveOrderStatus(o.Lines)
	}
	for _, uc := range m.Units {
		f.units[uc.Unit.ID] = uc.Unit.Clone()
		if uc.History != nil {
			h := *uc.History
			f.histories = append(f.histories, &h)
		}
	}
	f.applies++
	return nil
}

func (f *fakeRemote) LatestAssignment(_ context.Context, unitID, orderID string) (*repository.ItemHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.histories) - 1; i >= 0; i-- {
		h := f.histories[i]
		if h.UnitID == unitID && h.Action == repository.ActionAssigned &&
			h.Meta.Assignment != nil && h.Meta.Assignment.OrderID == orderID {
			c := *h
			return &c, nil
		}
	}
	return nil, repository.ErrObjectNotFound
}

func (f *fakeRemote) UnitHistory(_ context.Context, unitID string) ([]*repository.ItemHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	var out []*repository.ItemHistory
	for _, h := range f.histories {
		if h.UnitID == unitID {
			c := *h
			out = append(out, &c)
		}
	}
	return out, nil
}
