package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/allocation"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
)

// UnitChange is a conditional unit write plus the audit record it produces.
type UnitChange struct {
	Unit           *repository.Unit
	ExpectedStatus repository.UnitStatus
	History        *repository.ItemHistory
}

// LineChange is a conditional line write, guarded on both the processing
// and the approval status the caller last saw.
type LineChange struct {
	Line             *repository.OrderLine
	ExpectedStatus   repository.ProcessingStatus
	ExpectedApproval repository.ApprovalStatus
}

// Mutation is one engine operation as seen by the store. Apply locks the
// order, writes its lines, stores the order header, then units with their
// history. Order.Status is not taken from the caller: it is derived from the
// order's lines as stored once the line writes are done.
type Mutation struct {
	Order *repository.Order
	Lines []LineChange
	Units []UnitChange
}

type Storage struct {
	db           db.DB
	productRepo  ProductRepository
	unitRepo     UnitRepository
	orderRepo    OrderRepository
	lineRepo     LineRepository
	historyRepo  HistoryRepository
	outboxRepo   OutboxTaskRepository
	historyTopic string
	timeNow      func() time.Time
}

func NewStorage(
	database db.DB,
	productRepo ProductRepository,
	unitRepo UnitRepository,
	orderRepo OrderRepository,
	lineRepo LineRepository,
	historyRepo HistoryRepository,
	outboxRepo OutboxTaskRepository,
	historyTopic string,
) *Storage {
	return &Storage{
		db:           database,
		productRepo:  productRepo,
		unitRepo:     unitRepo,
		orderRepo:    orderRepo,
		lineRepo:     lineRepo,
		historyRepo:  historyRepo,
		outboxRepo:   outboxRepo,
		historyTopic: historyTopic,
		timeNow:      time.Now,
	}
}

// inTx runs fn in a transaction, rolling back when fn or the commit fails.
func (s *Storage) inTx(ctx context.Context, fn func(tx db.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateOrders persists every order with its lines in one transaction, so a
// split submission is either fully stored or not at all.
func (s *Storage) CreateOrders(ctx context.Context, orders []*repository.Order) error {
	return s.inTx(ctx, func(tx db.Tx) error {
		for _, o := range orders {
			if err := s.orderRepo.CreateTx(ctx, tx, o); err != nil {
				return fmt.Errorf("failed to add order %s: %w", o.ID, err)
			}
			for _, l := range o.Lines {
				if err := s.lineRepo.CreateTx(ctx, tx, l); err != nil {
					return fmt.Errorf("failed to add order line %s: %w", l.ID, err)
				}
			}
		}
		return nil
	})
}

func (s *Storage) Apply(ctx context.Context, m Mutation) error {
	return s.inTx(ctx, func(tx db.Tx) error {
		if m.Order != nil {
			if err := s.orderRepo.LockTx(ctx, tx, m.Order.ID); err != nil {
				return fmt.Errorf("failed to lock order %s: %w", m.Order.ID, err)
			}
		}
		for _, lc := range m.Lines {
			if err := s.lineRepo.UpdateIfStatusTx(ctx, tx, lc.Line, lc.ExpectedStatus, lc.ExpectedApproval); err != nil {
				return err
			}
		}
		if m.Order != nil {
			if err := s.updateOrderTx(ctx, tx, m.Order); err != nil {
				return err
			}
		}
		for _, uc := range m.Units {
			if err := s.unitRepo.UpdateIfStatusTx(ctx, tx, uc.Unit, uc.ExpectedStatus); err != nil {
				return err
			}
			if uc.History == nil {
				continue
			}
			if err := s.recordHistory(ctx, tx, uc.History); err != nil {
				return err
			}
		}
		return nil
	})
}

// updateOrderTx stores the order header with the status its stored lines
// give. Another session may have changed other lines of the same order, so
// the caller's own status can be out of date.
func (s *Storage) updateOrderTx(ctx context.Context, tx db.Tx, o *repository.Order) error {
	lines, err := s.lineRepo.ListByOrderIDTx(ctx, tx, o.ID)
	if err != nil {
		return fmt.Errorf("failed to read lines of order %s: %w", o.ID, err)
	}
	header := *o
	header.Lines = lines
	header.Status = allocation.DeriveOrderStatus(lines)
	if err := s.orderRepo.UpdateTx(ctx, tx, &header); err != nil {
		return fmt.Errorf("failed to update order %s: %w", o.ID, err)
	}
	return nil
}

// recordHistory writes the audit row and queues it for the audit sink.
func (s *Storage) recordHistory(ctx context.Context, tx db.Tx, h *repository.ItemHistory) error {
	if h.Timestamp.IsZero() {
		h.Timestamp = s.timeNow().UTC()
	}
	if err := s.historyRepo.CreateTx(ctx, tx, h); err != nil {
		return fmt.Errorf("failed to add unit history entry: %w", err)
	}

	payload, err := json.Marshal(repository.NewHistoryEvent(h))
	if err != nil {
		return fmt.Errorf("failed to marshal history event: %w", err)
	}
	task := &repository.OutboxTask{
		Payload: payload,
		Topic:   s.historyTopic,
		Key:     h.UnitID,
	}
	if err := s.outboxRepo.CreateTx(ctx, tx, task); err != nil {
		return fmt.Errorf("failed to queue history event: %w", err)
	}
	return nil
}

func (s *Storage) LatestAssignment(ctx context.Context, unitID, orderID string) (*repository.ItemHistory, error) {
	return s.historyRepo.LatestAssignment(ctx, unitID, orderID)
}

func (s *Storage) UnitHistory(ctx context.Context, unitID string) ([]*repository.ItemHistory, error) {
	entries, err := s.historyRepo.ListByUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unit history: %w", err)
	}
	return entries, nil
}

func (s *Storage) GetUnit(ctx context.Context, id string) (*repository.Unit, error) {
	unit, err := s.unitRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, fmt.Errorf("unit %s: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return unit, nil
}

// Now reads the database clock. updated_at columns are set from it, so sync
// cutoffs compared against them must come from it as well.
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.db.Get(ctx, &now, "SELECT now()"); err != nil {
		return time.Time{}, fmt.Errorf("failed to read database time: %w", err)
	}
	return now.UTC(), nil
}

func (s *Storage) ListProducts(ctx context.Context) ([]*repository.Product, error) {
	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (s *Storage) ListUnits(ctx context.Context) ([]*repository.Unit, error) {
	return s.unitRepo.List(ctx)
}

func (s *Storage) ListUnitsSince(ctx context.Context, since time.Time) ([]*repository.Unit, error) {
	return s.unitRepo.ListUpdatedSince(ctx, since)
}

// ListOrders returns every order aggregate with its lines attached.
func (s *Storage) ListOrders(ctx context.Context) ([]*repository.Order, error) {
	orders, err := s.orderRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	lines, err := s.lineRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	return attachLines(orders, lines), nil
}

func (s *Storage) ListOrdersSince(ctx context.Context, since time.Time) ([]*repository.Order, error) {
	orders, err := s.orderRepo.ListUpdatedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	lines, err := s.lineRepo.ListByOrderIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return attachLines(orders, lines), nil
}

func attachLines(orders []*repository.Order, lines []*repository.OrderLine) []*repository.Order {
	byID := make(map[string]*repository.Order, len(orders))
	for _, o := range orders {
		o.Lines = nil
		byID[o.ID] = o
	}
	for _, l := range lines {
		if o, ok := byID[l.OrderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return orders
}
