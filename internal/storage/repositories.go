//go:generate mockgen -source ./repositories.go -destination=./mocks/repositories.go -package=mock_storage
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
)

type ProductRepository interface {
	List(ctx context.Context) ([]*repository.Product, error)
}

type UnitRepository interface {
	GetByID(ctx context.Context, id string) (*repository.Unit, error)
	List(ctx context.Context) ([]*repository.Unit, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]*repository.Unit, error)
	// UpdateIfStatusTx writes the unit only while its stored status still
	// equals expected; otherwise it returns repository.ErrConflict.
	UpdateIfStatusTx(ctx context.Context, tx db.Tx, unit *repository.Unit, expected repository.UnitStatus) error
}

type OrderRepository interface {
	List(ctx context.Context) ([]*repository.Order, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]*repository.Order, error)
	CreateTx(ctx context.Context, tx db.Tx, order *repository.Order) error
	// LockTx takes the order row lock until tx ends, so writers of the same
	// order serialise on it.
	LockTx(ctx context.Context, tx db.Tx, id string) error
	UpdateTx(ctx context.Context, tx db.Tx, order *repository.Order) error
}

type LineRepository interface {
	ListByOrderIDs(ctx context.Context, orderIDs []string) ([]*repository.OrderLine, error)
	List(ctx context.Context) ([]*repository.OrderLine, error)
	ListByOrderIDTx(ctx context.Context, tx db.Tx, orderID string) ([]*repository.OrderLine, error)
	CreateTx(ctx context.Context, tx db.Tx, line *repository.OrderLine) error
	// UpdateIfStatusTx writes the line only while its stored processing and
	// approval statuses equal the expected ones. A second live binding of the
	// same unit is reported as repository.ErrConflict as well.
	UpdateIfStatusTx(ctx context.Context, tx db.Tx, line *repository.OrderLine, expected repository.ProcessingStatus, expectedApproval repository.ApprovalStatus) error
}

type HistoryRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, entry *repository.ItemHistory) error
	ListByUnit(ctx context.Context, unitID string) ([]*repository.ItemHistory, error)
	LatestAssignment(ctx context.Context, unitID, orderID string) (*repository.ItemHistory, error)
}

type OutboxTaskRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, task *repository.OutboxTask) error
	// GetProcessableTasksTx locks the batch it returns until tx ends.
	GetProcessableTasksTx(ctx context.Context, tx db.Tx, limit, maxAttempts int) ([]*repository.OutboxTask, error)
	UpdateTaskStatusTx(ctx context.Context, tx db.Tx, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error
	UpdateTaskStatus(ctx context.Context, db db.DB, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error
}
