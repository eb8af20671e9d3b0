package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage"
)

const lineColumns = `id, order_id, product_id, approval_status, item_processing_status,
    assigned_unit_id, requested_setting, approved_by, approval_notes,
    cancelled_by, cancelled_reason, updated_at`

const uniqueViolation = "23505"

type LineRepo struct {
	db db.DB
}

func NewLineRepo(db db.DB) storage.LineRepository {
	return &LineRepo{db: db}
}

func (r *LineRepo) ListByOrderIDs(ctx context.Context, orderIDs []string) ([]*repository.OrderLine, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var lines []*repository.OrderLine
	err := r.db.Select(ctx, &lines, "SELECT "+lineColumns+`
        FROM order_items
        WHERE order_id = ANY($1)
        ORDER BY order_id, id
    `, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list order lines: %w", err)
	}
	return lines, nil
}

func (r *LineRepo) ListByOrderIDTx(ctx context.Context, tx db.Tx, orderID string) ([]*repository.OrderLine, error) {
	var lines []*repository.OrderLine
	err := tx.Select(ctx, &lines, "SELECT "+lineColumns+" FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order lines: %w", err)
	}
	return lines, nil
}

func (r *LineRepo) List(ctx context.Context) ([]*repository.OrderLine, error) {
	var lines []*repository.OrderLine
	err := r.db.Select(ctx, &lines, "SELECT "+lineColumns+" FROM order_items ORDER BY order_id, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list order lines: %w", err)
	}
	return lines, nil
}

func (r *LineRepo) CreateTx(ctx context.Context, tx db.Tx, l *repository.OrderLine) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO order_items (
            id, order_id, product_id, approval_status, item_processing_status,
            assigned_unit_id, requested_setting
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, l.ID, l.OrderID, l.ProductID, l.ApprovalStatus, l.ProcessingStatus, l.AssignedUnitID, l.RequestedSetting)
	return mapUniqueViolation(err)
}

func (r *LineRepo) UpdateIfStatusTx(ctx context.Context, tx db.Tx, l *repository.OrderLine, expected repository.ProcessingStatus, expectedApproval repository.ApprovalStatus) error {
	tag, err := tx.Exec(ctx, `
        UPDATE order_items
        SET
            approval_status = $1,
            item_processing_status = $2,
            assigned_unit_id = $3,
            approved_by = $4,
            approval_notes = $5,
            cancelled_by = $6,
            cancelled_reason = $7
        WHERE id = $8 AND item_processing_status = $9 AND approval_status = $10
    `, l.ApprovalStatus, l.ProcessingStatus, l.AssignedUnitID, l.ApprovedBy, l.ApprovalNotes,
		l.CancelledBy, l.CancelledReason, l.ID, expected, expectedApproval)
	if err != nil {
		return fmt.Errorf("failed to update order line %s: %w", l.ID, mapUniqueViolation(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order line %s is no longer %s/%s: %w", l.ID, expected, expectedApproval, repository.ErrConflict)
	}
	return nil
}

// mapUniqueViolation turns a hit on the active-binding index into ErrConflict.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, repository.ErrConflict)
	}
	return err
}
