package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage"
)

const orderColumns = `id, customer_name, assigned_to, carried_by, status, required_date,
    notes, created_by, created_at, updated_at`

// OrderRepo reads and writes order headers only; lines live in LineRepo.
type OrderRepo struct {
	db db.DB
}

func NewOrderRepo(db db.DB) storage.OrderRepository {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) List(ctx context.Context) ([]*repository.Order, error) {
	var orders []*repository.Order
	err := r.db.Select(ctx, &orders, "SELECT "+orderColumns+" FROM orders ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// ListUpdatedSince returns orders whose header or any line changed after since.
func (r *OrderRepo) ListUpdatedSince(ctx context.Context, since time.Time) ([]*repository.Order, error) {
	var orders []*repository.Order
	err := r.db.Select(ctx, &orders, "SELECT "+orderColumns+`
        FROM orders
        WHERE updated_at > $1
           OR id IN (SELECT order_id FROM order_items WHERE updated_at > $1)
        ORDER BY created_at ASC
    `, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders updated since %s: %w", since.Format(time.RFC3339), err)
	}
	return orders, nil
}

func (r *OrderRepo) CreateTx(ctx context.Context, tx db.Tx, o *repository.Order) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO orders (
            id, customer_name, assigned_to, carried_by, status, required_date, notes, created_by, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, o.ID, o.CustomerName, o.AssignedTo, o.CarriedBy, o.Status, o.RequiredDate, o.Notes, o.CreatedBy, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *OrderRepo) LockTx(ctx context.Context, tx db.Tx, id string) error {
	var locked string
	err := tx.Get(ctx, &locked, "SELECT id FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrObjectNotFound
		}
		return err
	}
	return nil
}

func (r *OrderRepo) UpdateTx(ctx context.Context, tx db.Tx, o *repository.Order) error {
	tag, err := tx.Exec(ctx, `
        UPDATE orders
        SET
            customer_name = $1,
            assigned_to = $2,
            carried_by = $3,
            status = $4,
            required_date = $5,
            notes = $6
        WHERE id = $7
    `, o.CustomerName, o.AssignedTo, o.CarriedBy, o.Status, o.RequiredDate, o.Notes, o.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}
