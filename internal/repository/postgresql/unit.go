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

const unitColumns = `id, product_id, status, condition, location, customer_name,
    loan_start_date, current_setting, updated_at`

type UnitRepo struct {
	db db.DB
}

func NewUnitRepo(db db.DB) storage.UnitRepository {
	return &UnitRepo{db: db}
}

func (r *UnitRepo) GetByID(ctx context.Context, id string) (*repository.Unit, error) {
	var unit repository.Unit
	err := r.db.Get(ctx, &unit, "SELECT "+unitColumns+" FROM product_items WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &unit, nil
}

func (r *UnitRepo) List(ctx context.Context) ([]*repository.Unit, error) {
	var units []*repository.Unit
	err := r.db.Select(ctx, &units, "SELECT "+unitColumns+" FROM product_items ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	return units, nil
}

func (r *UnitRepo) ListUpdatedSince(ctx context.Context, since time.Time) ([]*repository.Unit, error) {
	var units []*repository.Unit
	err := r.db.Select(ctx, &units, "SELECT "+unitColumns+`
        FROM product_items
        WHERE updated_at > $1
        ORDER BY updated_at ASC
    `, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list units updated since %s: %w", since.Format(time.RFC3339), err)
	}
	return units, nil
}

func (r *UnitRepo) UpdateIfStatusTx(ctx context.Context, tx db.Tx, u *repository.Unit, expected repository.UnitStatus) error {
	tag, err := tx.Exec(ctx, `
        UPDATE product_items
        SET
            status = $1,
            location = $2,
            customer_name = $3,
            loan_start_date = $4,
            current_setting = $5
        WHERE id = $6 AND status = $7
    `, u.Status, u.Location, u.CustomerName, u.LoanStartDate, u.CurrentSetting, u.ID, expected)
	if err != nil {
		return fmt.Errorf("failed to update unit %s: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("unit %s is no longer %s: %w", u.ID, expected, repository.ErrConflict)
	}
	return nil
}
