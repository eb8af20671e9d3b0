package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage"
)

const historyColumns = `id, unit_id, action, from_status, to_status, performed_by, created_at, metadata`

type HistoryRepo struct {
	db db.DB
}

func NewHistoryRepo(db db.DB) storage.HistoryRepository {
	return &HistoryRepo{db: db}
}

func (r *HistoryRepo) CreateTx(ctx context.Context, tx db.Tx, h *repository.ItemHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO item_histories (
            id, unit_id, action, from_status, to_status, performed_by, created_at, metadata
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, h.ID, h.UnitID, h.Action, h.FromStatus, h.ToStatus, h.Actor, h.Timestamp, h.Meta)
	if err != nil {
		return fmt.Errorf("failed to insert history for unit %s: %w", h.UnitID, err)
	}
	return nil
}

func (r *HistoryRepo) ListByUnit(ctx context.Context, unitID string) ([]*repository.ItemHistory, error) {
	var entries []*repository.ItemHistory
	err := r.db.Select(ctx, &entries, "SELECT "+historyColumns+`
        FROM item_histories
        WHERE unit_id = $1
        ORDER BY created_at DESC
    `, unitID)
	return entries, err
}

// LatestAssignment finds the most recent "assigned" record binding the unit
// to the given order.
func (r *HistoryRepo) LatestAssignment(ctx context.Context, unitID, orderID string) (*repository.ItemHistory, error) {
	var entry repository.ItemHistory
	err := r.db.Get(ctx, &entry, "SELECT "+historyColumns+`
        FROM item_histories
        WHERE unit_id = $1
          AND action = $2
          AND metadata->'assignment'->>'order_id' = $3
        ORDER BY created_at DESC
        LIMIT 1
    `, unitID, repository.ActionAssigned, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &entry, nil
}
