package engine

import (
	"context"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/allocation"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage"
)

// TransitionUnit drives a unit along an edge that involves no order: taking
// it back from a customer, cleaning, maintenance and repair.
func (e *Engine) TransitionUnit(ctx context.Context, unitID string, to repository.UnitStatus, note string) error {
	actor, now := e.actor(ctx), e.now()

	var from repository.UnitStatus
	err := e.mutate(ctx, "transition_unit", func(v *cache.View) (*storage.Mutation, error) {
		unit, err := findUnit(v, unitID)
		if err != nil {
			return nil, err
		}
		if err := allocation.CheckOperatorTransition(unit.Status, to); err != nil {
			return nil, err
		}

		history := &repository.ItemHistory{
			UnitID:     unit.ID,
			Action:     repository.ActionStatusChange,
			FromStatus: unit.Status,
			ToStatus:   to,
			Actor:      actor,
			Timestamp:  now,
		}
		if note != "" {
			history.Meta.Extra = map[string]string{"note": note}
		}
		from = unit.Status

		if from == repository.UnitRented {
			history.Meta.Extra = withExtra(history.Meta.Extra, "customer_name", derefString(unit.CustomerName))
			unit.CustomerName = nil
			unit.LoanStartDate = nil
		}
		unit.Status = to
		unit.UpdatedAt = now

		return &storage.Mutation{
			Units: []storage.UnitChange{{Unit: unit, ExpectedStatus: from, History: history}},
		}, nil
	})
	if err != nil {
		return err
	}

	e.log.Info("unit status changed",
		zap.String("unit_id", unitID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor),
	)
	return nil
}

func withExtra(extra map[string]string, key, value string) map[string]string {
	if value == "" {
		return extra
	}
	if extra == nil {
		extra = make(map[string]string)
	}
	extra[key] = value
	return extra
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
