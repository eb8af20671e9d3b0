package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/allocation"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage"
)

// AssignUnit binds an available unit to a line and makes both ready for
// delivery in one step.
func (e *Engine) AssignUnit(ctx context.Context, lineID, unitID string) error {
	return e.bind(ctx, "assign_unit", lineID, unitID, repository.AssignDirect)
}

// ReserveUnit binds a unit to a line without making it ready. Approved lines
// may reserve a unit that is still being processed.
func (e *Engine) ReserveUnit(ctx context.Context, lineID, unitID string) error {
	return e.bind(ctx, "reserve_unit", lineID, unitID, repository.AssignReserve)
}

func (e *Engine) bind(ctx context.Context, op, lineID, unitID string, method repository.AssignmentMethod) error {
	actor, now := e.actor(ctx), e.now()

	unitTo, lineTo := repository.UnitReadyForDelivery, repository.ProcessingReady
	if method == repository.AssignReserve {
		unitTo, lineTo = repository.UnitReserved, repository.ProcessingAssigned
	}

	err := e.mutate(ctx, op, func(v *cache.View) (*storage.Mutation, error) {
		order, line, err := findLine(v, lineID)
		if err != nil {
			return nil, err
		}
		unit, err := findUnit(v, unitID)
		if err != nil {
			return nil, err
		}
		if err := allocation.CheckAssignable(line, unit, method); err != nil {
			return nil, err
		}
		if _, other := allocation.BoundLine(v.Orders(), unitID); other != nil {
			return nil, fmt.Errorf("unit %s is held by order line %s: %w", unitID, other.ID, allocation.ErrAssignmentConflict)
		}
		if err := allocation.CheckTransition(unit.Status, unitTo); err != nil {
			return nil, err
		}

		history := &repository.ItemHistory{
			UnitID:     unit.ID,
			Action:     repository.ActionAssigned,
			FromStatus: unit.Status,
			ToStatus:   unitTo,
			Actor:      actor,
			Timestamp:  now,
			Meta: repository.HistoryMeta{Assignment: &repository.AssignmentMeta{
				OrderID:          order.ID,
				OrderLineID:      line.ID,
				Method:           method,
				PreviousStatus:   unit.Status,
				PreviousLocation: unit.Location,
				PreviousCustomer: unit.CustomerName,
			}},
		}
		unitFrom, lineFrom, approvalFrom := unit.Status, line.ProcessingStatus, line.ApprovalStatus

		unit.Status = unitTo
		unit.UpdatedAt = now
		if line.RequestedSetting != nil {
			unit.CurrentSetting = repository.StringPtr(*line.RequestedSetting)
		}
		line.AssignedUnitID = repository.StringPtr(unit.ID)
		line.ProcessingStatus = lineTo
		line.UpdatedAt = now
		touch(order, now)

		return &storage.Mutation{
			Order: order,
			Lines: []storage.LineChange{{Line: line, ExpectedStatus: lineFrom, ExpectedApproval: approvalFrom}},
			Units: []storage.UnitChange{{Unit: unit, ExpectedStatus: unitFrom, History: history}},
		}, nil
	})
	if err != nil {
		return err
	}

	metrics.AssignmentsTotal.WithLabelValues(string(method)).Inc()
	e.log.Info("unit bound",
		zap.String("line_id", lineID),
		zap.String("unit_id", unitID),
		zap.String("method", string(method)),
		zap.String("actor", actor),
	)
	return nil
}

// MarkReady moves a reserved unit and its line to ready for delivery.
func (e *Engine) MarkReady(ctx context.Context, lineID string) error {
	actor, now := e.actor(ctx), e.now()

	return e.mutate(ctx, "mark_ready", func(v *cache.View) (*storage.Mutation, error) {
		order, line, unit, err := boundPair(v, lineID)
		if err != nil {
			return nil, err
		}
		if err := allocation.CheckLineTransition(line.ProcessingStatus, repository.ProcessingReady); err != nil {
			return nil, err
		}
		if err := allocation.CheckTransition(unit.Status, repository.UnitReadyForDelivery); err != nil {
			return nil, err
		}

		history := &repository.ItemHistory{
			UnitID:     unit.ID,
			Action:     repository.ActionReady,
			FromStatus: unit.Status,
			ToStatus:   repository.UnitReadyForDelivery,
			Actor:      actor,
			Timestamp:  now,
			Meta: repository.HistoryMeta{Extra: map[string]string{
				"order_id":      order.ID,
				"order_line_id": line.ID,
			}},
		}
		unitFrom, lineFrom, approvalFrom := unit.Status, line.ProcessingStatus, line.ApprovalStatus

		unit.Status = repository.UnitReadyForDelivery
		unit.UpdatedAt = now
		line.ProcessingStatus = repository.ProcessingReady
		line.UpdatedAt = now
		touch(order, now)

		return &storage.Mutation{
			Order: order,
			Lines: []storage.LineChange{{Line: line, ExpectedStatus: lineFrom, ExpectedApproval: approvalFrom}},
			Units: []storage.UnitChange{{Unit: unit, ExpectedStatus: unitFrom, History: history}},
		}, nil
	})
}

// ConfirmDelivery hands the unit of a ready line over to the order's customer.
func (e *Engine) ConfirmDelivery(ctx context.Context, lineID string) error {
	actor, now := e.actor(ctx), e.now()

	return e.mutate(ctx, "confirm_delivery", func(v *cache.View) (*storage.Mutation, error) {
		order, line, unit, err := boundPair(v, lineID)
		if err != nil {
			return nil, err
		}
		if err := allocation.CheckLineTransition(line.ProcessingStatus, repository.ProcessingDelivered); err != nil {
			return nil, err
		}
		if err := allocation.CheckTransition(unit.Status, repository.UnitRented); err != nil {
			return nil, err
		}

		history := &repository.ItemHistory{
			UnitID:     unit.ID,
			Action:     repository.ActionDelivered,
			FromStatus: unit.Status,
			ToStatus:   repository.UnitRented,
			Actor:      actor,
			Timestamp:  now,
			Meta: repository.HistoryMeta{Delivery: &repository.DeliveryMeta{
				OrderID:      order.ID,
				OrderLineID:  line.ID,
				CustomerName: order.CustomerName,
				LoanStart:    now,
			}},
		}
		unitFrom, lineFrom, approvalFrom := unit.Status, line.ProcessingStatus, line.ApprovalStatus

		loanStart := now
		unit.Status = repository.UnitRented
		unit.CustomerName = repository.StringPtr(order.CustomerName)
		unit.LoanStartDate = &loanStart
		unit.UpdatedAt = now
		line.ProcessingStatus = repository.ProcessingDelivered
		line.UpdatedAt = now
		touch(order, now)

		return &storage.Mutation{
			Order: order,
			Lines: []storage.LineChange{{Line: line, ExpectedStatus: lineFrom, ExpectedApproval: approvalFrom}},
			Units: []storage.UnitChange{{Unit: unit, ExpectedStatus: unitFrom, History: history}},
		}, nil
	})
}

// CancelLine cancels a line that has not been delivered. A bound unit goes
// back to the status and location it had before the assignment.
func (e *Engine) CancelLine(ctx context.Context, lineID, reason string) error {
	actor, now := e.actor(ctx), e.now()

	order, ok := e.store.OrderForLine(lineID)
	if !ok {
		return e.result("cancel_line", fmt.Errorf("order line %s: %w", lineID, repository.ErrObjectNotFound))
	}
	targets, err := e.restoreTargets(ctx, order, []*repository.OrderLine{order.Line(lineID)})
	if err != nil {
		return e.result("cancel_line", err)
	}

	err = e.mutate(ctx, "cancel_line", func(v *cache.View) (*storage.Mutation, error) {
		order, line, err := findLine(v, lineID)
		if err != nil {
			return nil, err
		}
		if err := allocation.CheckLineTransition(line.ProcessingStatus, repository.ProcessingCancelled); err != nil {
			return nil, err
		}

		m := &storage.Mutation{Order: order}
		lineFrom, approvalFrom := line.ProcessingStatus, line.ApprovalStatus
		uc, err := release(v, order, line, targets, reason, actor, now)
		if err != nil {
			return nil, err
		}
		if uc != nil {
			m.Units = append(m.Units, *uc)
		}

		line.ProcessingStatus = repository.ProcessingCancelled
		line.CancelledBy = repository.StringPtr(actor)
		line.CancelledReason = repository.StringPtr(reason)
		line.UpdatedAt = now
		m.Lines = append(m.Lines, storage.LineChange{Line: line, ExpectedStatus: lineFrom, ExpectedApproval: approvalFrom})
		touch(order, now)
		return m, nil
	})
	if err != nil {
		return err
	}

	e.log.Info("order line cancelled",
		zap.String("line_id", lineID),
		zap.String("order_id", order.ID),
		zap.String("actor", actor),
	)
	return nil
}

// boundPair resolves a line together with the unit it holds.
func boundPair(v *cache.View, lineID string) (*repository.Order, *repository.OrderLine, *repository.Unit, error) {
	order, line, err := findLine(v, lineID)
	if err != nil {
		return nil, nil, nil, err
	}
	if line.AssignedUnit() == "" {
		return nil, nil, nil, fmt.Errorf("order line %s holds no unit: %w", lineID, allocation.ErrInvalidTransition)
	}
	unit, err := findUnit(v, line.AssignedUnit())
	if err != nil {
		return nil, nil, nil, err
	}
	return order, line, unit, nil
}

// restoreTarget is where a released unit goes back to.
type restoreTarget struct {
	status   repository.UnitStatus
	location string
	customer *string
	// known is false when no assignment record was found; the unit then
	// falls back to available and keeps its location and customer.
	known bool
}

// restoreTargets reads, before any lock is taken, the pre-assignment state of
// every unit held by the given lines of order.
func (e *Engine) restoreTargets(ctx context.Context, order *repository.Order, lines []*repository.OrderLine) (map[string]restoreTarget, error) {
	targets := make(map[string]restoreTarget)
	for _, l := range lines {
		if l == nil || !allocation.Binds(l) {
			continue
		}
		unitID := l.AssignedUnit()
		h, err := e.remote.LatestAssignment(ctx, unitID, order.ID)
		switch {
		case errors.Is(err, repository.ErrObjectNotFound):
			h = nil
		case err != nil:
			return nil, fmt.Errorf("load assignment of unit %s: %w", unitID, remoteErr(err))
		}

		if h == nil || h.Meta.Assignment == nil {
			e.log.Warn("no assignment record, unit falls back to available",
				zap.String("unit_id", unitID),
				zap.String("order_id", order.ID),
			)
			targets[unitID] = restoreTarget{status: repository.UnitAvailable}
			continue
		}
		a := h.Meta.Assignment
		targets[unitID] = restoreTarget{
			status:   a.PreviousStatus,
			location: a.PreviousLocation,
			customer: a.PreviousCustomer,
			known:    true,
		}
	}
	return targets, nil
}

// release unbinds the line's unit, if any, and returns the unit write that
// restores it.
func release(v *cache.View, order *repository.Order, line *repository.OrderLine, targets map[string]restoreTarget, reason, actor string, now time.Time) (*storage.UnitChange, error) {
	if !allocation.Binds(line) {
		return nil, nil
	}
	unitID := line.AssignedUnit()
	target, ok := targets[unitID]
	if !ok {
		return nil, fmt.Errorf("order line %s was rebound to unit %s meanwhile: %w", line.ID, unitID, allocation.ErrAssignmentConflict)
	}
	unit, err := findUnit(v, unitID)
	if err != nil {
		return nil, err
	}
	if !allocation.CanRestore(unit.Status) {
		return nil, &allocation.TransitionError{Entity: "unit", From: string(unit.Status), To: string(target.status)}
	}

	history := &repository.ItemHistory{
		UnitID:     unit.ID,
		Action:     repository.ActionRestored,
		FromStatus: unit.Status,
		ToStatus:   target.status,
		Actor:      actor,
		Timestamp:  now,
	}
	unitFrom := unit.Status

	unit.Status = target.status
	if target.known {
		unit.Location = target.location
		unit.CustomerName = target.customer
	}
	unit.UpdatedAt = now
	history.Meta.Restore = &repository.RestoreMeta{
		OrderID:      order.ID,
		OrderLineID:  line.ID,
		RestoredFrom: unitFrom,
		RestoredTo:   target.status,
		Location:     unit.Location,
		Reason:       reason,
	}
	line.AssignedUnitID = nil

	return &storage.UnitChange{Unit: unit, ExpectedStatus: unitFrom, History: history}, nil
}
