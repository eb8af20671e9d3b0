package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/allocation"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/reservation"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage"
)

// SubmitResult holds the orders a submission produced. Either may be nil.
type SubmitResult struct {
	Approved *repository.Order `json:"approved,omitempty"`
	Pending  *repository.Order `json:"pending,omitempty"`
}

// SubmitOrder validates a submission, splits it between verified and
// processing stock and stores the resulting orders. Nothing is stored when
// any product falls short.
func (e *Engine) SubmitOrder(ctx context.Context, sub allocation.Submission) (*SubmitResult, error) {
	actor, now := e.actor(ctx), e.now()

	var plan allocation.Plan
	err := e.store.Mutate(ctx,
		func(v *cache.View) (*cache.Change, error) {
			if err := allocation.Validate(sub, v.Products(), now); err != nil {
				return nil, err
			}
			units, orders := v.Units(), v.Orders()
			stock := make(map[string]reservation.Availability, len(sub.Lines))
			for _, rl := range sub.Lines {
				if _, ok := stock[rl.ProductID]; !ok {
					stock[rl.ProductID] = reservation.Compute(orders, units, rl.ProductID)
				}
			}

			var err error
			if plan, err = allocation.PlanSplit(sub, stock, actor, now, e.newID); err != nil {
				return nil, err
			}
			return &cache.Change{Orders: plan.Orders()}, nil
		},
		func(ctx context.Context, c *cache.Change) error {
			return remoteErr(e.remote.CreateOrders(ctx, c.Orders))
		},
	)
	if err != nil {
		return nil, e.result("submit_order", err)
	}

	split := "approved"
	switch {
	case plan.Approved != nil && plan.Pending != nil:
		split = "split"
	case plan.Approved == nil:
		split = "pending"
	}
	metrics.OrdersSubmittedTotal.WithLabelValues(split).Inc()

	e.log.Info("order submitted",
		zap.String("customer", sub.CustomerName),
		zap.String("split", split),
		zap.Int("lines", plan.LineCount()),
		zap.String("actor", actor),
	)
	return &SubmitResult{Approved: plan.Approved.Clone(), Pending: plan.Pending.Clone()}, nil
}

func (e *Engine) ApproveLine(ctx context.Context, lineID, notes string) error {
	return e.decideLines(ctx, "approve_line", lineID, "", repository.ApprovalApproved, notes)
}

// RejectLine rejects a pending line; a unit it holds is restored.
func (e *Engine) RejectLine(ctx context.Context, lineID, notes string) error {
	return e.decideLines(ctx, "reject_line", lineID, "", repository.ApprovalRejected, notes)
}

// ApproveOrder approves every pending line of the order.
func (e *Engine) ApproveOrder(ctx context.Context, orderID, notes string) error {
	return e.decideLines(ctx, "approve_order", "", orderID, repository.ApprovalApproved, notes)
}

// RejectOrder rejects every pending line of the order.
func (e *Engine) RejectOrder(ctx context.Context, orderID, notes string) error {
	return e.decideLines(ctx, "reject_order", "", orderID, repository.ApprovalRejected, notes)
}

// decideLines records an approval decision on one line (lineID set) or on
// every pending line of an order (orderID set).
func (e *Engine) decideLines(ctx context.Context, op, lineID, orderID string, decision repository.ApprovalStatus, notes string) error {
	actor, now := e.actor(ctx), e.now()

	order, err := e.lookupOrder(lineID, orderID)
	if err != nil {
		return e.result(op, err)
	}
	var targets map[string]restoreTarget
	if decision == repository.ApprovalRejected {
		if targets, err = e.restoreTargets(ctx, order, decidable(order, lineID)); err != nil {
			return e.result(op, err)
		}
	}

	decided := 0
	orderID = order.ID
	err = e.mutate(ctx, op, func(v *cache.View) (*storage.Mutation, error) {
		order, ok := v.Order(orderID)
		if !ok {
			return nil, fmt.Errorf("order %s: %w", orderID, repository.ErrObjectNotFound)
		}
		lines := decidable(order, lineID)
		if len(lines) == 0 {
			return nil, fmt.Errorf("order %s has no line awaiting approval: %w", orderID, allocation.ErrInvalidTransition)
		}

		m := &storage.Mutation{Order: order}
		for _, line := range lines {
			if line.ApprovalStatus != repository.ApprovalPending || !line.Active() {
				return nil, &allocation.TransitionError{
					Entity: "order line approval",
					From:   string(line.ApprovalStatus),
					To:     string(decision),
				}
			}
			lineFrom, approvalFrom := line.ProcessingStatus, line.ApprovalStatus
			if decision == repository.ApprovalRejected {
				uc, err := release(v, order, line, targets, notes, actor, now)
				if err != nil {
					return nil, err
				}
				if uc != nil {
					m.Units = append(m.Units, *uc)
				}
			}

			line.ApprovalStatus = decision
			line.ApprovedBy = repository.StringPtr(actor)
			line.ApprovalNotes = repository.StringPtr(notes)
			line.UpdatedAt = now
			m.Lines = append(m.Lines, storage.LineChange{Line: line, ExpectedStatus: lineFrom, ExpectedApproval: approvalFrom})
		}
		decided = len(lines)
		touch(order, now)
		return m, nil
	})
	if err != nil {
		return err
	}

	e.log.Info("approval recorded",
		zap.String("order_id", orderID),
		zap.String("decision", string(decision)),
		zap.Int("lines", decided),
		zap.String("actor", actor),
	)
	return nil
}

func (e *Engine) lookupOrder(lineID, orderID string) (*repository.Order, error) {
	if lineID != "" {
		if o, ok := e.store.OrderForLine(lineID); ok {
			return o, nil
		}
		return nil, fmt.Errorf("order line %s: %w", lineID, repository.ErrObjectNotFound)
	}
	if o, ok := e.store.Order(orderID); ok {
		return o, nil
	}
	return nil, fmt.Errorf("order %s: %w", orderID, repository.ErrObjectNotFound)
}

// decidable picks the line lineID, or every pending line when lineID is empty.
func decidable(order *repository.Order, lineID string) []*repository.OrderLine {
	if lineID != "" {
		if l := order.Line(lineID); l != nil {
			return []*repository.OrderLine{l}
		}
		return nil
	}
	var out []*repository.OrderLine
	for _, l := range order.Lines {
		if l.ApprovalStatus == repository.ApprovalPending && l.Active() {
			out = append(out, l)
		}
	}
	return out
}
