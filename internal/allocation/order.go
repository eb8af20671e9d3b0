package allocation

import (
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
)

// DeriveOrderStatus computes an order's status from its lines alone.
// Rejected and cancelled lines are ignored unless nothing else is left.
func DeriveOrderStatus(lines []*repository.OrderLine) repository.OrderStatus {
	var active, pending, approved, ready, delivered int
	for _, l := range lines {
		if !l.Active() {
			continue
		}
		active++
		switch l.ApprovalStatus {
		case repository.ApprovalPending:
			pending++
		default:
			approved++
		}
		switch l.ProcessingStatus {
		case repository.ProcessingReady:
			ready++
		case repository.ProcessingDelivered:
			delivered++
		}
	}

	switch {
	case active == 0:
		return repository.OrderCancelled
	case pending > 0 && approved > 0:
		return repository.OrderPartialApproved
	case pending > 0:
		return repository.OrderPending
	case delivered == active:
		return repository.OrderDelivered
	case ready+delivered == active:
		return repository.OrderReady
	default:
		return repository.OrderApproved
	}
}

// Recompute refreshes o.Status from its lines and reports whether it changed.
func Recompute(o *repository.Order) bool {
	next := DeriveOrderStatus(o.Lines)
	if next == o.Status {
		return false
	}
	o.Status = next
	return true
}
