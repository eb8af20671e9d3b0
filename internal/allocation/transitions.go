package allocation

import (
	"fmt"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/reservation"
)

type statusSet map[repository.UnitStatus]bool

var unitTransitions = map[repository.UnitStatus]statusSet{
	repository.UnitAvailable:        {repository.UnitReserved: true, repository.UnitReadyForDelivery: true},
	repository.UnitReserved:         {repository.UnitAvailable: true, repository.UnitReadyForDelivery: true},
	repository.UnitReadyForDelivery: {repository.UnitRented: true},
	repository.UnitRented:           {repository.UnitReturned: true, repository.UnitDemoCancelled: true},
	// Processing units may be reserved by a line an approver accepted.
	repository.UnitReturned:      {repository.UnitCleaning: true, repository.UnitReserved: true},
	repository.UnitCleaning:      {repository.UnitMaintenance: true, repository.UnitReserved: true},
	repository.UnitMaintenance:   {repository.UnitAvailable: true, repository.UnitReserved: true},
	repository.UnitDemoCancelled: {repository.UnitAvailable: true},
	repository.UnitOutOfOrder:    {repository.UnitAvailable: true},
}

// operatorTransitions are the edges an operator may drive without an order.
var operatorTransitions = map[repository.UnitStatus]statusSet{
	repository.UnitRented:        {repository.UnitReturned: true, repository.UnitDemoCancelled: true},
	repository.UnitReturned:      {repository.UnitCleaning: true},
	repository.UnitCleaning:      {repository.UnitMaintenance: true},
	repository.UnitMaintenance:   {repository.UnitAvailable: true},
	repository.UnitDemoCancelled: {repository.UnitAvailable: true},
	repository.UnitOutOfOrder:    {repository.UnitAvailable: true},
}

func CanTransition(from, to repository.UnitStatus) bool {
	return unitTransitions[from][to]
}

func CheckTransition(from, to repository.UnitStatus) error {
	if !CanTransition(from, to) {
		return unitTransitionError(from, to)
	}
	return nil
}

func CheckOperatorTransition(from, to repository.UnitStatus) error {
	if !operatorTransitions[from][to] {
		return unitTransitionError(from, to)
	}
	return nil
}

// CanRestore reports whether a unit bound to a line can be handed back to
// its pre-assignment state.
func CanRestore(from repository.UnitStatus) bool {
	return from == repository.UnitReserved || from == repository.UnitReadyForDelivery
}

var lineTransitions = map[repository.ProcessingStatus]map[repository.ProcessingStatus]bool{
	repository.ProcessingWaiting:  {repository.ProcessingAssigned: true, repository.ProcessingReady: true, repository.ProcessingCancelled: true},
	repository.ProcessingAssigned: {repository.ProcessingReady: true, repository.ProcessingCancelled: true},
	repository.ProcessingReady:    {repository.ProcessingDelivered: true, repository.ProcessingCancelled: true},
}

func CheckLineTransition(from, to repository.ProcessingStatus) error {
	if !lineTransitions[from][to] {
		return lineTransitionError(from, to)
	}
	return nil
}

// CheckAssignable validates binding unit to line. It only looks at the two
// entities; callers also check that no other live line holds the unit.
func CheckAssignable(line *repository.OrderLine, unit *repository.Unit, method repository.AssignmentMethod) error {
	if !line.Active() {
		return fmt.Errorf("order line %s is not active: %w", line.ID, ErrInvalidTransition)
	}
	if line.ApprovalStatus == repository.ApprovalPending {
		return fmt.Errorf("order line %s awaits approval: %w", line.ID, ErrInvalidTransition)
	}
	if line.AssignedUnit() != "" {
		return fmt.Errorf("order line %s already holds unit %s: %w", line.ID, line.AssignedUnit(), ErrAssignmentConflict)
	}
	target := repository.ProcessingReady
	if method == repository.AssignReserve {
		target = repository.ProcessingAssigned
	}
	if err := CheckLineTransition(line.ProcessingStatus, target); err != nil {
		return err
	}
	if unit.ProductID != line.ProductID {
		return fmt.Errorf("unit %s is product %s, line wants %s: %w", unit.ID, unit.ProductID, line.ProductID, ErrAssignmentConflict)
	}

	if unit.Status == repository.UnitAvailable {
		return nil
	}
	if method == repository.AssignReserve &&
		line.ApprovalStatus == repository.ApprovalApproved &&
		reservation.IsProcessing(unit.Status) {
		return nil
	}
	return fmt.Errorf("unit %s is %s: %w", unit.ID, unit.Status, ErrAssignmentConflict)
}

// Binds reports whether the line is a live binding of its assigned unit.
// Delivered lines keep the id for the record but no longer hold the unit.
func Binds(l *repository.OrderLine) bool {
	return l.AssignedUnit() != "" &&
		l.ProcessingStatus != repository.ProcessingCancelled &&
		l.ProcessingStatus != repository.ProcessingDelivered
}

// BoundLine finds the live line currently holding unitID, if any.
func BoundLine(orders []*repository.Order, unitID string) (*repository.Order, *repository.OrderLine) {
	for _, o := range orders {
		for _, l := range o.Lines {
			if l.AssignedUnit() == unitID && Binds(l) {
				return o, l
			}
		}
	}
	return nil, nil
}
