package allocation

import (
	"strings"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/reservation"
)

type RequestLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Setting   string `json:"setting,omitempty"`
}

type Submission struct {
	CustomerName string        `json:"customer_name"`
	AssignedTo   string        `json:"assigned_to"`
	CarriedBy    string        `json:"carried_by"`
	RequiredDate time.Time     `json:"required_date"`
	Notes        string        `json:"notes"`
	Lines        []RequestLine `json:"lines"`
}

// Plan is the outcome of splitting a submission. Either side may be nil.
type Plan struct {
	Approved *repository.Order
	Pending  *repository.Order
}

func (p Plan) Orders() []*repository.Order {
	var out []*repository.Order
	if p.Approved != nil {
		out = append(out, p.Approved)
	}
	if p.Pending != nil {
		out = append(out, p.Pending)
	}
	return out
}

// LineCount is the number of lines across both sides.
func (p Plan) LineCount() int {
	n := 0
	for _, o := range p.Orders() {
		n += len(o.Lines)
	}
	return n
}

// Validate checks a submission before any stock is looked at. today is
// compared by calendar date only.
func Validate(sub Submission, products map[string]*repository.Product, today time.Time) error {
	required := map[string]string{
		"customer_name": sub.CustomerName,
		"assigned_to":   sub.AssignedTo,
		"carried_by":    sub.CarriedBy,
	}
	for _, field := range []string{"customer_name", "assigned_to", "carried_by"} {
		if strings.TrimSpace(required[field]) == "" {
			return &ValidationError{Field: field, Reason: "is required"}
		}
	}
	if sub.RequiredDate.IsZero() {
		return &ValidationError{Field: "required_date", Reason: "is required"}
	}
	if dateOnly(sub.RequiredDate).Before(dateOnly(today)) {
		return &ValidationError{Field: "required_date", Reason: "is in the past"}
	}
	if len(sub.Lines) == 0 {
		return &ValidationError{Field: "lines", Reason: "at least one product is required"}
	}

	for _, rl := range sub.Lines {
		if rl.Quantity < 1 {
			return &ValidationError{Field: "quantity", Reason: "must be at least 1 for " + rl.ProductID}
		}
		p, ok := products[rl.ProductID]
		if !ok {
			return &ValidationError{Field: "product_id", Reason: "unknown product " + rl.ProductID}
		}
		if p.RequiresSetting && strings.TrimSpace(rl.Setting) == "" {
			return &ValidationError{Field: "setting", Reason: "must be selected for " + p.Name}
		}
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type budget struct {
	verified   int
	processing int
}

// PlanSplit partitions the requested quantities into lines drawn from
// verified stock (approved order, approval not required) and lines waiting
// on processing stock (pending order). Budgets are per product across the
// whole submission. If any product cannot be covered nothing is planned.
func PlanSplit(sub Submission, stock map[string]reservation.Availability, actor string, now time.Time, newID func() string) (Plan, error) {
	wanted := make(map[string]int)
	var order []string
	for _, rl := range sub.Lines {
		if _, seen := wanted[rl.ProductID]; !seen {
			order = append(order, rl.ProductID)
		}
		wanted[rl.ProductID] += rl.Quantity
	}

	budgets := make(map[string]*budget, len(wanted))
	for _, productID := range order {
		a := stock[productID]
		if wanted[productID] > a.Fulfillable() {
			return Plan{}, &StockShortfallError{
				ProductID:   productID,
				Requested:   wanted[productID],
				Fulfillable: a.Fulfillable(),
			}
		}
		budgets[productID] = &budget{verified: a.EffectiveAvailable, processing: a.ProcessingStock}
	}

	header := func(status repository.OrderStatus) *repository.Order {
		return &repository.Order{
			ID:           newID(),
			CustomerName: sub.CustomerName,
			AssignedTo:   sub.AssignedTo,
			CarriedBy:    sub.CarriedBy,
			Status:       status,
			RequiredDate: sub.RequiredDate,
			Notes:        sub.Notes,
			CreatedBy:    actor,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	var plan Plan
	for _, rl := range sub.Lines {
		b := budgets[rl.ProductID]
		for i := 0; i < rl.Quantity; i++ {
			var target *repository.Order
			approval := repository.ApprovalNotRequired
			if b.verified > 0 {
				b.verified--
				if plan.Approved == nil {
					plan.Approved = header(repository.OrderApproved)
				}
				target = plan.Approved
			} else {
				b.processing--
				approval = repository.ApprovalPending
				if plan.Pending == nil {
					plan.Pending = header(repository.OrderPending)
				}
				target = plan.Pending
			}
			target.Lines = append(target.Lines, &repository.OrderLine{
				ID:               newID(),
				OrderID:          target.ID,
				ProductID:        rl.ProductID,
				ApprovalStatus:   approval,
				ProcessingStatus: repository.ProcessingWaiting,
				RequestedSetting: repository.StringPtr(rl.Setting),
				UpdatedAt:        now,
			})
		}
	}
	return plan, nil
}
