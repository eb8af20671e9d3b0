package repository

import (
	"errors"
	"time"
)

var (
	ErrObjectNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write matched no row or
	// collided with another active binding.
	ErrConflict = errors.New("conditional write conflict")
)

type UnitStatus string

const (
	UnitAvailable        UnitStatus = "available"
	UnitReserved         UnitStatus = "reserved"
	UnitReadyForDelivery UnitStatus = "ready_for_delivery"
	UnitRented           UnitStatus = "rented"
	UnitReturned         UnitStatus = "returned"
	UnitCleaning         UnitStatus = "cleaning"
	UnitMaintenance      UnitStatus = "maintenance"
	UnitDemoCancelled    UnitStatus = "demo_cancelled"
	UnitOutOfOrder       UnitStatus = "out_of_order"
	UnitUnknown          UnitStatus = "unknown"
)

type Condition string

const (
	ConditionGood        Condition = "good"
	ConditionFair        Condition = "fair"
	ConditionCaution     Condition = "caution"
	ConditionNeedsRepair Condition = "needs_repair"
	ConditionUnknown     Condition = "unknown"
)

type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderPartialApproved OrderStatus = "partial_approved"
	OrderApproved        OrderStatus = "approved"
	OrderReady           OrderStatus = "ready"
	OrderDelivered       OrderStatus = "delivered"
	OrderCancelled       OrderStatus = "cancelled"
)

type ApprovalStatus string

const (
	ApprovalNotRequired ApprovalStatus = "not_required"
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalRejected    ApprovalStatus = "rejected"
)

type ProcessingStatus string

const (
	ProcessingWaiting   ProcessingStatus = "waiting"
	ProcessingAssigned  ProcessingStatus = "assigned"
	ProcessingReady     ProcessingStatus = "ready"
	ProcessingDelivered ProcessingStatus = "delivered"
	ProcessingCancelled ProcessingStatus = "cancelled"
)

type Product struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	CategoryID      string    `db:"category_id" json:"category_id"`
	RequiresSetting bool      `db:"requires_setting" json:"requires_setting"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Unit is one individually tracked instance of a Product. Json tags follow
// the column names so change-stream rows decode straight into it.
type Unit struct {
	ID             string     `db:"id" json:"id"`
	ProductID      string     `db:"product_id" json:"product_id"`
	Status         UnitStatus `db:"status" json:"status"`
	Condition      Condition  `db:"condition" json:"condition"`
	Location       string     `db:"location" json:"location"`
	CustomerName   *string    `db:"customer_name" json:"customer_name"`
	LoanStartDate  *time.Time `db:"loan_start_date" json:"loan_start_date"`
	CurrentSetting *string    `db:"current_setting" json:"current_setting"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

type Order struct {
	ID           string      `db:"id" json:"id"`
	CustomerName string      `db:"customer_name" json:"customer_name"`
	AssignedTo   string      `db:"assigned_to" json:"assigned_to"`
	CarriedBy    string      `db:"carried_by" json:"carried_by"`
	Status       OrderStatus `db:"status" json:"status"`
	RequiredDate time.Time   `db:"required_date" json:"required_date"`
	Notes        string      `db:"notes" json:"notes"`
	CreatedBy    string      `db:"created_by" json:"created_by"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`

	Lines []*OrderLine `db:"-" json:"lines"`
}

// OrderLine is one unit of demand; quantity is always 1.
type OrderLine struct {
	ID               string           `db:"id" json:"id"`
	OrderID          string           `db:"order_id" json:"order_id"`
	ProductID        string           `db:"product_id" json:"product_id"`
	ApprovalStatus   ApprovalStatus   `db:"approval_status" json:"approval_status"`
	ProcessingStatus ProcessingStatus `db:"item_processing_status" json:"item_processing_status"`
	AssignedUnitID   *string          `db:"assigned_unit_id" json:"assigned_unit_id"`
	RequestedSetting *string          `db:"requested_setting" json:"requested_setting"`
	ApprovedBy       *string          `db:"approved_by" json:"approved_by"`
	ApprovalNotes    *string          `db:"approval_notes" json:"approval_notes"`
	CancelledBy      *string          `db:"cancelled_by" json:"cancelled_by"`
	CancelledReason  *string          `db:"cancelled_reason" json:"cancelled_reason"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// AssignedUnit returns the bound unit id or "" when the line is unbound.
func (l *OrderLine) AssignedUnit() string {
	if l == nil || l.AssignedUnitID == nil {
		return ""
	}
	return *l.AssignedUnitID
}

// Active reports whether the line still counts as demand.
func (l *OrderLine) Active() bool {
	return l.ProcessingStatus != ProcessingCancelled && l.ApprovalStatus != ApprovalRejected
}

func (l *OrderLine) Clone() *OrderLine {
	if l == nil {
		return nil
	}
	c := *l
	c.AssignedUnitID = cloneString(l.AssignedUnitID)
	c.RequestedSetting = cloneString(l.RequestedSetting)
	c.ApprovedBy = cloneString(l.ApprovedBy)
	c.ApprovalNotes = cloneString(l.ApprovalNotes)
	c.CancelledBy = cloneString(l.CancelledBy)
	c.CancelledReason = cloneString(l.CancelledReason)
	return &c
}

// Clone deep-copies the order and its lines.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.Lines != nil {
		c.Lines = make([]*OrderLine, len(o.Lines))
		for i, l := range o.Lines {
			c.Lines[i] = l.Clone()
		}
	}
	return &c
}

// Line finds a line of the order by id.
func (o *Order) Line(id string) *OrderLine {
	for _, l := range o.Lines {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (u *Unit) Clone() *Unit {
	if u == nil {
		return nil
	}
	c := *u
	c.CustomerName = cloneString(u.CustomerName)
	c.CurrentSetting = cloneString(u.CurrentSetting)
	if u.LoanStartDate != nil {
		t := *u.LoanStartDate
		c.LoanStartDate = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
