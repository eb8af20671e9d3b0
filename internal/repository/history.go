package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type HistoryAction string

const (
	ActionAssigned     HistoryAction = "assigned"
	ActionReady        HistoryAction = "ready"
	ActionDelivered    HistoryAction = "delivered"
	ActionRestored     HistoryAction = "restored"
	ActionStatusChange HistoryAction = "status_change"
)

type AssignmentMethod string

const (
	AssignDirect  AssignmentMethod = "direct"
	AssignReserve AssignmentMethod = "reserve"
)

// ItemHistory is an append-only audit record of one unit status transition.
type ItemHistory struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	UnitID     string        `db:"unit_id" json:"unit_id"`
	Action     HistoryAction `db:"action" json:"action"`
	FromStatus UnitStatus    `db:"from_status" json:"from_status"`
	ToStatus   UnitStatus    `db:"to_status" json:"to_status"`
	Actor      string        `db:"performed_by" json:"performed_by"`
	Timestamp  time.Time     `db:"created_at" json:"timestamp"`
	Meta       HistoryMeta   `db:"metadata" json:"metadata"`
}

// HistoryMeta holds at most one of the known variants plus free-form extras.
// Rollback reads Assignment.PreviousStatus and Assignment.PreviousLocation.
type HistoryMeta struct {
	Assignment *AssignmentMeta   `json:"assignment,omitempty"`
	Restore    *RestoreMeta      `json:"restore,omitempty"`
	Delivery   *DeliveryMeta     `json:"delivery,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

type AssignmentMeta struct {
	OrderID          string           `json:"order_id"`
	OrderLineID      string           `json:"order_line_id"`
	Method           AssignmentMethod `json:"method"`
	PreviousStatus   UnitStatus       `json:"previous_status"`
	PreviousLocation string           `json:"previous_location"`
	PreviousCustomer *string          `json:"previous_customer,omitempty"`
}

type RestoreMeta struct {
	OrderID      string     `json:"order_id"`
	OrderLineID  string     `json:"order_line_id"`
	RestoredFrom UnitStatus `json:"restored_from"`
	RestoredTo   UnitStatus `json:"restored_to"`
	Location     string     `json:"location"`
	Reason       string     `json:"reason,omitempty"`
}

type DeliveryMeta struct {
	OrderID      string    `json:"order_id"`
	OrderLineID  string    `json:"order_line_id"`
	CustomerName string    `json:"customer_name"`
	LoanStart    time.Time `json:"loan_start"`
}

// Scan implements sql.Scanner for the jsonb metadata column.
func (m *HistoryMeta) Scan(value interface{}) error {
	if value == nil {
		*m = HistoryMeta{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan HistoryMeta: %T", value)
	}
	return json.Unmarshal(raw, m)
}

// Value implements driver.Valuer.
func (m HistoryMeta) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
