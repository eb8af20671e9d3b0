package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusDone       TaskStatus = "DONE"
)

type OutboxTask struct {
	ID          uuid.UUID       `db:"id"`
	Status      TaskStatus      `db:"status"`
	Payload     json.RawMessage `db:"payload"`
	Topic       string          `db:"topic"`
	Key         string          `db:"msg_key"`
	Attempts    int             `db:"attempts"`
	LastError   *string         `db:"last_error"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at"`
}

// HistoryEvent is the audit sink message published for every ItemHistory row.
type HistoryEvent struct {
	HistoryID  uuid.UUID     `json:"history_id"`
	UnitID     string        `json:"unit_id"`
	Action     HistoryAction `json:"action"`
	FromStatus UnitStatus    `json:"from_status"`
	ToStatus   UnitStatus    `json:"to_status"`
	Actor      string        `json:"actor"`
	Timestamp  string        `json:"timestamp"`
	Metadata   HistoryMeta   `json:"metadata"`
}

// NewHistoryEvent renders the entry with an ISO-8601 timestamp.
func NewHistoryEvent(h *ItemHistory) HistoryEvent {
	return HistoryEvent{
		HistoryID:  h.ID,
		UnitID:     h.UnitID,
		Action:     h.Action,
		FromStatus: h.FromStatus,
		ToStatus:   h.ToStatus,
		Actor:      h.Actor,
		Timestamp:  h.Timestamp.UTC().Format(time.RFC3339Nano),
		Metadata:   h.Meta,
	}
}
