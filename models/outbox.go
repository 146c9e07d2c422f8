// models/outbox.go
package models

import "time"

const OutboxTable = "lsb_outbox"

// Outbox event types.
const (
	EventRequestSubmitted = "request.submitted"
	EventRequestApproved  = "request.approved"
	EventRequestRejected  = "request.rejected"
	EventRequestWithdrawn = "request.withdrawn"
	EventReturnSubmitted  = "return.submitted"
	EventReturnVerified   = "return.verified"
	EventReturnRejected   = "return.rejected"
	EventDamageReported   = "damage_reported"
)

// OutboxEvent is written in the same transaction as the transition it describes.
type OutboxEvent struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType     string     `gorm:"size:40;index;not null" json:"eventType"`
	AggregateID   string     `gorm:"type:uuid;index;not null" json:"aggregateId"`
	ActorID       string     `gorm:"size:36" json:"actorId"`
	RecipientID   string     `gorm:"size:36" json:"recipientId"`
	Payload       string     `gorm:"type:text;not null" json:"payload"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	LastError     string     `gorm:"type:text" json:"lastError,omitempty"`
	NextAttemptAt time.Time  `gorm:"index;not null" json:"nextAttemptAt"`
	DispatchedAt  *time.Time `gorm:"index" json:"dispatchedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (OutboxEvent) TableName() string { return OutboxTable }

// Ledger journal operations.
const (
	LedgerReserve = "reserve"
	LedgerRelease = "release"
	LedgerIssue   = "issue"
	LedgerReturn  = "return"
)

// LedgerEntry makes each ledger op idempotent per key: unique (request_id, op).
// RequestID is the idempotency key; BorrowRequestID is the request holding the stock.
type LedgerEntry struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID       string    `gorm:"type:uuid;not null;uniqueIndex:ux_ledger_request_op" json:"requestId"`
	Op              string    `gorm:"size:20;not null;uniqueIndex:ux_ledger_request_op" json:"op"`
	BorrowRequestID string    `gorm:"type:uuid;index;not null" json:"borrowRequestId"`
	ItemID          string    `gorm:"type:uuid;index;not null" json:"itemId"`
	Quantity        int       `gorm:"not null" json:"quantity"`
	Bucket          string    `gorm:"size:20" json:"bucket,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (LedgerEntry) TableName() string { return "lsb_ledger_entries" }

// EventPayload is the JSON body of an outbox event. Fields are set per event type.
type EventPayload struct {
	RequestID          string     `json:"requestId"`
	ReturnID           string     `json:"returnId,omitempty"`
	ItemID             string     `json:"itemId"`
	DepartmentID       string     `json:"departmentId,omitempty"`
	Quantity           int        `json:"quantity"`
	OldStatus          string     `json:"oldStatus,omitempty"`
	Status             string     `json:"status"`
	Reason             string     `json:"reason,omitempty"`
	PickupLocation     string     `json:"pickupLocation,omitempty"`
	CollectionDatetime *time.Time `json:"collectionDatetime,omitempty"`
	Conditions         string     `json:"conditions,omitempty"`
	DueDate            *time.Time `json:"dueDate,omitempty"`
	Condition          string     `json:"condition,omitempty"`
	Bucket             string     `json:"bucket,omitempty"`
	UnitIDs            []string   `json:"unitIds,omitempty"`
	Notes              string     `json:"notes,omitempty"`
}
