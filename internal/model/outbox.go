package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Billing event types published through the outbox.
const (
	EventBillCreated    = "billing.created"
	EventChargesUpdated = "billing.charges_updated"
	EventFeeUpdated     = "billing.fee_updated"
	EventBillFinalized  = "billing.finalized"
)

// OutboxEvent is a billing event persisted alongside the bill mutation
// that produced it, published asynchronously by the worker.
type OutboxEvent struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	EventType   string          `db:"event_type" json:"event_type"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      OutboxStatus    `db:"status" json:"status"`
	Error       *string         `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}
