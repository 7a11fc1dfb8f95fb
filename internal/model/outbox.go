package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// OutboxEvent is a durable side-effect row written in the same logical
// step as the state transition that produced it, then drained by the
// worker for at-least-once delivery.
type OutboxEvent struct {
	ID           string            `json:"id" bson:"_id"`
	EventType    string            `json:"event_type" bson:"event_type"`
	Payload      json.RawMessage   `json:"payload" bson:"payload"`
	Headers      map[string]string `json:"headers,omitempty" bson:"headers,omitempty"`
	Status       OutboxStatus      `json:"status" bson:"status"`
	ErrorMessage string            `json:"error_message,omitempty" bson:"error_message,omitempty"`
	RetryCount   int               `json:"retry_count" bson:"retry_count"`
	RetryAt      *time.Time        `json:"retry_at,omitempty" bson:"retry_at,omitempty"`
	LockedBy     string            `json:"locked_by,omitempty" bson:"locked_by,omitempty"`
	LockedAt     *time.Time        `json:"locked_at,omitempty" bson:"locked_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at" bson:"created_at"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at" bson:"updated_at"`
}

func NewOutboxEvent(eventType string, payload interface{}) (*OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &OutboxEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		Payload:   raw,
		Status:    OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
