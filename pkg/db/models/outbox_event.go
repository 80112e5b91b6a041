package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/enums"
)

// OutboxEvent is staged in the transaction that changes the order and
// relayed to Kafka after commit. PublishedAt stays nil until delivery.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"type:text;not null"`
	AggregateID   uuid.UUID                 `gorm:"type:uuid;not null;index"`
	Payload       json.RawMessage           `gorm:"type:jsonb;not null"`
	AttemptCount  int                       `gorm:"not null;default:0"`
	LastError     *string                   `gorm:"type:text"`
	CreatedAt     time.Time                 `gorm:"autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"index"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }
