package models

import (
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// DeviationEventRecord is the transactional outbox row for deviation
// lifecycle events. It is written inside the same DB transaction as the
// deviation change; the dispatcher publishes to Pub/Sub after commit. The
// notification service (mail/Teams escalations) subscribes on the other side.
type DeviationEventRecord struct {
	ID          int                `gorm:"primary_key;index:idx_event_dispatch,priority:3" json:"id"`
	BusinessId  string             `gorm:"size:64;not null;index" json:"business_id"`
	DeviationId int                `gorm:"not null;index" json:"deviation_id"`
	EventType   DeviationEventType `gorm:"size:40;not null" json:"event_type"`
	OccurredAt  time.Time          `gorm:"not null" json:"occurred_at"`
	Payload     []byte             `gorm:"type:blob" json:"payload"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_event_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_event_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DeviationEvent is the engine-level event shape before it is written to the
// outbox (the in-memory repository just collects these).
type DeviationEvent struct {
	EventType   DeviationEventType
	DeviationId int
	BusinessId  string
	OccurredAt  time.Time
	Payload     any
}

func (e DeviationEvent) ToRecord(correlationId string) (DeviationEventRecord, error) {
	var payload []byte
	if e.Payload != nil {
		var err error
		payload, err = json.Marshal(e.Payload)
		if err != nil {
			return DeviationEventRecord{}, err
		}
	}
	return DeviationEventRecord{
		BusinessId:    e.BusinessId,
		DeviationId:   e.DeviationId,
		EventType:     e.EventType,
		OccurredAt:    e.OccurredAt,
		Payload:       payload,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}, nil
}

func ConvertToPubSubMessage(record DeviationEventRecord) config.PubSubMessage {
	return config.PubSubMessage{
		ID:            record.ID,
		BusinessId:    record.BusinessId,
		OccurredAt:    record.OccurredAt,
		DeviationId:   record.DeviationId,
		EventType:     string(record.EventType),
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}
