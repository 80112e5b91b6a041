package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/identitywear/storefront-backend/pkg/db/models"
	"github.com/identitywear/storefront-backend/pkg/enums"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

// ErrNoTransaction is returned when Emit is called outside a transaction.
var ErrNoTransaction = errors.New("outbox emit requires a transaction")

// DomainEvent is what domain services hand to Emit. Data is marshalled into
// the envelope's data field.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit stages event in tx. The relay only sees it after the caller commits,
// and a rollback discards it together with the domain change.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return ErrNoTransaction
	}
	row, env, err := s.seal(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("stage %s: %w", event.EventType, err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event_id":       env.EventID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
	}), "outbox event staged")
	return nil
}

// seal wraps the event data in a versioned envelope and builds the row.
func (s *Service) seal(event DomainEvent) (models.OutboxEvent, PayloadEnvelope, error) {
	if !event.EventType.IsValid() {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("unknown outbox event type %q", event.EventType)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}

	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = CurrentVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = s.now().UTC()
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, err
	}
	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, env, nil
}
