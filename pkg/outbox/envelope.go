package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is stamped on events that do not pick a payload version.
const CurrentVersion = 1

// ActorRef identifies the shopper behind an event. Guest checkouts carry only
// an email.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Email  string     `json:"email,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and checks it carries an event id.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode outbox envelope: %w", err)
	}
	if env.EventID == "" {
		return PayloadEnvelope{}, errors.New("outbox envelope missing event id")
	}
	return env, nil
}
