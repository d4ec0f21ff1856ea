package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/enums"
)

// envelopeVersion changes only when PayloadEnvelope itself changes shape;
// per-event data is versioned through DomainEvent.Version.
const envelopeVersion = 1

type ActorRef struct {
	ActorID *uuid.UUID      `json:"actorId,omitempty"`
	Role    enums.ActorRole `json:"role,omitempty"`
}

// ActorOf records actor; the system actor has no id.
func ActorOf(actor auth.Actor) *ActorRef {
	return &ActorRef{ActorID: actor.IDPtr(), Role: actor.Role}
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and sent to
// the broker unchanged. EventID is what consumers deduplicate on.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(event DomainEvent) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	version := event.Version
	if version == 0 {
		version = envelopeVersion
	}
	return PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}, nil
}
