package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
)

// FamilyChangedMessage announces a committed family mutation. It carries ids
// only; consumers read the current state from the store.
type FamilyChangedMessage struct {
	Event        string    `json:"event"`
	FamilyIDs    []string  `json:"familyIds"`
	ActorID      string    `json:"actorId,omitempty"`
	InvitationID string    `json:"invitationId,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewFamilyChangedMessage(change core.FamilyChange) *FamilyChangedMessage {
	occurred := change.At
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return &FamilyChangedMessage{
		Event:        change.Event,
		FamilyIDs:    append([]string(nil), change.FamilyIDs...),
		ActorID:      change.ActorID,
		InvitationID: change.InvitationID,
		OccurredAt:   occurred,
		Timestamp:    time.Now().UTC(),
	}
}

// Change converts the message back into the domain event.
func (m *FamilyChangedMessage) Change() core.FamilyChange {
	return core.FamilyChange{
		Event:        m.Event,
		FamilyIDs:    append([]string(nil), m.FamilyIDs...),
		ActorID:      m.ActorID,
		InvitationID: m.InvitationID,
		At:           m.OccurredAt,
	}
}

func (m *FamilyChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func FamilyChangedMessageFromJSON(data []byte) (*FamilyChangedMessage, error) {
	var msg FamilyChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event == "" {
		return nil, errors.New("family changed message without event")
	}
	return &msg, nil
}
