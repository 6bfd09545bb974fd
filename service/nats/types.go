package nats

import (
	"time"

	"github.com/brojonat/mintledger/service/ledger"
)

// EventMessage is the payload published for each applied event.
type EventMessage struct {
	ledger.Event
	PublishedAt time.Time `json:"published_at"`
}

// NewEventMessage stamps event with the publish time.
func NewEventMessage(event ledger.Event) EventMessage {
	return EventMessage{
		Event:       event,
		PublishedAt: time.Now().UTC(),
	}
}
