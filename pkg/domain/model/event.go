package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// OriginChatBridge marks communications this system relayed into the
// backend itself. Events carrying it are suppressed on ingest so relayed
// messages do not echo back into the chat.
const OriginChatBridge = "chat-bridge"

// CaseEvent is one push-delivered lifecycle event. Delivery is
// at-least-once with no ordering guarantee.
type CaseEvent struct {
	AccountKey types.AccountKey `json:"account_key"`
	CaseID     types.CaseID     `json:"case_id"`
	Kind       types.EventKind  `json:"event_kind"`
	EventTime  time.Time        `json:"event_time"`
	DisplayID  string           `json:"display_id,omitempty"`

	// CommunicationBody carries the message text for communication_added
	// events. Other kinds leave it empty.
	CommunicationBody string `json:"communication_body,omitempty"`

	// Origin identifies the author side of a communication event.
	Origin string `json:"origin,omitempty"`
}

// Validate checks if the CaseEvent is valid
func (e *CaseEvent) Validate() error {
	if err := e.AccountKey.Validate(); err != nil {
		return goerr.Wrap(err, "invalid event account key")
	}
	if err := e.CaseID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid event case ID")
	}
	if !e.Kind.IsValid() {
		return goerr.New("invalid event kind", goerr.V("kind", e.Kind))
	}
	if e.EventTime.IsZero() {
		return goerr.New("event time is required",
			goerr.V("case_id", e.CaseID), goerr.V("kind", e.Kind))
	}
	return nil
}

// Echo reports whether the event is a bounce of a communication this
// system relayed itself.
func (e *CaseEvent) Echo() bool {
	return e.Kind == types.EventKindCommunicationAdded && e.Origin == OriginChatBridge
}
