package slack

import (
	"context"
	"time"

	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
)

// Service dispatches engine actions into the chat transport. Every dispatch
// carries a stable identity in its message metadata, so a transport-level
// retry re-sends identical content instead of producing a second
// notification.
type Service interface {
	// NotifyTransition posts a status-change line for an applied
	// transition to the conversation channel. The transition record ID is
	// the dispatch identity.
	NotifyTransition(ctx context.Context, outcome *interfaces.TransitionOutcome) error

	// NotifyCommunication relays a backend-side communication into the
	// conversation channel.
	NotifyCommunication(ctx context.Context, conv *model.Conversation, body string, eventTime time.Time) error

	// Warn posts the pre-archive notice with the scheduled archive time.
	Warn(ctx context.Context, conv *model.Conversation, archiveAt time.Time) error

	// Archive posts the closing notice and archives the channel. Archiving
	// an already-archived channel is not an error.
	Archive(ctx context.Context, conv *model.Conversation) error
}
