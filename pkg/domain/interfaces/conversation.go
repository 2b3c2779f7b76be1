package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// ConversationRepository defines the interface for Conversation data access
type ConversationRepository interface {
	// Put saves a conversation (upsert)
	Put(ctx context.Context, conv *model.Conversation) error

	// Get retrieves a conversation by ID.
	// Returns nil, nil if no conversation exists with the given ID.
	Get(ctx context.Context, id types.ConversationID) (*model.Conversation, error)

	// GetLiveByCase retrieves the non-archived conversation tracking the
	// given case. Returns nil, nil when the case was never mapped or its
	// conversation is already archived.
	GetLiveByCase(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID) (*model.Conversation, error)

	// ListByParticipant retrieves conversations created by the given
	// participant, newest first.
	ListByParticipant(ctx context.Context, participant types.ParticipantID) ([]*model.Conversation, error)

	// ListLiveByAccount retrieves non-archived conversations of one
	// account a page at a time. cursor is the opaque position returned by
	// the previous page; empty for the first page. Returns the next
	// cursor, empty when exhausted.
	ListLiveByAccount(ctx context.Context, accountKey types.AccountKey, limit int, cursor string) ([]*model.Conversation, string, error)

	// ListResolvedUnarchived retrieves conversations with a non-null
	// resolved time that are not yet archived, across all accounts.
	ListResolvedUnarchived(ctx context.Context) ([]*model.Conversation, error)

	// UpdateLastCommunication stamps the latest communication time. Only
	// that field is written, so it never clobbers a concurrent transition.
	// Stamping an absent conversation is a no-op.
	UpdateLastCommunication(ctx context.Context, id types.ConversationID, at time.Time) error

	// MarkWarned records that the pre-archive warning was dispatched.
	// Marking an absent conversation is a no-op.
	MarkWarned(ctx context.Context, id types.ConversationID) error

	// MarkArchived sets the terminal archived flag.
	// Marking an absent conversation is a no-op.
	MarkArchived(ctx context.Context, id types.ConversationID) error
}
