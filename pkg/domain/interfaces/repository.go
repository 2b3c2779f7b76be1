package interfaces

import (
	"context"

	"github.com/secmon-lab/orthrus/pkg/domain/model"
)

// Repository defines the interface for data persistence
type Repository interface {
	Conversation() ConversationRepository
	Case() CaseRepository
	Transition() TransitionRepository

	// CreateMapping stores a case and its conversation as one atomic unit.
	// It returns false without writing when a live conversation already
	// tracks the case. An existing case record is kept as-is; only a
	// missing one is created.
	CreateMapping(ctx context.Context, c *model.Case, conv *model.Conversation) (bool, error)

	// ApplyTransition settles one proposed transition. The dedup check,
	// current-status read, edge validation, and writes form a single
	// atomic unit per (account key, case id); unrelated cases never
	// contend. The outcome is always one of applied, duplicate_ignored,
	// rejected_invalid_edge, or not_found. Applied and rejected outcomes
	// append a transition record; duplicates and unmapped cases write
	// nothing.
	ApplyTransition(ctx context.Context, req *TransitionRequest) (*TransitionOutcome, error)

	// Close releases underlying connections
	Close() error
}
