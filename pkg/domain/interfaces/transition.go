package interfaces

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// TransitionRepository defines the interface for Transition data access.
// Transition records are appended by ApplyTransition; this interface only
// reads and prunes them.
type TransitionRepository interface {
	// ListByCase retrieves transition records of one case, oldest first
	ListByCase(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID) ([]*model.Transition, error)

	// ListProcessedBefore retrieves up to limit records processed before
	// the cutoff, oldest first. Used by the retention sweep.
	ListProcessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.Transition, error)

	// Delete removes transition records by dedup key. Deleting an absent
	// key is not an error.
	Delete(ctx context.Context, keys []model.DedupKey) error
}

// TransitionRequest proposes one observed status for a tracked case
type TransitionRequest struct {
	AccountKey types.AccountKey
	CaseID     types.CaseID
	Observed   types.CaseStatus
	Source     types.TransitionSource
	DedupKey   model.DedupKey
	ObservedAt time.Time
}

// Validate checks if the TransitionRequest is valid
func (r *TransitionRequest) Validate() error {
	if err := r.AccountKey.Validate(); err != nil {
		return goerr.Wrap(err, "invalid transition account key")
	}
	if err := r.CaseID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid transition case ID")
	}
	if !r.Observed.IsValid() {
		return goerr.New("invalid observed status", goerr.V("status", r.Observed))
	}
	if !r.Source.IsValid() {
		return goerr.New("invalid transition source", goerr.V("source", r.Source))
	}
	if r.DedupKey == "" {
		return goerr.New("dedup key is required", goerr.V("case_id", r.CaseID))
	}
	if r.ObservedAt.IsZero() {
		return goerr.New("observation time is required", goerr.V("case_id", r.CaseID))
	}
	return nil
}

// TransitionOutcome reports how a proposed transition was settled. Before,
// After, Conversation, and Record are populated only for applied and
// rejected outcomes; duplicate and not-found outcomes carry the result
// alone.
type TransitionOutcome struct {
	Result        types.ApplyResult
	Before        types.CaseStatus
	After         types.CaseStatus
	StatusChanged bool
	Conversation  *model.Conversation
	Record        *model.Transition
}
