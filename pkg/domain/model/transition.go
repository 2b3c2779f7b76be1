package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// TransitionID is a UUID-based identifier for Transition
type TransitionID string

// NewTransitionID generates a new UUID v4 TransitionID
func NewTransitionID() TransitionID {
	return TransitionID(uuid.New().String())
}

// DedupKey collapses duplicate deliveries of the same logical observation.
// The upstream supplies no sequence numbers, so the key is derived from the
// case, the observed status, and a coarse time bucket.
type DedupKey string

// String returns the string representation of DedupKey
func (k DedupKey) String() string {
	return string(k)
}

// NewDedupKey derives the dedup key for one observation. Observations of
// the same (case, status) pair within one window share a key and are
// applied at most once.
func NewDedupKey(caseID types.CaseID, status types.CaseStatus, eventTime time.Time, window time.Duration) DedupKey {
	bucket := eventTime.Unix() / int64(window.Seconds())
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", caseID, status, bucket))
	return DedupKey(hex.EncodeToString(sum[:])[:32])
}

// Transition is an appended, never-mutated record of one observed status
// change. Records with Applied=false are the audit trail of rejected edges.
type Transition struct {
	ID          TransitionID
	DedupKey    DedupKey
	AccountKey  types.AccountKey
	CaseID      types.CaseID
	From        types.CaseStatus
	To          types.CaseStatus
	Source      types.TransitionSource
	Applied     bool
	ProcessedAt time.Time
}

// TransitionDecision is the outcome of evaluating one observation against
// the current case state. Updated entities are copies; the caller persists
// them inside its own atomic unit.
type TransitionDecision struct {
	Result        types.ApplyResult
	StatusChanged bool
	Record        *Transition
	Case          *Case
	Conversation  *Conversation
}

// EvaluateTransition decides how an observed status applies to the current
// case and conversation. It is pure: dedup-key existence and conversation
// lookup are the storage layer's concern, and both inputs must belong to a
// live conversation. Same-status observations are accepted as a no-op so
// racing push and poll observations of one change never reject each other.
func EvaluateTransition(c *Case, conv *Conversation, observed types.CaseStatus, source types.TransitionSource, dedupKey DedupKey, observedAt, now time.Time) *TransitionDecision {
	record := &Transition{
		ID:          NewTransitionID(),
		DedupKey:    dedupKey,
		AccountKey:  c.AccountKey,
		CaseID:      c.ID,
		From:        c.Status,
		To:          observed,
		Source:      source,
		ProcessedAt: now,
	}

	if observed == c.Status {
		record.Applied = true
		return &TransitionDecision{
			Result: types.ApplyResultApplied,
			Record: record,
		}
	}

	if !c.Status.CanTransitionTo(observed) {
		return &TransitionDecision{
			Result: types.ApplyResultRejectedInvalidEdge,
			Record: record,
		}
	}

	record.Applied = true

	updated := *c
	updated.Status = observed
	updated.StatusChangedAt = now

	updatedConv := *conv
	switch observed {
	case types.CaseStatusResolved:
		resolvedAt := observedAt
		updatedConv.ResolvedAt = &resolvedAt
	case types.CaseStatusReopened:
		updatedConv.ResolvedAt = nil
		updatedConv.Warned = false
	}

	return &TransitionDecision{
		Result:        types.ApplyResultApplied,
		StatusChanged: true,
		Record:        record,
		Case:          &updated,
		Conversation:  &updatedConv,
	}
}
