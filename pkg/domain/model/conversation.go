package model

import (
	"time"

	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// Conversation is the chat-side counterpart of a case. At most one live
// (non-archived) conversation exists per (account key, case id) pair.
// Archived is terminal; an archived conversation is never revived.
type Conversation struct {
	ID         types.ConversationID
	AccountKey types.AccountKey
	CaseID     types.CaseID
	Creator    types.ParticipantID
	CreatedAt  time.Time

	// ResolvedAt is set when the case first reaches RESOLVED and cleared
	// when it reopens. The lifecycle scheduler derives its state machine
	// from this field alone.
	ResolvedAt *time.Time

	// Warned records that the pre-archive warning was already dispatched.
	// Cleared together with ResolvedAt on reopen.
	Warned   bool
	Archived bool

	// LastCommunicationAt tracks the latest communication event observed
	// for the case, used for display and inactivity review.
	LastCommunicationAt *time.Time
}

// Live reports whether the conversation still tracks its case
func (c *Conversation) Live() bool {
	return c != nil && !c.Archived
}

// ArchiveDue reports whether the grace period has fully elapsed at now
func (c *Conversation) ArchiveDue(now time.Time, gracePeriod time.Duration) bool {
	if c.ResolvedAt == nil {
		return false
	}
	return now.Sub(*c.ResolvedAt) >= gracePeriod
}

// WarnDue reports whether the pre-archive warning should fire at now
func (c *Conversation) WarnDue(now time.Time, gracePeriod, warningLeadTime time.Duration) bool {
	if c.ResolvedAt == nil || c.Warned {
		return false
	}
	return now.Sub(*c.ResolvedAt) >= gracePeriod-warningLeadTime
}
