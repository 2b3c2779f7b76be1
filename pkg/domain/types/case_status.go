package types

import "fmt"

// CaseStatus represents the canonical status of a remote case
type CaseStatus string

const (
	CaseStatusOpen     CaseStatus = "OPEN"
	CaseStatusPending  CaseStatus = "PENDING"
	CaseStatusResolved CaseStatus = "RESOLVED"
	CaseStatusReopened CaseStatus = "REOPENED"
)

// AllCaseStatuses returns all valid case statuses
func AllCaseStatuses() []CaseStatus {
	return []CaseStatus{
		CaseStatusOpen,
		CaseStatusPending,
		CaseStatusResolved,
		CaseStatusReopened,
	}
}

// IsValid checks if the case status is valid
func (s CaseStatus) IsValid() bool {
	switch s {
	case CaseStatusOpen,
		CaseStatusPending,
		CaseStatusResolved,
		CaseStatusReopened:
		return true
	default:
		return false
	}
}

// String returns the string representation of the case status
func (s CaseStatus) String() string {
	return string(s)
}

// ParseCaseStatus parses a string into a CaseStatus
func ParseCaseStatus(s string) (CaseStatus, error) {
	status := CaseStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid case status: %s", s)
	}
	return status, nil
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
// Status moves forward through OPEN, PENDING, RESOLVED; REOPENED follows
// only RESOLVED and restarts the cycle. Skipping forward is legal because
// the upstream does not surface every intermediate status, and PENDING
// returns to OPEN when the customer replies. RESOLVED is sticky: only an
// explicit REOPENED unlatches it. Same-status moves are not edges; callers
// treat them as a separate no-op.
func (s CaseStatus) CanTransitionTo(next CaseStatus) bool {
	switch s {
	case CaseStatusOpen:
		return next == CaseStatusPending || next == CaseStatusResolved
	case CaseStatusPending:
		return next == CaseStatusOpen || next == CaseStatusResolved
	case CaseStatusResolved:
		return next == CaseStatusReopened
	case CaseStatusReopened:
		return next == CaseStatusOpen || next == CaseStatusPending || next == CaseStatusResolved
	default:
		return false
	}
}

// NormalizeCaseStatus collapses a backend-specific raw status into the
// canonical set. A completed customer action returns the case to OPEN;
// REOPENED is reserved for the explicit post-resolution reopen. Unknown raw
// values return an error so callers never apply a status outside the
// canonical vocabulary.
func NormalizeCaseStatus(raw string) (CaseStatus, error) {
	switch raw {
	case "opened", "unassigned", "work-in-progress", "customer-action-completed":
		return CaseStatusOpen, nil
	case "pending-customer-action":
		return CaseStatusPending, nil
	case "resolved":
		return CaseStatusResolved, nil
	case "reopened":
		return CaseStatusReopened, nil
	default:
		// Already-canonical values pass through.
		if status := CaseStatus(raw); status.IsValid() {
			return status, nil
		}
		return "", fmt.Errorf("unknown backend case status: %s", raw)
	}
}
