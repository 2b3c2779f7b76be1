package types

import "fmt"

// EventKind represents the kind of a push-delivered case lifecycle event
type EventKind string

const (
	EventKindCommunicationAdded EventKind = "communication_added"
	EventKindCaseResolved       EventKind = "case_resolved"
	EventKindCaseReopened       EventKind = "case_reopened"
	EventKindCaseCreated        EventKind = "case_created"
)

// AllEventKinds returns all valid event kinds
func AllEventKinds() []EventKind {
	return []EventKind{
		EventKindCommunicationAdded,
		EventKindCaseResolved,
		EventKindCaseReopened,
		EventKindCaseCreated,
	}
}

// IsValid checks if the event kind is valid
func (k EventKind) IsValid() bool {
	switch k {
	case EventKindCommunicationAdded,
		EventKindCaseResolved,
		EventKindCaseReopened,
		EventKindCaseCreated:
		return true
	default:
		return false
	}
}

// String returns the string representation of the event kind
func (k EventKind) String() string {
	return string(k)
}

// ParseEventKind parses a string into an EventKind
func ParseEventKind(s string) (EventKind, error) {
	kind := EventKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid event kind: %s", s)
	}
	return kind, nil
}

// ObservedStatus maps an event kind to the case status it implies. The
// second return is false for kinds that carry no status transition
// (communication added, case created).
func (k EventKind) ObservedStatus() (CaseStatus, bool) {
	switch k {
	case EventKindCaseResolved:
		return CaseStatusResolved, true
	case EventKindCaseReopened:
		return CaseStatusReopened, true
	default:
		return "", false
	}
}
