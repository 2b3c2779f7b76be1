package types

// ApplyResult is the outcome of applying a proposed transition
type ApplyResult string

const (
	// ApplyResultApplied means the transition was durably recorded. The
	// case status may be unchanged when the observed status equals the
	// current one; such outcomes carry no user-visible side effect.
	ApplyResultApplied ApplyResult = "applied"

	// ApplyResultDuplicateIgnored means the dedup key was already present
	// and the transition was discarded without side effect.
	ApplyResultDuplicateIgnored ApplyResult = "duplicate_ignored"

	// ApplyResultRejectedInvalidEdge means the observed status is not
	// reachable from the current one. The observation is recorded for
	// audit but the case is not mutated.
	ApplyResultRejectedInvalidEdge ApplyResult = "rejected_invalid_edge"

	// ApplyResultNotFound means no live conversation tracks the case.
	ApplyResultNotFound ApplyResult = "not_found"
)

// String returns the string representation of the apply result
func (r ApplyResult) String() string {
	return string(r)
}
