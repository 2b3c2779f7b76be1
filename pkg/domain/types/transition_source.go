package types

import "fmt"

// TransitionSource identifies which ingestion path observed a transition
type TransitionSource string

const (
	TransitionSourcePush TransitionSource = "PUSH"
	TransitionSourcePoll TransitionSource = "POLL"
)

// IsValid checks if the transition source is valid
func (s TransitionSource) IsValid() bool {
	switch s {
	case TransitionSourcePush, TransitionSourcePoll:
		return true
	default:
		return false
	}
}

// String returns the string representation of the transition source
func (s TransitionSource) String() string {
	return string(s)
}

// ParseTransitionSource parses a string into a TransitionSource
func ParseTransitionSource(s string) (TransitionSource, error) {
	src := TransitionSource(s)
	if !src.IsValid() {
		return "", fmt.Errorf("invalid transition source: %s", s)
	}
	return src, nil
}
