package types

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// AccountKey identifies a credential scope (one backend tenant)
type AccountKey string

var accountKeyPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Validate checks if the AccountKey is valid
func (k AccountKey) Validate() error {
	if k == "" {
		return goerr.New("account key cannot be empty")
	}
	if !accountKeyPattern.MatchString(string(k)) {
		return goerr.New("account key must be lowercase alphanumeric with hyphens", goerr.V("key", k))
	}
	return nil
}

// String returns the string representation of AccountKey
func (k AccountKey) String() string {
	return string(k)
}

// CaseID is the opaque identifier of a remote case, unique within its account
type CaseID string

// Validate checks if the CaseID is valid
func (c CaseID) Validate() error {
	if c == "" {
		return goerr.New("case ID cannot be empty")
	}
	return nil
}

// String returns the string representation of CaseID
func (c CaseID) String() string {
	return string(c)
}

// ConversationID is the opaque identifier of a chat conversation
type ConversationID string

// Validate checks if the ConversationID is valid
func (c ConversationID) Validate() error {
	if c == "" {
		return goerr.New("conversation ID cannot be empty")
	}
	return nil
}

// String returns the string representation of ConversationID
func (c ConversationID) String() string {
	return string(c)
}

// ParticipantID identifies a chat participant
type ParticipantID string

// String returns the string representation of ParticipantID
func (p ParticipantID) String() string {
	return string(p)
}
