package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Not found errors
	ErrConversationNotFound = errors.New("conversation not found")
	ErrCaseNotFound         = errors.New("case not found")

	// Invariant errors
	ErrMappingExists = errors.New("a live conversation already tracks this case")
)

// Context keys for error values
const (
	AccountKeyKey     = "account_key"
	CaseIDKey         = "case_id"
	ConversationIDKey = "conversation_id"
)
