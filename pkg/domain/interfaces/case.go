package interfaces

import (
	"context"

	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// CaseRepository defines the interface for Case data access
type CaseRepository interface {
	// Put saves a case (upsert)
	Put(ctx context.Context, c *model.Case) error

	// Get retrieves a case by account key and case ID.
	// Returns nil, nil if no case exists with the given keys.
	Get(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID) (*model.Case, error)
}
