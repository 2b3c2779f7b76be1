package model

import (
	"time"

	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// Case mirrors the remote ticket tracked by one account. Cases are mutated
// only through accepted transitions and are never deleted.
type Case struct {
	AccountKey types.AccountKey
	ID         types.CaseID
	DisplayID  string
	Status     types.CaseStatus
	// StatusChangedAt is the observation time of the last applied status
	// change, not the remote backend's own mutation time.
	StatusChangedAt time.Time
	CreatedAt       time.Time
}
