package backend

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// ErrCredentialRejected is returned when the backend refuses the presented
// lease. The caller invalidates the broker cache entry and retries with a
// fresh credential on its next cycle.
var ErrCredentialRejected = goerr.New("backend rejected the credential")

// ErrCaseNotFound is returned when the backend has no case with the given ID
var ErrCaseNotFound = goerr.New("case not found on the backend")

// Service reads authoritative case state from the remote backend. The
// backend is the source of truth; observed statuses feed the registry
// through transitions, never by direct overwrite.
type Service interface {
	FetchStatus(ctx context.Context, lease *model.Lease, caseID types.CaseID) (types.CaseStatus, error)
}
