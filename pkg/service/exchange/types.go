package exchange

import (
	"context"

	"github.com/secmon-lab/orthrus/pkg/domain/model"
)

// Service obtains a time-bounded credential for one backend account.
// Implementations talk to the identity provider's token endpoint; callers
// go through the credential broker, which caches the returned leases.
type Service interface {
	Exchange(ctx context.Context, account *model.Account) (*model.Lease, error)
}
