package broker

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/service/exchange"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
	"golang.org/x/sync/singleflight"
)

// ErrExchangeFailed is returned when the identity exchange refuses or fails
// a renewal. Nothing is cached on failure, so the next call retries.
var ErrExchangeFailed = goerr.New("credential exchange failed")

// DefaultSafetyMargin is subtracted from a lease's expiry when judging
// whether it is still usable. It absorbs clock skew and the latency of the
// calls made under the lease.
const DefaultSafetyMargin = 5 * time.Minute

// Broker hands out credentials for backend accounts, renewing through the
// identity exchange only when the cached lease is missing or near expiry.
// Concurrent renewals of one account coalesce into a single exchange call.
type Broker struct {
	exchange exchange.Service
	accounts *model.AccountSet
	margin   time.Duration
	now      func() time.Time

	leases sync.Map // types.AccountKey -> *model.Lease
	flight singleflight.Group
}

// Option is a functional option for Broker configuration
type Option func(*Broker)

// WithSafetyMargin sets how long before expiry a lease stops being handed out
func WithSafetyMargin(d time.Duration) Option {
	return func(b *Broker) {
		b.margin = d
	}
}

// WithNow sets the clock used for lease validity checks
func WithNow(now func() time.Time) Option {
	return func(b *Broker) {
		b.now = now
	}
}

// New creates a Broker over the configured account set
func New(exchangeSvc exchange.Service, accounts *model.AccountSet, opts ...Option) *Broker {
	b := &Broker{
		exchange: exchangeSvc,
		accounts: accounts,
		margin:   DefaultSafetyMargin,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetCredential returns a usable lease for the account, renewing when the
// cached one is missing or inside the safety margin. Unknown keys fail with
// model.ErrAccountNotFound.
func (b *Broker) GetCredential(ctx context.Context, accountKey types.AccountKey) (*model.Lease, error) {
	account, err := b.accounts.Get(accountKey)
	if err != nil {
		return nil, err
	}

	if lease := b.cached(accountKey); lease != nil {
		return lease, nil
	}

	v, err, _ := b.flight.Do(string(accountKey), func() (interface{}, error) {
		// A renewal that completed while this call was queued has
		// already refreshed the cache.
		if lease := b.cached(accountKey); lease != nil {
			return lease, nil
		}

		lease, err := b.exchange.Exchange(ctx, account)
		if err != nil {
			return nil, goerr.Wrap(ErrExchangeFailed, "lease renewal failed",
				goerr.V("account_key", accountKey), goerr.V("cause", err))
		}

		b.leases.Store(accountKey, lease)
		logging.From(ctx).Debug("credential lease renewed",
			"account_key", accountKey, "expiry", lease.Expiry)
		return lease, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Lease), nil
}

// cached returns the stored lease while it is valid under the margin
func (b *Broker) cached(accountKey types.AccountKey) *model.Lease {
	v, ok := b.leases.Load(accountKey)
	if !ok {
		return nil
	}
	lease := v.(*model.Lease)
	if !lease.Valid(b.now(), b.margin) {
		return nil
	}
	return lease
}

// Invalidate drops the cached lease so the next GetCredential renews. Used
// when the backend rejects a credential before its expected expiry.
func (b *Broker) Invalidate(accountKey types.AccountKey) {
	b.leases.Delete(accountKey)
}
