package model

import (
	"time"

	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// Lease is a cached, time-bounded credential for one account. Leases live
// only in the broker's memory and are recreated on expiry.
type Lease struct {
	AccountKey types.AccountKey
	Token      string `masq:"secret"`
	Expiry     time.Time
}

// Valid reports whether the lease is still usable at now. The safety
// margin absorbs clock skew and in-flight call latency.
func (l *Lease) Valid(now time.Time, margin time.Duration) bool {
	if l == nil {
		return false
	}
	return now.Before(l.Expiry.Add(-margin))
}
