// Package persist keeps bucket writes flowing while the store is unreachable.
//
// Supervisor owns the store connection and reconnects in the background.
// Writer attempts each upsert once inline and hands failures to a bounded
// queue that retries them until they land.
package persist

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the exponential backoff used for reconnects and retries.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy matches the persist.* configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

// newBackOff never gives up on its own; callers stop it through the context.
func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
