// Package database holds the timeouts applied to every store round trip.
package database

import (
	"context"
	"time"
)

const (
	// QueryTimeout bounds bucket lookups.
	QueryTimeout = 5 * time.Second

	// WriteTimeout bounds a single bucket upsert.
	WriteTimeout = 10 * time.Second

	// ConnectTimeout bounds one connection attempt, ping included.
	ConnectTimeout = 5 * time.Second

	// MigrateTimeout bounds schema migration at startup.
	MigrateTimeout = 30 * time.Second
)

func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, QueryTimeout)
}

func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, WriteTimeout)
}

func ConnectContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ConnectTimeout)
}

func MigrateContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, MigrateTimeout)
}
