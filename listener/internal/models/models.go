// Package models holds the listener's domain types.
package models

import (
	"math"
	"time"

	"github.com/khushi89012/syook/common/codec"
)

// Reading is a record that passed validation, stamped with the arrival time
// of the batch it came in.
type Reading struct {
	Name        string    `json:"name"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewReading stamps r with receivedAt.
func NewReading(r codec.Record, receivedAt time.Time) Reading {
	return Reading{
		Name:        r.Name,
		Origin:      r.Origin,
		Destination: r.Destination,
		Timestamp:   receivedAt,
	}
}

// MinuteBucket is the unit of persistence: all readings received in one minute.
type MinuteBucket struct {
	Minute    time.Time `json:"minute"`
	Records   []Reading `json:"records"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Stats are the process-wide running totals.
type Stats struct {
	TotalReceived int64   `json:"totalReceived"`
	TotalValid    int64   `json:"totalValid"`
	SuccessRate   float64 `json:"successRate"`
}

// NewStats computes the success rate as a percentage rounded to two decimals.
func NewStats(received, valid int64) Stats {
	s := Stats{TotalReceived: received, TotalValid: valid}
	if received > 0 {
		s.SuccessRate = math.Round(float64(valid)/float64(received)*10000) / 100
	}
	return s
}

// Outcome summarizes one processed batch.
type Outcome struct {
	ReceivedAt time.Time
	Total      int
	Valid      int
	Buckets    int
	// PersistFailures counts buckets handed to the retry queue.
	PersistFailures int
}
