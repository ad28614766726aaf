// Package builder produces simulated traffic: batches of sealed, encrypted
// records in the listener's wire format.
package builder

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/khushi89012/syook/common/codec"
	"github.com/khushi89012/syook/common/framing"
)

// Batch is one outgoing batch.
type Batch struct {
	// Records are the plaintext records, in wire order.
	Records []codec.Record

	// Payload is the framed wire form, trailing delimiter included.
	Payload []byte
}

// Builder assembles batches whose size is uniform in [min, max].
type Builder struct {
	codec  *codec.Codec
	source Source
	min    int
	max    int

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Builder.
type Option func(*Builder)

// WithRand fixes the generator used to pick batch sizes.
func WithRand(rnd *rand.Rand) Option {
	return func(b *Builder) {
		b.rnd = rnd
	}
}

// New creates a Builder.
func New(c *codec.Codec, source Source, minRecords, maxRecords int, opts ...Option) (*Builder, error) {
	if c == nil || source == nil {
		return nil, errors.New("builder needs a codec and a source")
	}
	if minRecords < 1 || maxRecords < minRecords {
		return nil, fmt.Errorf("invalid batch size range [%d, %d]", minRecords, maxRecords)
	}

	b := &Builder{
		codec:  c,
		source: source,
		min:    minRecords,
		max:    maxRecords,
		rnd:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Size draws the number of records for the next batch.
func (b *Builder) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.min + b.rnd.IntN(b.max-b.min+1)
}

// Build draws a batch size and seals and encrypts that many records.
func (b *Builder) Build() (*Batch, error) {
	return b.BuildN(b.Size())
}

// BuildN builds a batch of exactly n records.
func (b *Builder) BuildN(n int) (*Batch, error) {
	records := make([]codec.Record, n)
	segments := make([]string, n)
	for i := range records {
		r := b.source.Next()
		segment, err := b.codec.SealAndEncrypt(r)
		if err != nil {
			return nil, fmt.Errorf("encrypt record %d: %w", i, err)
		}
		records[i] = r
		segments[i] = segment
	}

	return &Batch{Records: records, Payload: framing.Join(segments)}, nil
}
