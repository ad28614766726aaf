// Package framing splits a raw byte stream into batches and batches into segments.
//
// A batch is terminated by a single '\n'. Inside a batch, segments are
// separated by '|'. Producers write seg1|seg2|...|segN\n in one go, but a
// stream transport may deliver that in any number of chunks.
package framing

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	// BatchDelimiter terminates one batch.
	BatchDelimiter = '\n'

	// SegmentDelimiter separates segments inside a batch.
	SegmentDelimiter = '|'
)

// ErrBufferExhausted is returned when a connection accumulates more than the
// configured limit without completing a batch. The connection should be closed.
var ErrBufferExhausted = errors.New("batch buffer exhausted")

// Framer accumulates chunks from one connection and emits complete batches.
// A Framer is not safe for concurrent use; each connection owns one.
type Framer struct {
	buf      []byte
	maxBytes int
}

// New creates a Framer. maxBytes <= 0 means the buffer is unbounded.
func New(maxBytes int) *Framer {
	return &Framer{maxBytes: maxBytes}
}

// Write appends chunk and returns every complete batch, in order, without
// its delimiter. Trailing bytes after the last delimiter are retained.
//
// If the retained partial batch grows past the limit the buffer is dropped
// and ErrBufferExhausted is returned along with any batches completed by
// this chunk.
func (f *Framer) Write(chunk []byte) ([][]byte, error) {
	f.buf = append(f.buf, chunk...)

	var batches [][]byte
	for {
		i := bytes.IndexByte(f.buf, BatchDelimiter)
		if i < 0 {
			break
		}
		batch := make([]byte, i)
		copy(batch, f.buf[:i])
		batches = append(batches, batch)
		f.buf = f.buf[i+1:]
	}

	if f.maxBytes > 0 && len(f.buf) > f.maxBytes {
		n := len(f.buf)
		f.Reset()
		return batches, fmt.Errorf("%w: %d bytes pending, limit %d", ErrBufferExhausted, n, f.maxBytes)
	}

	// Compact so the backing array does not grow without bound across batches.
	if len(f.buf) == 0 {
		f.buf = nil
	} else if cap(f.buf) > 2*len(f.buf) && cap(f.buf) > 4096 {
		f.buf = append([]byte(nil), f.buf...)
	}
	return batches, nil
}

// Buffered reports how many bytes of an incomplete batch are held.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards any partial batch.
func (f *Framer) Reset() {
	f.buf = nil
}

// Segments splits a batch on '|', trims surrounding whitespace from each
// token and drops empty tokens.
func Segments(batch []byte) []string {
	parts := strings.Split(string(batch), string(SegmentDelimiter))
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		segments = append(segments, p)
	}
	return segments
}

// Join builds the wire form of one batch, delimiter included.
func Join(segments []string) []byte {
	var b bytes.Buffer
	for i, s := range segments {
		if i > 0 {
			b.WriteByte(SegmentDelimiter)
		}
		b.WriteString(s)
	}
	b.WriteByte(BatchDelimiter)
	return b.Bytes()
}
