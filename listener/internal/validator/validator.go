// Package validator turns encrypted segments into verified readings.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/khushi89012/syook/common/codec"
	"github.com/khushi89012/syook/common/framing"
	"github.com/khushi89012/syook/listener/internal/models"
)

var (
	// ErrDecode covers plaintext that is not a JSON object with the four string fields.
	ErrDecode = errors.New("undecodable record")

	// ErrIntegrityMismatch wraps ErrDecode so callers that only care about
	// "rejected" see a single class.
	ErrIntegrityMismatch = fmt.Errorf("%w: integrity tag mismatch", ErrDecode)
)

var requiredFields = [...]string{"name", "origin", "destination", "secret_key"}

// Validator decrypts and authenticates segments with one Codec.
// Safe for concurrent use.
type Validator struct {
	codec *codec.Codec
}

func New(c *codec.Codec) *Validator {
	return &Validator{codec: c}
}

// Result is the per-batch outcome.
type Result struct {
	Total int
	Valid []models.Reading

	// Rejected segments by cause.
	Framing   int
	Decode    int
	Integrity int
}

// ValidCount is len(Valid).
func (r Result) ValidCount() int {
	return len(r.Valid)
}

// ValidateSegment decrypts one segment and checks its tag.
func (v *Validator) ValidateSegment(segment string) (codec.Record, error) {
	plaintext, err := v.codec.Decrypt(segment)
	if err != nil {
		return codec.Record{}, err
	}

	var doc map[string]any
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return codec.Record{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var fields [len(requiredFields)]string
	for i, key := range requiredFields {
		s, ok := doc[key].(string)
		if !ok {
			return codec.Record{}, fmt.Errorf("%w: field %q missing or not a string", ErrDecode, key)
		}
		fields[i] = s
	}

	rec := codec.Record{Name: fields[0], Origin: fields[1], Destination: fields[2]}
	if !codec.VerifyTag(rec, fields[3]) {
		return codec.Record{}, ErrIntegrityMismatch
	}
	return rec, nil
}

// Validate checks every segment in order. Bad segments are counted and
// skipped; every accepted reading carries receivedAt.
func (v *Validator) Validate(segments []string, receivedAt time.Time) Result {
	res := Result{Total: len(segments)}
	for _, seg := range segments {
		rec, err := v.ValidateSegment(seg)
		switch {
		case err == nil:
			res.Valid = append(res.Valid, models.NewReading(rec, receivedAt))
		case errors.Is(err, codec.ErrFraming):
			res.Framing++
		case errors.Is(err, ErrIntegrityMismatch):
			res.Integrity++
		default:
			res.Decode++
		}
	}
	return res
}

// ValidateBatch splits a raw batch into segments and validates them.
func (v *Validator) ValidateBatch(batch []byte, receivedAt time.Time) Result {
	return v.Validate(framing.Segments(batch), receivedAt)
}
