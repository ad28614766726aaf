package codec

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
)

// Record is the semantic payload carried by one segment.
type Record struct {
	Name        string `json:"name"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// AuthenticatedRecord is a Record stamped with its tag. This is the plaintext
// that gets encrypted into a segment.
type AuthenticatedRecord struct {
	Record
	Tag string `json:"secret_key"`
}

// ComputeTag returns the hex SHA-256 of the canonical serialization of r:
// {"name":...,"origin":...,"destination":...} in that order, nothing else.
func ComputeTag(r Record) string {
	sum := sha256.Sum256(canonical(r))
	return hex.EncodeToString(sum[:])
}

// VerifyTag recomputes the tag over r and compares it with tag in constant time.
func VerifyTag(r Record, tag string) bool {
	expected := ComputeTag(r)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(tag)) == 1
}

// Seal stamps r with its tag.
func Seal(r Record) AuthenticatedRecord {
	return AuthenticatedRecord{Record: r, Tag: ComputeTag(r)}
}

// Marshal serializes an authenticated record the way producers put it on the wire.
func Marshal(r AuthenticatedRecord) []byte {
	return encode(r)
}

// SealAndEncrypt seals r, serializes it and encrypts the result into one segment.
func (c *Codec) SealAndEncrypt(r Record) (string, error) {
	return c.Encrypt(Marshal(Seal(r)))
}

// canonical never carries fields other than the three payload fields, so
// extra keys in a decrypted document cannot influence the tag.
func canonical(r Record) []byte {
	return encode(Record{Name: r.Name, Origin: r.Origin, Destination: r.Destination})
}

// encode marshals without HTML escaping and without the encoder's trailing newline.
func encode(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Only strings are encoded here; Encode cannot fail.
	_ = enc.Encode(v)
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}
