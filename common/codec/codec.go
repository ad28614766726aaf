// Package codec implements the symmetric encryption and integrity tagging
// used on the listener wire.
//
// Every segment is hex(nonce || AES-256-CTR(key, nonce, plaintext)) where the
// key is derived from a shared passphrase with scrypt and a fixed salt. CTR
// mode carries no authentication of its own: a corrupted or truncated segment
// decrypts to garbage without error. Integrity comes from the record tag
// (see tag.go), which the consumer recomputes after decrypting.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/scrypt"
)

const (
	// NonceSize is the length of the CTR initial counter block prepended to every ciphertext.
	NonceSize = aes.BlockSize

	// KeySize is the length of the derived AES-256 key.
	KeySize = 32

	// keySalt is shared with every producer; changing it invalidates all deployed passphrases.
	keySalt = "encrypted-timeseries-v1"

	// scrypt cost parameters
	scryptN = 1 << 14
	scryptR = 8
	scryptP = 1
)

// ErrFraming is returned when a segment is not valid hex or is shorter than a nonce.
var ErrFraming = errors.New("malformed segment")

// Key is a derived encryption key.
type Key [KeySize]byte

// DeriveKey runs scrypt over the passphrase and the fixed salt.
// It is deliberately slow; use CachedKey or a KeyCache on hot paths.
func DeriveKey(passphrase string) (Key, error) {
	var key Key
	raw, err := scrypt.Key([]byte(passphrase), []byte(keySalt), scryptN, scryptR, scryptP, KeySize)
	if err != nil {
		return key, fmt.Errorf("derive key: %w", err)
	}
	copy(key[:], raw)
	return key, nil
}

// KeyCache memoizes the derived key for one passphrase.
// Deriving for a different passphrase replaces the cached entry.
// Safe for concurrent use.
type KeyCache struct {
	mu         sync.Mutex
	passphrase string
	key        Key
	ok         bool
}

// Get returns the key for passphrase, deriving it only on first use or after a passphrase change.
func (c *KeyCache) Get(passphrase string) (Key, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ok && c.passphrase == passphrase {
		return c.key, nil
	}

	key, err := DeriveKey(passphrase)
	if err != nil {
		return Key{}, err
	}
	c.passphrase = passphrase
	c.key = key
	c.ok = true
	return key, nil
}

var processKeys KeyCache

// CachedKey returns the process-wide derived key for passphrase.
func CachedKey(passphrase string) (Key, error) {
	return processKeys.Get(passphrase)
}

// Codec encrypts and decrypts segments with a fixed key.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	block cipher.Block
	rand  io.Reader
}

// New creates a Codec for an already derived key.
func New(key Key) (*Codec, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return &Codec{block: block, rand: rand.Reader}, nil
}

// NewFromPassphrase creates a Codec using the process-wide key cache.
func NewFromPassphrase(passphrase string) (*Codec, error) {
	key, err := CachedKey(passphrase)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// Encrypt returns the lowercase hex encoding of nonce || ciphertext.
// A fresh random nonce is drawn for every call.
func (c *Codec) Encrypt(plaintext []byte) (string, error) {
	out := make([]byte, NonceSize+len(plaintext))
	nonce := out[:NonceSize]
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	cipher.NewCTR(c.block, nonce).XORKeyStream(out[NonceSize:], plaintext)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. It fails only on framing problems; a wrong key
// or tampered ciphertext yields garbage plaintext, not an error.
func (c *Codec) Decrypt(segment string) ([]byte, error) {
	raw, err := hex.DecodeString(segment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	if len(raw) < NonceSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrFraming, len(raw), NonceSize)
	}

	nonce, ciphertext := raw[:NonceSize], raw[NonceSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(c.block, nonce).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}
