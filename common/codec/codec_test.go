package codec

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Produced with: openssl enc -aes-256-ctr -K <scrypt("secret")> -iv 000102...0f
const (
	secretKeyHex  = "81f5ab5bd32aea1435150ddd5f6fbdc938f4e08d7bdfea43ef622638876d2e5c"
	jackPlaintext = `{"name":"Jack","origin":"Bengaluru","destination":"Mumbai","secret_key":"ad2cdbc4121c4378d725cd60ed74cb1e8c4d3055c61345a7afd775f2757881db"}`
	jackSegment   = "000102030405060708090a0b0c0d0e0f" +
		"aab5e6016cd75c98a2ea8ecaa987508829130bd0e48dedff5e5a9cd42080bfd9d31e3e5c78b797b552fd9787ee1d299f" +
		"8a279cbcf84a15f25107cd8e6d0fa50b1fd6a3bde53d8959c75356955272704799b67d54c1777c9b28b01b209623377f" +
		"b0583b609b1a76edd187be359e958c83aa37bc31def0aa6a2276adafe49352087d5eddd63b18ba9808f9f9"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewFromPassphrase("secret")
	require.NoError(t, err)
	return c
}

func TestDeriveKey_KnownVector(t *testing.T) {
	key, err := DeriveKey("secret")
	require.NoError(t, err)
	assert.Equal(t, secretKeyHex, hex.EncodeToString(key[:]))
}

func TestDeriveKey_DifferentPassphrases(t *testing.T) {
	a, err := DeriveKey("secret")
	require.NoError(t, err)
	b, err := DeriveKey("secret2")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestKeyCache(t *testing.T) {
	var cache KeyCache

	first, err := cache.Get("secret")
	require.NoError(t, err)
	second, err := cache.Get("secret")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := cache.Get("another")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
	assert.Equal(t, "another", cache.passphrase)

	again, err := cache.Get("secret")
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestDecrypt_KnownSegment(t *testing.T) {
	c := testCodec(t)

	plaintext, err := c.Decrypt(jackSegment)
	require.NoError(t, err)
	assert.Equal(t, jackPlaintext, string(plaintext))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := testCodec(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "json record", plaintext: `{"name":"A","origin":"B","destination":"C","secret_key":"abc"}`},
		{name: "short text", plaintext: "hello"},
		{name: "empty", plaintext: ""},
		{name: "multi block", plaintext: strings.Repeat("0123456789abcdef", 9) + "tail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segment, err := c.Encrypt([]byte(tt.plaintext))
			require.NoError(t, err)
			assert.Equal(t, strings.ToLower(segment), segment)
			assert.Len(t, segment, 2*(NonceSize+len(tt.plaintext)))

			plaintext, err := c.Decrypt(segment)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, string(plaintext))
		})
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	c := testCodec(t)

	a, err := c.Encrypt([]byte("hello"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("hello"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a[:2*NonceSize], b[:2*NonceSize])

	for _, segment := range []string{a, b} {
		plaintext, err := c.Decrypt(segment)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(plaintext))
	}
}

func TestDecrypt_FramingErrors(t *testing.T) {
	c := testCodec(t)

	tests := []struct {
		name    string
		segment string
	}{
		{name: "not hex", segment: "not-a-valid-hex-token"},
		{name: "odd length", segment: "abc"},
		{name: "shorter than nonce", segment: "00010203"},
		{name: "empty", segment: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.segment)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFraming), "want ErrFraming, got %v", err)
		})
	}
}

func TestDecrypt_NonceOnlyIsEmptyPlaintext(t *testing.T) {
	c := testCodec(t)

	plaintext, err := c.Decrypt(jackSegment[:2*NonceSize])
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestDecrypt_WrongKeyYieldsGarbageNotError(t *testing.T) {
	other, err := NewFromPassphrase("not-the-secret")
	require.NoError(t, err)

	plaintext, err := other.Decrypt(jackSegment)
	require.NoError(t, err)
	assert.NotEqual(t, jackPlaintext, string(plaintext))
	assert.Len(t, plaintext, len(jackPlaintext))
}

func TestDecrypt_TruncatedCiphertextYieldsGarbageNotError(t *testing.T) {
	c := testCodec(t)

	plaintext, err := c.Decrypt(jackSegment[:len(jackSegment)-10])
	require.NoError(t, err)
	assert.Equal(t, jackPlaintext[:len(jackPlaintext)-5], string(plaintext))
}

func TestSealAndEncrypt(t *testing.T) {
	c := testCodec(t)
	r := Record{Name: "Jack", Origin: "Bengaluru", Destination: "Mumbai"}

	segment, err := c.SealAndEncrypt(r)
	require.NoError(t, err)

	plaintext, err := c.Decrypt(segment)
	require.NoError(t, err)
	assert.Equal(t, jackPlaintext, string(plaintext))
}
