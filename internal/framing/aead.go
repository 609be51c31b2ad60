package framing

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/skywave-systems/pqtun-core/internal/ascon"
	"github.com/skywave-systems/pqtun-core/internal/suites"
)

// newAEAD builds the cipher.AEAD for a negotiated suite's AEAD token,
// validating the supplied key's length against the token's requirement
// (spec section 4.1.2).
func newAEAD(token suites.AEADToken, key []byte) (cipher.AEAD, error) {
	if len(key) != token.KeySize() {
		return nil, fmt.Errorf("framing: key size %d does not match %s requirement of %d", len(key), token, token.KeySize())
	}
	switch token {
	case suites.AEADAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("framing: aes cipher init: %w", err)
		}
		return cipher.NewGCM(block)
	case suites.AEADChaCha20Poly1305:
		return chacha20poly1305.New(key)
	case suites.AEADAscon128A:
		return ascon.New(key)
	default:
		return nil, fmt.Errorf("framing: unsupported AEAD token %q", token)
	}
}
