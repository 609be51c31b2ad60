package handshake

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

const hkdfSalt = "pq-drone-gcs|hkdf|v1"

// deriveTransportKeys runs HKDF-SHA256 over the KEM shared secret, salted
// and info-bound to the session identity and negotiated algorithm names so
// that two sessions never derive the same key material even if a shared
// secret were ever (implausibly) repeated. Produces 64 bytes split into two
// 32-byte directional keys, mirroring core/handshake.py's derive_keys.
func deriveTransportKeys(sharedSecret []byte, sessionID [8]byte, kemName, sigName string) (keyD2G, keyG2D []byte, err error) {
	info := make([]byte, 0, 32+8+1+len(kemName)+1+len(sigName))
	info = append(info, "pq-drone-gcs:kdf:v1|"...)
	info = append(info, sessionID[:]...)
	info = append(info, '|')
	info = append(info, kemName...)
	info = append(info, '|')
	info = append(info, sigName...)

	r := hkdf.New(sha256.New, sharedSecret, []byte(hkdfSalt), info)
	okm := make([]byte, 64)
	if _, err := io.ReadFull(r, okm); err != nil {
		return nil, nil, err
	}
	return okm[0:32], okm[32:64], nil
}
