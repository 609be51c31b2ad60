package config

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// decodeHexPSK decodes the DRONE_PSK environment variable, which the
// original project documents as a hex string (core/handshake.py decodes it
// the same way before using it as raw HMAC key bytes).
func decodeHexPSK(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not valid hex: %w", err)
	}
	return b, nil
}
