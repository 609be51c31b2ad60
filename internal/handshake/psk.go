package handshake

import (
	"crypto/hmac"
	"crypto/sha256"
)

// computePSKTag and verifyPSKTag implement the single authentication step
// in the whole handshake (spec section 4.2.2): an HMAC-SHA256 of the
// pre-shared key over the exact ServerHello wire bytes the Drone received.
func computePSKTag(psk, helloWire []byte) []byte {
	mac := hmac.New(sha256.New, psk)
	mac.Write(helloWire)
	return mac.Sum(nil)
}

func verifyPSKTag(psk, helloWire, tag []byte) bool {
	return hmac.Equal(computePSKTag(psk, helloWire), tag)
}
