package framing

import (
	"crypto/cipher"
	"fmt"
	"sync"

	"github.com/skywave-systems/pqtun-core/internal/suites"
)

// DefaultRekeySeqThreshold is the sequence value at which a Sender refuses
// to encrypt further and reports ErrSequenceOverflow, matching
// core/aead.py's default of 1<<63 (REKEY_SEQ_THRESHOLD is configurable).
const DefaultRekeySeqThreshold = uint64(1) << 63

// Sender holds one direction's encryption state: key, AEAD instance,
// session identity, and the monotonically increasing (epoch, seq) counter
// pair (spec section 4.1.2, 4.3 "old sender stops encrypting at rekey").
type Sender struct {
	mu sync.Mutex

	aead      cipher.AEAD
	headerIDs suites.HeaderIDs
	version   byte
	sessionID [8]byte

	epoch byte
	seq   uint64

	rekeySeqThreshold uint64
}

// NewSender constructs a Sender bound to one direction's AEAD key.
func NewSender(token suites.AEADToken, key []byte, version byte, headerIDs suites.HeaderIDs, sessionID [8]byte) (*Sender, error) {
	a, err := newAEAD(token, key)
	if err != nil {
		return nil, err
	}
	return &Sender{
		aead:              a,
		headerIDs:         headerIDs,
		version:           version,
		sessionID:         sessionID,
		rekeySeqThreshold: DefaultRekeySeqThreshold,
	}, nil
}

// SetRekeySeqThreshold overrides the default overflow threshold (tests and
// operators probing the rekey trigger path use a small value to exercise it
// without sending billions of packets).
func (s *Sender) SetRekeySeqThreshold(t uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rekeySeqThreshold = t
}

// Seq returns the sender's next sequence number, for diagnostics/status
// reporting.
func (s *Sender) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Epoch returns the sender's current epoch.
func (s *Sender) Epoch() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Encrypt frames and encrypts plaintext, returning header||ciphertext+tag.
// The sequence counter only advances on success (spec section 4.1.2).
func (s *Sender) Encrypt(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq >= s.rekeySeqThreshold {
		return nil, fmt.Errorf("%w: seq=%d threshold=%d", ErrSequenceOverflow, s.seq, s.rekeySeqThreshold)
	}

	h := Header{
		Version:   s.version,
		KEMID:     s.headerIDs.KEMID,
		KEMParam:  s.headerIDs.KEMParam,
		SigID:     s.headerIDs.SigID,
		SigParam:  s.headerIDs.SigParam,
		SessionID: s.sessionID,
		Seq:       s.seq,
		Epoch:     s.epoch,
	}
	header := h.Pack()
	nonce := buildNonce(s.epoch, s.seq, s.aead.NonceSize())

	ct := s.aead.Seal(nil, nonce, plaintext, header)

	s.seq++
	return append(header, ct...), nil
}

// BumpEpoch advances to a fresh epoch with seq reset to 0, used when a
// rekey commits and the old AEAD keeps serving the tail of the old epoch's
// traffic under a new one (spec section 4.3's epoch bump on commit). Epoch
// 255 is terminal: the session must fully rekey with a new session_id
// rather than wrap the epoch counter.
func (s *Sender) BumpEpoch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == 255 {
		return ErrEpochOverflow
	}
	s.epoch++
	s.seq = 0
	return nil
}
