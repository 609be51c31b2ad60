// Package suites implements the PQC cryptographic suite registry: the
// {KEM x Signature x AEAD} table, stable suite identifiers, and the fixed
// header-byte mapping used to tag wire frames (spec section 4.5).
package suites

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cloudflare/circl/kem"
	kemschemes "github.com/cloudflare/circl/kem/schemes"
	"github.com/cloudflare/circl/sign"
	sigschemes "github.com/cloudflare/circl/sign/schemes"
)

// AEADToken names a supported (or retired) AEAD construction.
type AEADToken string

const (
	AEADAESGCM           AEADToken = "aesgcm"
	AEADChaCha20Poly1305 AEADToken = "chacha20poly1305"
	AEADAscon128A        AEADToken = "ascon128a"
)

// KeySize and NonceSize return the AEAD requirements for a token, used by
// the framing layer to validate key material before constructing a cipher.
func (t AEADToken) KeySize() int {
	switch t {
	case AEADAESGCM, AEADChaCha20Poly1305:
		return 32
	case AEADAscon128A:
		return 16
	default:
		return 0
	}
}

func (t AEADToken) NonceSize() int {
	switch t {
	case AEADAESGCM, AEADChaCha20Poly1305:
		return 12
	case AEADAscon128A:
		return 16
	default:
		return 0
	}
}

var supportedAEADTokens = map[AEADToken]bool{
	AEADAESGCM:           true,
	AEADChaCha20Poly1305: true,
	AEADAscon128A:        true,
}

// retiredAEADTokens mirrors core/aead.py's _RETIRED_AEAD_TOKENS: tokens that
// once existed but must now be rejected with an explanatory reason rather
// than silently treated as unknown.
var retiredAEADTokens = map[AEADToken]string{
	"aes128gcm": "use aesgcm (AES-256-GCM) for final deployments",
	"ascon128":  "use ascon128a (native/pure-Go backend) for MTU-scale support",
}

// HeaderIDs are the four header bytes identifying a suite's KEM and
// signature algorithm on the wire (spec section 3.1 / 4.1.1).
type HeaderIDs struct {
	KEMID    byte
	KEMParam byte
	SigID    byte
	SigParam byte
}

// Suite is an immutable descriptor for one negotiable cryptographic
// combination (spec section 3.1).
type Suite struct {
	ID        string
	KEMName   string
	SigName   string
	AEADToken AEADToken
	HeaderIDs HeaderIDs
}

type algIDs struct {
	id    byte
	param byte
}

// kemHeaderIDs and sigHeaderIDs are the fixed, globally-stable 1:1 mapping
// tables from algorithm name to header bytes (spec section 4.5: "Mapping
// must be stable across endpoints"). Values are hand-assigned and must
// never be reassigned once shipped.
var kemHeaderIDs = map[string]algIDs{
	"ML-KEM-512":  {id: 1, param: 1},
	"ML-KEM-768":  {id: 1, param: 2},
	"ML-KEM-1024": {id: 1, param: 3},
}

var sigHeaderIDs = map[string]algIDs{
	"ML-DSA-44": {id: 2, param: 1},
	"ML-DSA-65": {id: 2, param: 2},
	"ML-DSA-87": {id: 2, param: 3},
}

// aeadSlug is used only to build suite_id strings.
var aeadSlug = map[AEADToken]string{
	AEADAESGCM:           "aesgcm",
	AEADChaCha20Poly1305: "chacha20poly1305",
	AEADAscon128A:        "ascon128a",
}

// level pairs KEM and signature algorithms of matching NIST security level,
// mirroring core/suites.py's pairing convention (ML-DSA-44 paired with L1
// KEMs despite liboqs formally claiming it as L2).
type level struct {
	slug string
	kem  string
	sig  string
}

var levels = []level{
	{slug: "mlkem512", kem: "ML-KEM-512", sig: "ML-DSA-44"},
	{slug: "mlkem768", kem: "ML-KEM-768", sig: "ML-DSA-65"},
	{slug: "mlkem1024", kem: "ML-KEM-1024", sig: "ML-DSA-87"},
}

// DefaultSuiteID is the bootstrap suite used when callers do not specify one.
const DefaultSuiteID = "cs-mlkem768-aesgcm-mldsa65"

// Registry holds the static suite table plus config-driven gates for
// experimental tokens (ENABLE_ASCON / ENABLE_ASCON128A, spec section 6.1).
type Registry struct {
	mu             sync.RWMutex
	all            map[string]Suite
	enableAscon    bool
	enableAscon128 bool
}

// NewRegistry builds the full static suite table. enableAscon gates exposure
// of any ascon-family suite; enableAscon128A additionally gates the
// 'ascon128a' variant specifically (spec's Open Question on ASCON variants).
func NewRegistry(enableAscon, enableAscon128A bool) *Registry {
	r := &Registry{
		all:            make(map[string]Suite),
		enableAscon:    enableAscon,
		enableAscon128: enableAscon128A,
	}
	for _, lv := range levels {
		for token, slug := range aeadSlug {
			id := fmt.Sprintf("cs-%s-%s-%s", lv.slug, slug, sigSlug(lv.sig))
			hdr := HeaderIDs{
				KEMID:    kemHeaderIDs[lv.kem].id,
				KEMParam: kemHeaderIDs[lv.kem].param,
				SigID:    sigHeaderIDs[lv.sig].id,
				SigParam: sigHeaderIDs[lv.sig].param,
			}
			r.all[id] = Suite{
				ID:        id,
				KEMName:   lv.kem,
				SigName:   lv.sig,
				AEADToken: token,
				HeaderIDs: hdr,
			}
		}
	}
	return r
}

func sigSlug(sigName string) string {
	switch sigName {
	case "ML-DSA-44":
		return "mldsa44"
	case "ML-DSA-65":
		return "mldsa65"
	case "ML-DSA-87":
		return "mldsa87"
	default:
		return sigName
	}
}

// CanonicalizeAEADToken validates a token string, rejecting retired tokens
// with their migration reason and unknown tokens as configuration errors.
func CanonicalizeAEADToken(token string) (AEADToken, error) {
	t := AEADToken(token)
	if reason, retired := retiredAEADTokens[t]; retired {
		return "", fmt.Errorf("%w: AEAD token %q is retired: %s", ErrConfig, token, reason)
	}
	if !supportedAEADTokens[t] {
		return "", fmt.Errorf("%w: unknown AEAD token %q", ErrConfig, token)
	}
	return t, nil
}

// Get looks up a suite by ID, honoring the ascon gates.
func (r *Registry) Get(id string) (Suite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.all[id]
	if !ok {
		return Suite{}, fmt.Errorf("%w: suite not found: %s", ErrNotFound, id)
	}
	if s.AEADToken == AEADAscon128A {
		if !r.enableAscon {
			return Suite{}, fmt.Errorf("%w: suite %s disabled: ENABLE_ASCON is false", ErrConfig, id)
		}
		if !r.enableAscon128 {
			return Suite{}, fmt.Errorf("%w: suite %s disabled: ENABLE_ASCON128A is false", ErrConfig, id)
		}
	}
	return s, nil
}

// List returns all suite IDs this registry knows about, honoring the ascon
// gates, sorted for deterministic output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.all))
	for id, s := range r.all {
		if s.AEADToken == AEADAscon128A && (!r.enableAscon || !r.enableAscon128) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HeaderIDsForSuite derives the four header bytes for a suite; exposed
// separately from Get so callers that only know (kemName, sigName) pairs
// (e.g. during handshake verification before a suite_id is trusted) can
// still look up the stable mapping.
func HeaderIDsForSuite(kemName, sigName string) (HeaderIDs, error) {
	k, ok := kemHeaderIDs[kemName]
	if !ok {
		return HeaderIDs{}, fmt.Errorf("%w: unknown kem name %q", ErrConfig, kemName)
	}
	s, ok := sigHeaderIDs[sigName]
	if !ok {
		return HeaderIDs{}, fmt.Errorf("%w: unknown sig name %q", ErrConfig, sigName)
	}
	return HeaderIDs{KEMID: k.id, KEMParam: k.param, SigID: s.id, SigParam: s.param}, nil
}

// KEMScheme resolves a suite's KEM algorithm name to a circl kem.Scheme.
func KEMScheme(name string) (kem.Scheme, error) {
	s := kemschemes.ByName(name)
	if s == nil {
		return nil, fmt.Errorf("%w: kem backend unavailable: %s", ErrUnavailable, name)
	}
	return s, nil
}

// SigScheme resolves a suite's signature algorithm name to a circl sign.Scheme.
func SigScheme(name string) (sign.Scheme, error) {
	s := sigschemes.ByName(name)
	if s == nil {
		return nil, fmt.Errorf("%w: signature backend unavailable: %s", ErrUnavailable, name)
	}
	return s, nil
}

// Availability describes whether a suite can actually run on this host, used
// by the runtime availability probe (spec section 4.5).
type Availability struct {
	SuiteID   string
	Available bool
	Reason    string
}

// ProbeAvailability queries the PQC backend (circl's scheme registries) and
// the AEAD gates to report which suites can run here right now.
func (r *Registry) ProbeAvailability() []Availability {
	ids := r.allIDsUnfiltered()
	out := make([]Availability, 0, len(ids))
	for _, id := range ids {
		s := r.all[id]
		reason := ""
		ok := true
		if _, err := KEMScheme(s.KEMName); err != nil {
			ok = false
			reason = err.Error()
		} else if _, err := SigScheme(s.SigName); err != nil {
			ok = false
			reason = err.Error()
		} else if s.AEADToken == AEADAscon128A {
			r.mu.RLock()
			gated := !r.enableAscon || !r.enableAscon128
			r.mu.RUnlock()
			if gated {
				ok = false
				reason = "ascon128a disabled by configuration"
			}
		}
		out = append(out, Availability{SuiteID: id, Available: ok, Reason: reason})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SuiteID < out[j].SuiteID })
	return out
}

func (r *Registry) allIDsUnfiltered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.all))
	for id := range r.all {
		out = append(out, id)
	}
	return out
}
