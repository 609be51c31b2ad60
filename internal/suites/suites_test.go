package suites

import (
	"errors"
	"strings"
	"testing"
)

func TestNewRegistryListDefaultSuitePresent(t *testing.T) {
	r := NewRegistry(false, false)
	ids := r.List()
	found := false
	for _, id := range ids {
		if id == DefaultSuiteID {
			found = true
		}
		if strings.Contains(id, "ascon128a") {
			t.Errorf("ascon suite %s listed while disabled", id)
		}
	}
	if !found {
		t.Fatalf("default suite %s missing from registry listing", DefaultSuiteID)
	}
}

func TestRegistryGetHonorsAsconGates(t *testing.T) {
	r := NewRegistry(false, false)
	id := "cs-mlkem768-ascon128a-mldsa65"
	if _, err := r.Get(id); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for gated suite, got %v", err)
	}

	r2 := NewRegistry(true, true)
	s, err := r2.Get(id)
	if err != nil {
		t.Fatalf("unexpected error with gates enabled: %v", err)
	}
	if s.AEADToken != AEADAscon128A {
		t.Fatalf("expected ascon128a token, got %s", s.AEADToken)
	}
}

func TestRegistryGetUnknownSuite(t *testing.T) {
	r := NewRegistry(true, true)
	if _, err := r.Get("cs-does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCanonicalizeAEADTokenRetired(t *testing.T) {
	cases := []string{"aes128gcm", "ascon128"}
	for _, tok := range cases {
		if _, err := CanonicalizeAEADToken(tok); !errors.Is(err, ErrConfig) {
			t.Errorf("token %s: expected retirement error, got %v", tok, err)
		}
	}
}

func TestCanonicalizeAEADTokenUnknown(t *testing.T) {
	if _, err := CanonicalizeAEADToken("rot13"); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for unknown token, got %v", err)
	}
}

func TestCanonicalizeAEADTokenSupported(t *testing.T) {
	for _, tok := range []string{"aesgcm", "chacha20poly1305", "ascon128a"} {
		got, err := CanonicalizeAEADToken(tok)
		if err != nil {
			t.Errorf("token %s: unexpected error %v", tok, err)
		}
		if string(got) != tok {
			t.Errorf("token %s: round-trip mismatch, got %s", tok, got)
		}
	}
}

func TestHeaderIDsForSuiteStableMapping(t *testing.T) {
	want := HeaderIDs{KEMID: 1, KEMParam: 2, SigID: 2, SigParam: 2}
	got, err := HeaderIDsForSuite("ML-KEM-768", "ML-DSA-65")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("header ids mismatch: got %+v want %+v", got, want)
	}
}

func TestHeaderIDsForSuiteUnknownNames(t *testing.T) {
	if _, err := HeaderIDsForSuite("ML-KEM-9999", "ML-DSA-65"); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for unknown kem, got %v", err)
	}
	if _, err := HeaderIDsForSuite("ML-KEM-768", "ML-DSA-9999"); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for unknown sig, got %v", err)
	}
}

func TestRegistryEveryEntryHasDistinctHeaderIDTuple(t *testing.T) {
	r := NewRegistry(true, true)
	seen := make(map[HeaderIDs]string)
	for _, lv := range levels {
		hdr, err := HeaderIDsForSuite(lv.kem, lv.sig)
		if err != nil {
			t.Fatalf("unexpected error for level %s: %v", lv.slug, err)
		}
		if other, ok := seen[hdr]; ok {
			t.Fatalf("header id collision between %s and %s", lv.slug, other)
		}
		seen[hdr] = lv.slug
	}
	_ = r
}

func TestProbeAvailabilityReportsKnownBackends(t *testing.T) {
	r := NewRegistry(true, true)
	avail := r.ProbeAvailability()
	if len(avail) == 0 {
		t.Fatal("expected at least one availability entry")
	}
	for _, a := range avail {
		if a.SuiteID == "" {
			t.Fatal("availability entry missing suite id")
		}
	}
}
