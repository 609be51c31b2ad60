package ratelimit

import (
	"net/netip"
	"testing"
	"time"
)

func TestAllowRespectsBurstCapacity(t *testing.T) {
	l := New(3, 0.001, time.Minute)
	addr := netip.MustParseAddr("198.51.100.7")
	for i := 0; i < 3; i++ {
		if !l.Allow(addr) {
			t.Fatalf("expected token %d to be allowed", i)
		}
	}
	if l.Allow(addr) {
		t.Fatal("expected 4th attempt to be rate limited")
	}
}

func TestAllowTracksDistinctIPsSeparately(t *testing.T) {
	l := New(1, 0.001, time.Minute)
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")
	if !l.Allow(a) {
		t.Fatal("expected first attempt from a to be allowed")
	}
	if !l.Allow(b) {
		t.Fatal("expected first attempt from b to be allowed (separate bucket)")
	}
	if l.Allow(a) {
		t.Fatal("expected second attempt from a to be limited")
	}
}

func TestPruneRemovesIdleBuckets(t *testing.T) {
	l := New(1, 1, time.Millisecond)
	addr := netip.MustParseAddr("203.0.113.9")
	l.Allow(addr)
	if l.Len() != 1 {
		t.Fatalf("expected 1 tracked bucket, got %d", l.Len())
	}
	time.Sleep(5 * time.Millisecond)
	removed := l.Prune(time.Now())
	if removed != 1 {
		t.Fatalf("expected 1 bucket pruned, got %d", removed)
	}
	if l.Len() != 0 {
		t.Fatalf("expected 0 tracked buckets after prune, got %d", l.Len())
	}
}
