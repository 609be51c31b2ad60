package counters

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPlaintextAndEncryptedCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordPlaintextOut(100)
	c.RecordPlaintextIn(50)
	c.RecordEncryptedOut(140)
	c.RecordEncryptedIn(90)

	if got := testutil.ToFloat64(c.ptxOut); got != 1 {
		t.Errorf("ptxOut = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ptxOutBytes); got != 100 {
		t.Errorf("ptxOutBytes = %v, want 100", got)
	}
	if got := testutil.ToFloat64(c.encIn); got != 1 {
		t.Errorf("encIn = %v, want 1", got)
	}
}

func TestRecordDropLabelsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.RecordDrop("replay")
	c.RecordDrop("replay")
	c.RecordDrop("auth_fail")

	if got := testutil.ToFloat64(c.drops.WithLabelValues("replay")); got != 2 {
		t.Errorf("replay drops = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.drops.WithLabelValues("auth_fail")); got != 1 {
		t.Errorf("auth_fail drops = %v, want 1", got)
	}
}

func TestRecordRekeyResultUpdatesSnapshotFields(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.RecordRekeyResult(true, 42.5, "cs-mlkem768-aesgcm-mldsa65", "scheduled")

	millis, suite, reason := c.LastRekeyInfo()
	if millis != 42.5 || suite != "cs-mlkem768-aesgcm-mldsa65" || reason != "scheduled" {
		t.Fatalf("unexpected last-rekey info: %v %v %v", millis, suite, reason)
	}
	if got := testutil.ToFloat64(c.rekeysOK); got != 1 {
		t.Errorf("rekeysOK = %v, want 1", got)
	}

	c.RecordRekeyResult(false, 10, "cs-mlkem768-aesgcm-mldsa65", "auth_failed")
	if got := testutil.ToFloat64(c.rekeysFail); got != 1 {
		t.Errorf("rekeysFail = %v, want 1", got)
	}
}

func TestRecordPrimitiveObservesHistogramAndBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.RecordPrimitive("kem_keygen", 2*time.Millisecond, "public_key", 1184)

	if got := testutil.ToFloat64(c.primitiveBytes.WithLabelValues("public_key")); got != 1184 {
		t.Errorf("public_key bytes = %v, want 1184", got)
	}
}
