package statusfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteProducesReadableJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	w := NewWriter(path)

	snap := Snapshot{
		Timestamp: time.Now(),
		Role:      "gcs",
		SessionID: "abc123",
		SuiteID:   "cs-mlkem768-aesgcm-mldsa65",
		Epoch:     2,
		PlaintextPacketsOut: 10,
	}
	if err := w.Write(snap); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.SessionID != "abc123" || got.SuiteID != snap.SuiteID || got.Epoch != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestWriteOverwritesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	w := NewWriter(path)

	w.Write(Snapshot{SessionID: "first"})
	w.Write(Snapshot{SessionID: "second"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got Snapshot
	json.Unmarshal(data, &got)
	if got.SessionID != "second" {
		t.Fatalf("expected latest snapshot to win, got %q", got.SessionID)
	}
}

func TestNoLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	w := NewWriter(path)
	w.Write(Snapshot{SessionID: "x"})

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 file in dir, got %d", len(entries))
	}
}
