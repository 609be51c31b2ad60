// Package statusfile periodically writes a JSON snapshot of tunnel state
// to disk for operators/monitoring scripts that don't want to scrape
// prometheus (spec section 6.4). Grounded on
// original_source/core/async_proxy.py's ProxyCounters.to_dict(), which the
// original writes to a status file on the same kind of timer.
package statusfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is the full point-in-time status document. Callers assemble one
// from internal/counters and session state each tick.
type Snapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	Role        string    `json:"role"`
	SessionID   string    `json:"session_id"`
	SuiteID     string    `json:"suite_id"`
	Epoch       byte      `json:"epoch"`
	PlaintextPacketsOut uint64 `json:"ptx_out"`
	PlaintextPacketsIn  uint64 `json:"ptx_in"`
	EncryptedPacketsOut uint64 `json:"enc_out"`
	EncryptedPacketsIn  uint64 `json:"enc_in"`
	Drops               uint64 `json:"drops"`
	RekeysOK            uint64 `json:"rekeys_ok"`
	RekeysFailed        uint64 `json:"rekeys_fail"`
	LastRekeyMillis     float64 `json:"last_rekey_ms"`
	LastRekeySuite      string  `json:"last_rekey_suite"`
	HandshakePrimitiveTotalMillis float64 `json:"primitive_total_ms"`
}

// Writer writes Snapshot documents to a fixed path, atomically (write to a
// temp file in the same directory, then rename) so a reader never observes
// a half-written file.
type Writer struct {
	path string
}

// NewWriter returns a Writer targeting path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write serializes snap as indented JSON and atomically replaces the
// target file.
func (w *Writer) Write(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, w.path)
}

// RunPeriodic writes snapshots produced by build on a fixed interval until
// stop is closed. Intended to run in its own goroutine from tunnel.Run.
func (w *Writer) RunPeriodic(interval time.Duration, build func() Snapshot, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = w.Write(build())
		}
	}
}
