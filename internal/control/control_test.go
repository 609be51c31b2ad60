package control

import (
	"errors"
	"testing"
)

func TestCoordinatorFollowerHappyPath(t *testing.T) {
	coord := NewCoordinator()
	flw := NewFollower()

	initFrame, err := coord.Begin("cs-mlkem1024-aesgcm-mldsa87")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	readyFrame, send, err := flw.HandleFrame(initFrame, func(string) bool { return true })
	if err != nil || !send {
		t.Fatalf("follower HandleFrame(init): send=%v err=%v", send, err)
	}
	if flw.State() != FollowerReady {
		t.Fatalf("expected follower state ready, got %s", flw.State())
	}

	ready, err := coord.HandleFrame(readyFrame)
	if err != nil || !ready {
		t.Fatalf("coordinator HandleFrame(ready): ready=%v err=%v", ready, err)
	}
	if coord.State() != CoordinatorHandshaking {
		t.Fatalf("expected coordinator state handshaking, got %s", coord.State())
	}

	commitFrame, err := coord.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	_, send, err = flw.HandleFrame(commitFrame, nil)
	if err != nil || send {
		t.Fatalf("follower HandleFrame(commit): send=%v err=%v", send, err)
	}
	if flw.State() != FollowerCommitted {
		t.Fatalf("expected follower state committed, got %s", flw.State())
	}

	coord.Confirm()
	if coord.State() != CoordinatorDone {
		t.Fatalf("expected coordinator state done, got %s", coord.State())
	}
}

func TestFollowerRejectsUnavailableSuite(t *testing.T) {
	coord := NewCoordinator()
	flw := NewFollower()

	initFrame, _ := coord.Begin("cs-mlkem1024-ascon128a-mldsa87")
	abortFrame, send, err := flw.HandleFrame(initFrame, func(string) bool { return false })
	if err != nil || !send {
		t.Fatalf("expected abort frame to send, send=%v err=%v", send, err)
	}
	if abortFrame.Type != FrameRekeyAbort {
		t.Fatalf("expected rekey_abort, got %s", abortFrame.Type)
	}

	ready, err := coord.HandleFrame(abortFrame)
	if ready {
		t.Fatal("expected ready=false on abort")
	}
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if coord.State() != CoordinatorAborted {
		t.Fatalf("expected coordinator aborted, got %s", coord.State())
	}
}

func TestCoordinatorRejectsConcurrentBegin(t *testing.T) {
	coord := NewCoordinator()
	if _, err := coord.Begin("suite-a"); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if _, err := coord.Begin("suite-b"); !errors.Is(err, ErrAlreadyInFlight) {
		t.Fatalf("expected ErrAlreadyInFlight, got %v", err)
	}
}

func TestCoordinatorRejectsRIDMismatch(t *testing.T) {
	coord := NewCoordinator()
	coord.Begin("suite-a")
	if _, err := coord.HandleFrame(ControlFrame{Type: FrameRekeyReady, RID: "not-the-rid"}); !errors.Is(err, ErrRIDMismatch) {
		t.Fatalf("expected ErrRIDMismatch, got %v", err)
	}
}

func TestFollowerRejectsCommitWithoutInit(t *testing.T) {
	flw := NewFollower()
	_, _, err := flw.HandleFrame(ControlFrame{Type: FrameRekeyCommit, RID: "x"}, nil)
	if !errors.Is(err, ErrRIDMismatch) {
		t.Fatalf("expected ErrRIDMismatch, got %v", err)
	}
}

func TestControlFrameJSONRoundTrip(t *testing.T) {
	f := ControlFrame{Type: FrameRekeyInit, RID: "abc-123", SuiteID: "cs-mlkem768-aesgcm-mldsa65"}
	data, err := f.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != f {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, f)
	}
}
