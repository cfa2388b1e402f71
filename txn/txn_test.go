package txn

import (
	"testing"

	"meshdfu.dev/fwid"
)

func TestResetClears(t *testing.T) {
	var tr Transaction
	tr.Authority = 5
	target := fwid.FWID{Runtime: 9}
	tr.Reset(fwid.Runtime, target)
	if !tr.Active {
		t.Fatal("expected Reset to activate the transaction")
	}
	if tr.Authority != 0 {
		t.Errorf("Authority = %d, want 0 after Reset", tr.Authority)
	}
	if tr.Target != target {
		t.Errorf("Target = %v, want %v", tr.Target, target)
	}
}

func TestStartRejectsOversizedSegmentCount(t *testing.T) {
	var tr Transaction
	tr.Reset(fwid.App_, fwid.FWID{})
	if tr.Start(0x8000, 0x8000, 0x10000, 0, MaxSegmentCount+1, false) {
		t.Fatal("expected Start to reject segment count above MaxSegmentCount")
	}
	if tr.Started() {
		t.Error("transaction should not be marked started")
	}
}

func TestStartAcceptsAndPopulates(t *testing.T) {
	var tr Transaction
	tr.Reset(fwid.App_, fwid.FWID{})
	if !tr.Start(0x8000, 0x8000, 0x100, 64, 16, true) {
		t.Fatal("expected Start to accept a valid transfer")
	}
	if !tr.Started() {
		t.Fatal("expected transaction to be marked started")
	}
	if tr.SegmentsRemaining != 16 {
		t.Errorf("SegmentsRemaining = %d, want 16", tr.SegmentsRemaining)
	}
}

func TestBetterOffer(t *testing.T) {
	var tr Transaction
	tr.AdoptOffer(5, 100, MIC{})
	if !tr.BetterOffer(6, 0) {
		t.Error("expected higher authority to win regardless of transaction id")
	}
	if tr.BetterOffer(5, 100) {
		t.Error("equal offer should not be better")
	}
	if tr.BetterOffer(4, 1000) {
		t.Error("lower authority should not win even with a higher transaction id")
	}
	if !tr.BetterOffer(5, 101) {
		t.Error("expected equal authority, higher transaction id to win")
	}
}

func TestMatches(t *testing.T) {
	var tr Transaction
	tr.Reset(fwid.BL, fwid.FWID{})
	tr.AdoptOffer(1, 42, MIC{})
	if !tr.Matches(fwid.BL, 42) {
		t.Error("expected matching type and transaction id to match")
	}
	if tr.Matches(fwid.App_, 42) {
		t.Error("different type should not match")
	}
	if tr.Matches(fwid.BL, 43) {
		t.Error("different transaction id should not match")
	}
	tr.Clear()
	if tr.Matches(fwid.BL, 42) {
		t.Error("cleared transaction should not match")
	}
}

func TestDecrement(t *testing.T) {
	var tr Transaction
	tr.Reset(fwid.App_, fwid.FWID{})
	tr.Start(0, 0, 32, 0, 2, false)
	if tr.Decrement() {
		t.Fatal("expected first decrement to not complete the transfer")
	}
	if !tr.Decrement() {
		t.Fatal("expected second decrement to complete the transfer")
	}
	// Further decrements past zero must not underflow.
	if !tr.Decrement() {
		t.Error("expected Decrement at zero to keep reporting done")
	}
	if tr.SegmentsRemaining != 0 {
		t.Errorf("SegmentsRemaining = %d, want 0", tr.SegmentsRemaining)
	}
}
