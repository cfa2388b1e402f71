package bootinfo

import (
	"bytes"
	"errors"
	"testing"

	"meshdfu.dev/fwid"
	"meshdfu.dev/memseg"
)

func provisioned(t *testing.T) *Static {
	t.Helper()
	s := NewStatic()
	if err := PutFWID(s, EntryFWID, fwid.FWID{
		App:        fwid.App{ID: fwid.AppID{Vendor: 1, Product: 2}, Version: 3},
		Bootloader: 4,
		Runtime:    5,
	}); err != nil {
		t.Fatalf("PutFWID: %v", err)
	}
	if err := PutSegment(s, EntrySegApp, memseg.Descriptor{Start: 0x8000, Length: 0x10000}); err != nil {
		t.Fatalf("PutSegment(App): %v", err)
	}
	if err := PutSegment(s, EntrySegBootloader, memseg.Descriptor{Start: 0x0, Length: 0x8000}); err != nil {
		t.Fatalf("PutSegment(Bootloader): %v", err)
	}
	if err := PutSegment(s, EntrySegRuntime, memseg.Descriptor{Start: 0x18000, Length: 0x8000}); err != nil {
		t.Fatalf("PutSegment(Runtime): %v", err)
	}
	if err := PutIntegrity(s, true, true); err != nil {
		t.Fatalf("PutIntegrity: %v", err)
	}
	return s
}

func TestLoadHappyPath(t *testing.T) {
	s := provisioned(t)
	info, err := Load(s)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if info.FWID.App.ID.Vendor != 1 || info.FWID.App.ID.Product != 2 || info.FWID.App.Version != 3 {
		t.Errorf("FWID.App = %+v, unexpected", info.FWID.App)
	}
	if info.FWID.Bootloader != 4 || info.FWID.Runtime != 5 {
		t.Errorf("FWID = %+v, unexpected", info.FWID)
	}
	if !info.SDIntact || !info.AppIntact {
		t.Error("expected integrity flags to round-trip true")
	}
	if info.Segments.App.Start != 0x8000 || info.Segments.App.Length != 0x10000 {
		t.Errorf("Segments.App = %+v, unexpected", info.Segments.App)
	}
	if info.PublicKey != nil {
		t.Error("expected no public key to be provisioned")
	}
	if len(info.Journal[0]) != JournalSize/2 || len(info.Journal[1]) != JournalSize/2 {
		t.Fatalf("journal halves have unexpected length: %d, %d", len(info.Journal[0]), len(info.Journal[1]))
	}
	// A fresh journal must have been allocated and persisted.
	if s.Writes == 0 {
		t.Error("expected Load to persist a freshly allocated journal")
	}
	full := append(append([]byte(nil), info.Journal[0]...), info.Journal[1]...)
	for _, b := range full {
		if b != 0xff {
			t.Fatal("expected freshly allocated journal to be all 0xff")
		}
	}
}

func TestLoadMissingMandatoryEntryIsFatal(t *testing.T) {
	s := NewStatic() // nothing provisioned
	_, err := Load(s)
	if err == nil {
		t.Fatal("expected Load to fail with no entries provisioned")
	}
	var corrupt *ErrCorrupt
	if !errors.As(err, &corrupt) {
		t.Fatalf("err = %T, want *ErrCorrupt", err)
	}
	if corrupt.Entry != EntryFWID {
		t.Errorf("ErrCorrupt.Entry = %v, want EntryFWID (checked first)", corrupt.Entry)
	}
}

func TestLoadPreservesExistingJournal(t *testing.T) {
	s := provisioned(t)
	existing := bytes.Repeat([]byte{0x42}, JournalSize)
	if err := s.Put(EntryJournal, existing); err != nil {
		t.Fatalf("Put: %v", err)
	}
	writesBefore := s.Writes
	info, err := Load(s)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Writes != writesBefore {
		t.Error("expected Load to not rewrite an existing journal")
	}
	if info.Journal[0][0] != 0x42 || info.Journal[1][0] != 0x42 {
		t.Error("expected existing journal contents to be preserved")
	}
}

func TestLoadWithProvisionedKey(t *testing.T) {
	s := provisioned(t)
	key := []byte{0x02, 0x01, 0x02, 0x03}
	if err := s.Put(EntryPublicKey, key); err != nil {
		t.Fatalf("Put: %v", err)
	}
	info, err := Load(s)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(info.PublicKey, key) {
		t.Errorf("PublicKey = %x, want %x", info.PublicKey, key)
	}
	if _, ok := info.KeyFingerprint(); !ok {
		t.Error("expected a fingerprint when a key is provisioned")
	}
}

func TestKeyFingerprintAbsentWithoutKey(t *testing.T) {
	info := &Info{}
	if _, ok := info.KeyFingerprint(); ok {
		t.Error("expected no fingerprint without a provisioned key")
	}
}
