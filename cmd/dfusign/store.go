package main

import (
	"os"

	"github.com/fxamacker/cbor/v2"

	"meshdfu.dev/bootinfo"
)

// fileStore is a bootinfo.Store backed by a single CBOR-encoded file
// on disk, standing in for the flash-resident info store a real node
// keeps: provisioning happens offline, against this file, before the
// image is written to a board.
type fileStore struct {
	path    string
	entries map[bootinfo.EntryType][]byte
}

func openFileStore(path string) (*fileStore, error) {
	s := &fileStore{path: path, entries: make(map[bootinfo.EntryType][]byte)}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := cbor.Unmarshal(raw, &s.entries); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Get(t bootinfo.EntryType) ([]byte, bool) {
	v, ok := s.entries[t]
	return v, ok
}

func (s *fileStore) Put(t bootinfo.EntryType, data []byte) error {
	cp := append([]byte(nil), data...)
	s.entries[t] = cp
	return nil
}

func (s *fileStore) delete(t bootinfo.EntryType) {
	delete(s.entries, t)
}

func (s *fileStore) save() error {
	raw, err := cbor.Marshal(s.entries)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}
