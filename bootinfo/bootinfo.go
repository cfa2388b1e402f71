// Package bootinfo implements the persistent bootloader info store
// consumed (read-only) by the core: the installed FWID, the three
// memory segment descriptors, integrity flags, an optional
// provisioned public key, and the flash writer's journal area
// (§3, §4.8).
package bootinfo

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/fxamacker/cbor/v2"

	"meshdfu.dev/fwid"
	"meshdfu.dev/memseg"
)

// EntryType discriminates the typed pointer-entries the info store
// holds, mirroring the "entries are pointer-typed via the type
// discriminant" API in §6.
type EntryType uint8

const (
	EntryFWID EntryType = iota
	EntrySegApp
	EntrySegBootloader
	EntrySegRuntime
	EntryIntegrity
	EntryPublicKey
	EntryJournal
)

// JournalSize is the size, in bytes, of the journal area reserved
// for the flash writer, split into two equal halves at Load time.
const JournalSize = 512

// Store is the info-store API the core consumes (§6):
// entry_get(base, type) and entry_put(type, &buf, len). Entries are
// read-only to the core except for the journal, whose absence at
// init triggers a write-back of a freshly allocated one.
type Store interface {
	Get(t EntryType) ([]byte, bool)
	Put(t EntryType, data []byte) error
}

// ErrCorrupt is returned by Load when a mandatory entry is missing or
// malformed — fatal at boot per §3 ("Missing or unreadable entries
// are fatal") and §7 (INVALID_PERSISTENT_STORAGE).
type ErrCorrupt struct {
	Entry EntryType
	Err   error
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("bootinfo: entry %d: %v", e.Entry, e.Err)
}

func (e *ErrCorrupt) Unwrap() error { return e.Err }

type integrity struct {
	_         struct{} `cbor:",toarray"`
	SDIntact  bool
	AppIntact bool
}

type fwidRecord struct {
	_          struct{} `cbor:",toarray"`
	AppVendor  uint16
	AppProduct uint16
	AppVersion uint16
	BLVersion  uint16
	Runtime    uint32
}

type segRecord struct {
	_      struct{} `cbor:",toarray"`
	Start  uint32
	Length uint32
}

// Info is the decoded, in-memory view of the persistent store the
// core holds as read-only borrowed state for the lifetime of a boot
// (§9 "pointer aliasing between info store and live records").
type Info struct {
	FWID       fwid.FWID
	Segments   memseg.Map
	SDIntact   bool
	AppIntact  bool
	PublicKey  []byte // nil if no key provisioned
	Journal    [2][]byte
	store      Store
	encMode    cbor.EncMode
}

// KeyFingerprint returns the first 4 bytes of RIPEMD160(SHA256(key)),
// a short diagnostic label for a provisioned public key — not used by
// the core's protocol logic.
func (i *Info) KeyFingerprint() (uint32, bool) {
	if len(i.PublicKey) == 0 {
		return 0, false
	}
	h := btcutil.Hash160(i.PublicKey)
	return uint32(h[0])<<24 | uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3]), true
}

func encMode() cbor.EncMode {
	m, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err) // fixed, valid option set
	}
	return m
}

// Load reads all entries from store per §4.8: the five mandatory
// entries (FWID, three segment descriptors, integrity flags), the
// optional public key (an absent or empty entry means no key is
// provisioned), plus the journal, allocating and persisting a fresh
// all-0xFF journal if absent.
func Load(store Store) (*Info, error) {
	enc := encMode()
	info := &Info{store: store, encMode: enc}

	var fr fwidRecord
	if err := getRecord(store, EntryFWID, &fr); err != nil {
		return nil, err
	}
	info.FWID = fwid.FWID{
		App: fwid.App{
			ID:      fwid.AppID{Vendor: fr.AppVendor, Product: fr.AppProduct},
			Version: fr.AppVersion,
		},
		Bootloader: fr.BLVersion,
		Runtime:    fr.Runtime,
	}

	segs := [3]*memseg.Descriptor{&info.Segments.App, &info.Segments.Bootloader, &info.Segments.Runtime}
	types := [3]EntryType{EntrySegApp, EntrySegBootloader, EntrySegRuntime}
	for i, t := range types {
		var sr segRecord
		if err := getRecord(store, t, &sr); err != nil {
			return nil, err
		}
		*segs[i] = memseg.Descriptor{Start: sr.Start, Length: sr.Length}
	}

	var ir integrity
	if err := getRecord(store, EntryIntegrity, &ir); err != nil {
		return nil, err
	}
	info.SDIntact = ir.SDIntact
	info.AppIntact = ir.AppIntact

	if raw, ok := store.Get(EntryPublicKey); ok && len(raw) > 0 {
		info.PublicKey = append([]byte(nil), raw...)
	}

	journal, ok := store.Get(EntryJournal)
	if !ok {
		journal = make([]byte, JournalSize)
		for i := range journal {
			journal[i] = 0xff
		}
		if err := store.Put(EntryJournal, journal); err != nil {
			return nil, &ErrCorrupt{EntryJournal, err}
		}
	}
	if len(journal) != JournalSize {
		return nil, &ErrCorrupt{EntryJournal, errors.New("unexpected journal size")}
	}
	half := JournalSize / 2
	info.Journal[0] = journal[:half]
	info.Journal[1] = journal[half:]

	return info, nil
}

func getRecord(store Store, t EntryType, v any) error {
	raw, ok := store.Get(t)
	if !ok {
		return &ErrCorrupt{t, errors.New("missing entry")}
	}
	if err := cbor.Unmarshal(raw, v); err != nil {
		return &ErrCorrupt{t, err}
	}
	return nil
}

// PutFWID re-encodes and stores rec through the CoreDetEncOptions
// mode, grounded on bc/fountain's deterministic encoding of its own
// on-wire record — used by provisioning tools, not by the core
// itself (the core only reads FWID from Info).
func PutFWID(store Store, t EntryType, f fwid.FWID) error {
	enc := encMode()
	rec := fwidRecord{
		AppVendor:  f.App.ID.Vendor,
		AppProduct: f.App.ID.Product,
		AppVersion: f.App.Version,
		BLVersion:  f.Bootloader,
		Runtime:    f.Runtime,
	}
	b, err := enc.Marshal(rec)
	if err != nil {
		return err
	}
	return store.Put(t, b)
}

// PutSegment stores a memory segment descriptor entry.
func PutSegment(store Store, t EntryType, d memseg.Descriptor) error {
	enc := encMode()
	b, err := enc.Marshal(segRecord{Start: d.Start, Length: d.Length})
	if err != nil {
		return err
	}
	return store.Put(t, b)
}

// PutIntegrity stores the integrity-flags entry.
func PutIntegrity(store Store, sdIntact, appIntact bool) error {
	enc := encMode()
	b, err := enc.Marshal(integrity{SDIntact: sdIntact, AppIntact: appIntact})
	if err != nil {
		return err
	}
	return store.Put(EntryIntegrity, b)
}
