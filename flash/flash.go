// Package flash describes the flash writer the core drives to
// persist received segments and to compute the running image hash
// (§6). It operates asynchronously from the core's point of view:
// every call returns a best-effort status immediately, and the
// segment engine's accounting only advances on success (§5).
package flash

import "errors"

// ErrDuplicate is returned by Data when the address was already
// written in this transaction; the core treats this the same as any
// other write failure — no progress, no relay (P2, P7, scenario 6).
var ErrDuplicate = errors.New("flash: duplicate write")

// Writer is the flash writer API the segment engine and the
// request/response servicer consume.
type Writer interface {
	// Start begins a new transfer. bank is the staging address
	// (equal to start except for bootloader upgrades, §4.6).
	// signatureLength is the trailing byte count, if any, reserved
	// for a signature appended to the image (0 = unsigned transfer):
	// those bytes are stored like any other segment data but excluded
	// from SHA256, since a signature cannot cover its own bytes.
	// validAfterTransfer carries over the start packet's "last" flag.
	Start(start, bank, length, signatureLength uint32, validAfterTransfer bool) error
	// Data writes one segment's bytes at addr. Returns ErrDuplicate
	// (or any other error) without persisting anything if addr was
	// already written in the current transaction.
	Data(addr uint32, data []byte) error
	// End closes out the current transfer.
	End()
	// HasEntry reports whether length bytes at addr are available,
	// returning a copy of them if so — used to serve DATA_REQ (§4.7)
	// and to read out the trailing signature at finalization.
	HasEntry(addr uint32, length int) ([]byte, bool)
	// SHA256 returns the hash over the transfer's bytes in address
	// order, except the trailing signatureLength bytes passed to
	// Start.
	SHA256() [32]byte
}
