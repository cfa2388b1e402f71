// Package memseg describes the legal flash regions for each firmware
// kind and bounds-checks incoming transfers against them.
package memseg

import (
	"fmt"

	"meshdfu.dev/fwid"
)

// Descriptor is a (start, length) flash region, in bytes.
type Descriptor struct {
	Start  uint32
	Length uint32
}

// End returns the first address past the descriptor.
func (d Descriptor) End() uint32 {
	return d.Start + d.Length
}

// Contains reports whether [start, start+length) lies entirely
// within d.
func (d Descriptor) Contains(start, length uint32) bool {
	if length == 0 {
		return start >= d.Start && start <= d.End()
	}
	end := start + length
	if end < start {
		return false // overflow
	}
	return start >= d.Start && end <= d.End()
}

// Map holds the three memory segment descriptors, keyed by firmware
// type, from the persistent bootloader info.
type Map struct {
	App        Descriptor
	Bootloader Descriptor
	Runtime    Descriptor
}

// For returns the descriptor governing the given firmware type.
func (m Map) For(t fwid.Type) Descriptor {
	switch t {
	case fwid.App_:
		return m.App
	case fwid.BL:
		return m.Bootloader
	case fwid.Runtime:
		return m.Runtime
	default:
		return Descriptor{}
	}
}

// ErrOutOfBounds is returned when a transfer does not fit its type's
// descriptor (I3).
type ErrOutOfBounds struct {
	Type          fwid.Type
	Start, Length uint32
	Desc          Descriptor
}

func (e *ErrOutOfBounds) Error() string {
	return fmt.Sprintf("memseg: %s transfer [%#x,%#x) outside segment [%#x,%#x)",
		e.Type, e.Start, e.Start+e.Length, e.Desc.Start, e.Desc.End())
}

// Validate checks I3: [start, start+length) must fit entirely inside
// the descriptor for t.
func (m Map) Validate(t fwid.Type, start, length uint32) error {
	d := m.For(t)
	if !d.Contains(start, length) {
		return &ErrOutOfBounds{Type: t, Start: start, Length: length, Desc: d}
	}
	return nil
}
