package memseg

import (
	"errors"
	"testing"

	"meshdfu.dev/fwid"
)

func TestDescriptorContains(t *testing.T) {
	d := Descriptor{Start: 0x1000, Length: 0x100}
	cases := []struct {
		start, length uint32
		want          bool
	}{
		{0x1000, 0x100, true},
		{0x1000, 0x101, false},
		{0x1050, 0x50, true},
		{0x0f00, 0x100, false},
		{0x1100, 0, true}, // empty range at the boundary is contained
		{0x1101, 0, false},
		{0xffffffff, 0x10, false}, // overflow
	}
	for _, c := range cases {
		if got := d.Contains(c.start, c.length); got != c.want {
			t.Errorf("Contains(%#x, %#x) = %v, want %v", c.start, c.length, got, c.want)
		}
	}
}

func TestMapFor(t *testing.T) {
	m := Map{
		App:        Descriptor{Start: 1, Length: 1},
		Bootloader: Descriptor{Start: 2, Length: 1},
		Runtime:    Descriptor{Start: 3, Length: 1},
	}
	if got := m.For(fwid.App_); got != m.App {
		t.Errorf("For(App_) = %v, want %v", got, m.App)
	}
	if got := m.For(fwid.BL); got != m.Bootloader {
		t.Errorf("For(BL) = %v, want %v", got, m.Bootloader)
	}
	if got := m.For(fwid.Runtime); got != m.Runtime {
		t.Errorf("For(Runtime) = %v, want %v", got, m.Runtime)
	}
}

func TestValidate(t *testing.T) {
	m := Map{App: Descriptor{Start: 0x8000, Length: 0x1000}}
	if err := m.Validate(fwid.App_, 0x8000, 0x1000); err != nil {
		t.Errorf("expected in-bounds transfer to validate, got %v", err)
	}
	err := m.Validate(fwid.App_, 0x8000, 0x2000)
	if err == nil {
		t.Fatal("expected out-of-bounds transfer to fail")
	}
	var oob *ErrOutOfBounds
	if !errors.As(err, &oob) {
		t.Errorf("expected *ErrOutOfBounds, got %T", err)
	}
}
