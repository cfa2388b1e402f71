// Command dfunode drives the mesh DFU bootloader core standalone, for
// diagnostics and for demoing the protocol without real mesh hardware.
//
// Subcommand sim runs a scripted end-to-end application upgrade
// against the in-memory fakes and prints every state transition.
// Subcommand device opens a serial-attached radio co-processor and
// reports the connection, for bring-up testing on real hardware.
package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/tarm/serial"

	"meshdfu.dev/bootinfo"
	"meshdfu.dev/dfu"
	"meshdfu.dev/flash"
	"meshdfu.dev/fwid"
	"meshdfu.dev/memseg"
	"meshdfu.dev/sig"
	"meshdfu.dev/timer"
	"meshdfu.dev/transport"
)

var (
	simCmd    = flag.NewFlagSet("sim", flag.ExitOnError)
	deviceCmd = flag.NewFlagSet("device", flag.ExitOnError)
	devPath   = deviceCmd.String("port", "", "serial device path (autodetected if empty)")
)

func main() {
	if len(os.Args) <= 1 {
		fmt.Fprintf(os.Stderr, "dfunode: specify 'sim' or 'device' command\n")
		os.Exit(2)
	}
	args := os.Args[2:]
	var err error
	switch cmd := os.Args[1]; cmd {
	case "sim":
		if perr := simCmd.Parse(args); perr != nil {
			simCmd.Usage()
		}
		err = runSim()
	case "device":
		if perr := deviceCmd.Parse(args); perr != nil {
			deviceCmd.Usage()
		}
		err = runDevice()
	default:
		fmt.Fprintf(os.Stderr, "dfunode: unknown command: %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dfunode: %v\n", err)
		os.Exit(1)
	}
}

// loggingLoader is a dfu.ChainLoader that prints the terminal decision
// instead of actually jumping anywhere, for the standalone demo.
type loggingLoader struct{}

func (loggingLoader) Breakpoint()             { fmt.Println("chainload: breakpoint") }
func (loggingLoader) JumpToApplication()      { fmt.Println("chainload: -> application") }
func (loggingLoader) JumpToBootloader()       { fmt.Println("chainload: -> bootloader") }
func (loggingLoader) SetBootAddress(a uint32) { fmt.Printf("chainload: boot address = %#x\n", a) }

// blankNodeInfo builds a bootinfo.Info for a node with no valid
// application installed, the same shape a factory-fresh board has:
// intact bootloader and soft device, but app_intact false.
func blankNodeInfo() *bootinfo.Info {
	return &bootinfo.Info{
		FWID: fwid.FWID{
			App:        fwid.App{ID: fwid.AppID{Vendor: 1, Product: 1}},
			Bootloader: 1,
			Runtime:    1,
		},
		Segments: memseg.Map{
			App:        memseg.Descriptor{Start: 0x8000, Length: 0x10000},
			Bootloader: memseg.Descriptor{Start: 0x0, Length: 0x8000},
			Runtime:    memseg.Descriptor{Start: 0x18000, Length: 0x8000},
		},
		SDIntact:  true,
		AppIntact: false,
	}
}

// runSim drives a single bootloader through a scripted application
// upgrade (the same shape as scenario 1 in SPEC_FULL.md's test
// matrix): a source offers, we adopt, a two-segment image arrives,
// and we finalize with no public key provisioned.
func runSim() error {
	mesh := transport.NewSimulator([6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01})
	flashw := flash.NewMemory()
	info := blankNodeInfo()
	tm := timer.NewManual()
	loader := loggingLoader{}

	b := dfu.Init(mesh, flashw, info, sig.Secp256k1{}, tm, loader, 0x0)
	fmt.Printf("state: %v\n", b.State())

	const sourceAuthority = 5
	const transactionID = 1001
	const startAddr = 0x8000
	const length = 32

	b.HandleRX(dfu.Packet{Kind: transport.KindSTATE, Payload: encodeReadyApp(sourceAuthority, transactionID)})
	fmt.Printf("state: %v\n", b.State())

	start := encodeStartApp(transactionID, startAddr, length)
	b.HandleRX(dfu.Packet{Kind: transport.KindDATA, Payload: start})
	fmt.Printf("state: %v\n", b.State())

	seg1 := make([]byte, 16)
	for i := range seg1 {
		seg1[i] = byte(i)
	}
	b.HandleRX(dfu.Packet{Kind: transport.KindDATA, Payload: encodeDataApp(transactionID, 1, seg1)})

	seg2 := make([]byte, 16)
	for i := range seg2 {
		seg2[i] = byte(i + 16)
	}
	b.HandleRX(dfu.Packet{Kind: transport.KindDATA, Payload: encodeDataApp(transactionID, 2, seg2)})
	fmt.Printf("state: %v\n", b.State())

	b.HandleTimeout() // rampdown expiry
	done, reason := b.Done()
	fmt.Printf("done=%v reason=%v\n", done, reason)
	return nil
}

// The encode* helpers below reproduce the wire shapes dfu's internal
// packet encoders build, kept deliberately minimal here since the
// core's own codec is unexported: this tool only needs to drive a
// scripted demo, not speak the protocol generally.

func encodeReadyApp(authority uint8, transactionID uint32) []byte {
	b := make([]byte, 2+4+8+6) // type, authority, tid, mic, app id
	b[0] = byte(fwid.App_)
	b[1] = authority
	binary.LittleEndian.PutUint32(b[2:6], transactionID)
	return b
}

func encodeStartApp(transactionID uint32, startAddr, length uint32) []byte {
	b := make([]byte, 6+11)
	binary.LittleEndian.PutUint32(b[0:4], transactionID)
	binary.LittleEndian.PutUint16(b[4:6], 0)
	binary.LittleEndian.PutUint32(b[6:10], startAddr)
	binary.LittleEndian.PutUint32(b[10:14], length/4)
	binary.LittleEndian.PutUint16(b[14:16], 0) // unsigned
	b[16] = 1                                  // last
	return b
}

func encodeDataApp(transactionID uint32, segment uint16, payload []byte) []byte {
	b := make([]byte, 6+len(payload))
	binary.LittleEndian.PutUint32(b[0:4], transactionID)
	binary.LittleEndian.PutUint16(b[4:6], segment)
	copy(b[6:], payload)
	return b
}

// runDevice opens a serial-attached radio co-processor, grounded on
// driver/mjolnir's device discovery, and reports success. It does not
// speak the mesh wire protocol itself — that belongs to the firmware
// running on the co-processor — this is a bring-up connectivity check.
func runDevice() error {
	rw, err := openSerial(*devPath)
	if err != nil {
		return fmt.Errorf("device: %w", err)
	}
	defer rw.Close()
	fmt.Println("device: connected")
	return nil
}

func openSerial(dev string) (io.ReadWriteCloser, error) {
	const baudRate = 115200

	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("no device specified")
	}
	var firstErr error
	for _, d := range devices {
		c := &serial.Config{Name: d, Baud: baudRate, ReadTimeout: time.Second}
		s, err := serial.OpenPort(c)
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
