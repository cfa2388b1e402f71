package dfu

import (
	"meshdfu.dev/fwid"
	"meshdfu.dev/memseg"
	"meshdfu.dev/transport"
	"meshdfu.dev/txn"
)

// beaconKind is one of the seven advertisement payload shapes the
// beacon builder can format (§4.2).
type beaconKind uint8

const (
	beaconFWID beaconKind = iota
	beaconReqApp
	beaconReqBL
	beaconReqRuntime
	beaconReadyApp
	beaconReadyBL
	beaconReadyRuntime
)

func reqKindFor(t fwid.Type) beaconKind {
	switch t {
	case fwid.App_:
		return beaconReqApp
	case fwid.BL:
		return beaconReqBL
	default:
		return beaconReqRuntime
	}
}

func readyKindFor(t fwid.Type) beaconKind {
	switch t {
	case fwid.App_:
		return beaconReadyApp
	case fwid.BL:
		return beaconReadyBL
	default:
		return beaconReadyRuntime
	}
}

func (k beaconKind) wireKind() transport.PacketKind {
	if k == beaconFWID {
		return transport.KindFWID
	}
	return transport.KindSTATE
}

func (k beaconKind) dfuType() fwid.Type {
	switch k {
	case beaconReqApp, beaconReadyApp:
		return fwid.App_
	case beaconReqBL, beaconReadyBL:
		return fwid.BL
	default:
		return fwid.Runtime
	}
}

func (k beaconKind) isReady() bool {
	switch k {
	case beaconReadyApp, beaconReadyBL, beaconReadyRuntime:
		return true
	default:
		return false
	}
}

// Repeat policies (§4.2): FWID/REQ/READY beacons repeat infinitely
// until the next state transition replaces them; DATA relays and
// RSP/REQ one-shots use a small finite repeat count.
var (
	beaconRepeat = transport.Repeat{Count: transport.RepeatInfinite, Interval: transport.IntervalSlow}
	dataRepeat   = transport.Repeat{Count: 3, Interval: transport.IntervalFast}
	oneShotRepeat = transport.Repeat{Count: 1, Interval: transport.IntervalFast}
)

// beaconSet replaces the current outstanding beacon (§4.2, §9
// "reference-counted beacons"): the old beacon is aborted, a fresh
// transport buffer acquired (fatal-abort on OOM), the payload for
// kind formatted, and the result handed to the transport with its
// repeat policy.
func (b *Bootloader) beaconSet(kind beaconKind) {
	b.beaconClear()
	buf, err := b.mesh.Acquire()
	if err != nil {
		b.fatalAbort(ReasonOutOfMemory)
		return
	}
	payload := b.beaconPayload(kind)
	b.mesh.Tx(buf, kind.wireKind(), payload, beaconRepeat)
	b.beacon = buf
}

// beaconClear aborts any outstanding beacon without replacing it
// (used when entering DFU_TARGET, which "stops the beacon", and by
// beaconSet before acquiring a fresh one).
func (b *Bootloader) beaconClear() {
	if b.beacon != nil {
		b.mesh.TxAbort(b.beacon)
		b.beacon = nil
	}
}

func (b *Bootloader) beaconPayload(kind beaconKind) []byte {
	switch kind {
	case beaconFWID:
		return encodeFWID(b.info.FWID)
	default:
		t := kind.dfuType()
		if kind.isReady() {
			return encodeREADY(t, b.txn.Authority, b.txn.TransactionID, b.txn.ReadyMIC, b.txn.Target)
		}
		return encodeREQ(t, b.txn.Target)
	}
}

// segmentCount computes segment_count from a start packet's payload
// length (in 4-byte words) and the start address's low nibble (P6):
// ceil((length*4 + (start_address mod 16)) / 16), clamped to 0xffff.
func segmentCount(lengthBytes, startAddr uint32) uint16 {
	n := uint64(lengthBytes) + uint64(startAddr&0x0f)
	if n == 0 {
		return 0
	}
	count := (n-1)/16 + 1
	if count > txn.MaxSegmentCount {
		count = txn.MaxSegmentCount
	}
	return uint16(count)
}

// PageSize is the flash page size used by the bootloader-upgrade
// bank address computation (§4.6, scenario 5).
const PageSize = 0x1000

func roundUp(length, page uint32) uint32 {
	return (length + page - 1) / page * page
}

// bankAddrFor computes the staging address for a start packet
// (§4.6): for a bootloader upgrade the incoming image is staged in
// the tail of the application region with a one-page guard; for
// other types the bank is the start address itself.
func bankAddrFor(t fwid.Type, appSeg memseg.Descriptor, startAddr, lengthBytes uint32) uint32 {
	if t != fwid.BL {
		return startAddr
	}
	return appSeg.Start + appSeg.Length - roundUp(lengthBytes, PageSize) - PageSize
}

// segmentAddress computes the flash address of segment n (1-based)
// within a transfer starting at startAddr (§4.6): segment 1 maps to
// startAddr itself; later segments are contiguous 16-byte slots from
// the first slot, which may itself start mid-16-bytes.
func segmentAddress(startAddr uint32, segment uint16) uint32 {
	if segment <= 1 {
		return startAddr
	}
	return (uint32(segment-1) << 4) + (startAddr &^ 0xf)
}
