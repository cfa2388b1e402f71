// Package dfu implements the mesh DFU bootloader core: the
// five-state lifecycle, packet dispatch, segment-level reliability,
// authority/transaction-id tie-breaking, signature verification and
// the terminal reboot decision (spec §1–§4). The core is
// single-threaded and event-driven (§5): HandleRX and HandleTimeout
// are its only two entry points, and neither blocks.
package dfu

import (
	"meshdfu.dev/bootinfo"
	"meshdfu.dev/cache"
	"meshdfu.dev/fwid"
	"meshdfu.dev/sig"
	"meshdfu.dev/timer"
	"meshdfu.dev/transport"
	"meshdfu.dev/txn"
)

// Reason is why the bootloader terminated (§7).
type Reason uint8

const (
	ReasonOutOfMemory Reason = iota
	ReasonInvalidPersistentStorage
	ReasonUnauthorized
	ReasonNoStart
	ReasonFWIDValid
	ReasonSuccess
)

func (r Reason) String() string {
	switch r {
	case ReasonOutOfMemory:
		return "OUT_OF_MEMORY"
	case ReasonInvalidPersistentStorage:
		return "INVALID_PERSISTENT_STORAGE"
	case ReasonUnauthorized:
		return "UNAUTHORIZED"
	case ReasonNoStart:
		return "NO_START"
	case ReasonFWIDValid:
		return "FWID_VALID"
	case ReasonSuccess:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// ChainLoader is the terminal-exit collaborator (§6): a debugger
// breakpoint followed by a jump into application, bootloader, or (at
// init) a note of this bootloader's own start address so the ROM
// loader returns here next reset.
type ChainLoader interface {
	Breakpoint()
	JumpToApplication()
	JumpToBootloader()
	SetBootAddress(addr uint32)
}

// Packet is one inbound DFU frame delivered by the transport to
// bootloader_rx (§6).
type Packet struct {
	Kind    transport.PacketKind
	Payload []byte
}

// Bootloader is the event-driven core context (§9: "a Bootloader
// context owning these fields, passed to both event handlers").
// There is exactly one per node; its lifecycle spans from Init to
// the first reboot.
type Bootloader struct {
	mesh     transport.Mesh
	flashw   flashWriter
	info     *bootinfo.Info
	verifier sig.Verifier
	timer    timer.Source
	loader   ChainLoader

	state  State
	txn    txn.Transaction
	beacon *transport.Handle

	reqCache *cache.Ring[uint16]
	tidCache *cache.Ring[uint32]

	done   bool
	reason Reason
}

// flashWriter is the subset of flash.Writer the core needs; declared
// locally so this package does not import flash directly (only the
// interface it consumes, per §6).
type flashWriter interface {
	Start(start, bank, length, signatureLength uint32, validAfterTransfer bool) error
	Data(addr uint32, data []byte) error
	End()
	HasEntry(addr uint32, length int) ([]byte, bool)
	SHA256() [32]byte
}

// Init builds a Bootloader from its collaborators and runs §4.8's
// startup sequence: if the soft-device isn't intact or the runtime
// version is the sentinel invalid value, request a runtime upgrade;
// else if the application isn't intact or is sentinel-invalid,
// request an application upgrade; otherwise enter FIND_FWID. The
// bootloader's own start address is written into the chain loader's
// boot-address register so the ROM loader jumps back here next reset.
func Init(mesh transport.Mesh, flashw flashWriter, info *bootinfo.Info, verifier sig.Verifier, t timer.Source, loader ChainLoader, ownStartAddr uint32) *Bootloader {
	b := &Bootloader{
		mesh:     mesh,
		flashw:   flashw,
		info:     info,
		verifier: verifier,
		timer:    t,
		loader:   loader,
		reqCache: cache.NewReqCache(),
		tidCache: cache.NewTIDCache(),
	}
	loader.SetBootAddress(ownStartAddr)
	switch {
	case !info.SDIntact || info.FWID.RuntimeInvalid():
		b.enterReq(fwid.Runtime, fwid.FWID{})
	case !info.AppIntact || info.FWID.AppInvalid():
		b.enterReq(fwid.App_, fwid.FWID{})
	default:
		b.enterFindFWID()
	}
	return b
}

// State returns the current lifecycle state, for tests and
// diagnostics.
func (b *Bootloader) State() State {
	return b.state
}

// Done reports whether the bootloader has terminated (abort called).
func (b *Bootloader) Done() (bool, Reason) {
	return b.done, b.reason
}

func (b *Bootloader) setState(s State) {
	b.state = s
	b.timer.Arm(timeoutFor(s))
}

func (b *Bootloader) enterFindFWID() {
	b.beaconSet(beaconFWID)
	b.setState(StateFindFWID)
}

func (b *Bootloader) enterReq(t fwid.Type, target fwid.FWID) {
	b.txn.Reset(t, target)
	b.beaconSet(reqKindFor(t))
	b.setState(StateReq)
}

func (b *Bootloader) enterReady() {
	b.beaconSet(readyKindFor(b.txn.Type))
	b.setState(StateReady)
}

func (b *Bootloader) enterTarget() {
	b.beaconClear()
	b.setState(StateTarget)
}

func (b *Bootloader) enterRampdown() {
	b.beaconClear()
	b.setState(StateRampdown)
}

// abort is the terminal action (§6, §7): breakpoint, then chain-load
// into the bootloader (UNAUTHORIZED, to retry) or the application
// (every other reason).
func (b *Bootloader) abort(reason Reason) {
	b.beaconClear()
	b.timer.Disarm()
	b.done = true
	b.reason = reason
	b.loader.Breakpoint()
	if reason == ReasonUnauthorized {
		b.loader.JumpToBootloader()
	} else {
		b.loader.JumpToApplication()
	}
}

// fatalAbort terminates on OOM or storage corruption (§7): these are
// not protocol failures to recover from, they end the bootloader
// immediately.
func (b *Bootloader) fatalAbort(reason Reason) {
	b.abort(reason)
}

// HandleTimeout is the state-timer expiry handler
// (bootloader_rtc_irq_handler, §6).
func (b *Bootloader) HandleTimeout() {
	if b.done {
		return
	}
	switch b.state {
	case StateFindFWID:
		b.abort(ReasonFWIDValid)
	case StateReq, StateReady:
		b.abort(ReasonNoStart)
	case StateTarget:
		// 5s of silence: fall back to DFU_REQ of the same type.
		b.enterReq(b.txn.Type, b.txn.Target)
	case StateRampdown:
		b.abort(ReasonSuccess)
	}
}

// HandleRX dispatches one inbound packet (bootloader_rx, §4.3).
// Unknown kinds are dropped silently; all validation lives in the
// handlers they're routed to.
func (b *Bootloader) HandleRX(pkt Packet) {
	if b.done {
		return
	}
	switch pkt.Kind {
	case transport.KindFWID:
		b.handleFWID(pkt.Payload)
	case transport.KindSTATE:
		b.handleState(pkt.Payload)
	case transport.KindDATA:
		b.handleData(pkt.Payload)
	case transport.KindDataReq:
		b.handleDataReq(pkt.Payload)
	case transport.KindDataRsp:
		b.handleDataRsp(pkt.Payload)
	}
}

// handleFWID implements §4.4. Only meaningful in FIND_FWID.
func (b *Bootloader) handleFWID(payload []byte) {
	if b.state != StateFindFWID {
		return
	}
	adv, err := decodeFWID(payload)
	if err != nil {
		return
	}
	our := b.info.FWID
	switch {
	case our.NewerBootloader(adv):
		b.enterReq(fwid.BL, adv)
	case our.NewerApplication(adv) && our.RuntimeMismatch(adv):
		b.enterReq(fwid.Runtime, adv)
	case our.NewerApplication(adv):
		b.enterReq(fwid.App_, adv)
	}
}

// handleState implements §4.5.
func (b *Bootloader) handleState(payload []byte) {
	sf, err := decodeState(payload)
	if err != nil {
		return
	}
	switch b.state {
	case StateReq:
		if sf.Authority == 0 || !b.readyMatches(sf) {
			return
		}
		b.txn.AdoptOffer(sf.Authority, sf.TransactionID, sf.MIC)
		b.enterReady()
	case StateReady:
		if sf.Authority == 0 || !b.readyMatches(sf) {
			return
		}
		if b.txn.BetterOffer(sf.Authority, sf.TransactionID) {
			b.txn.AdoptOffer(sf.Authority, sf.TransactionID, sf.MIC)
			// No new beacon: the next start-DATA frame resolves the race.
		}
	}
}

// readyMatches reports whether a STATE frame is a candidate offer
// for our current request (§4.5): matching type, transaction id not
// recently abandoned, matching target FWID component.
func (b *Bootloader) readyMatches(sf stateFrame) bool {
	if sf.Type != b.txn.Type {
		return false
	}
	if b.tidCache.Contains(sf.TransactionID) {
		return false
	}
	return b.txn.Target.Matches(sf.Type, sf.Target)
}
