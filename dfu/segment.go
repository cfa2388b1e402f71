package dfu

import "meshdfu.dev/transport"

// handleData implements the segment engine (C6, §4.6). A DATA frame
// is ignored unless its transaction_id equals the current
// transaction's.
func (b *Bootloader) handleData(payload []byte) {
	d, err := decodeData(payload)
	if err != nil {
		return
	}
	if !b.txn.Matches(b.txn.Type, d.TransactionID) {
		return
	}
	switch b.state {
	case StateReady:
		if d.Segment == 0 {
			b.handleStartPacket(d)
			return
		}
		// We missed segment 0: don't re-latch this offer.
		b.tidCache.Add(b.txn.TransactionID)
		b.enterReq(b.txn.Type, b.txn.Target)
	case StateTarget:
		if d.Segment == 0 {
			return // idempotent re-receive of start
		}
		b.handleSegmentWrite(d, payload)
	}
}

// handleStartPacket implements READY→TARGET (§4.6).
func (b *Bootloader) handleStartPacket(d dataFrame) {
	meta, err := decodeStartMeta(d.Payload)
	if err != nil {
		return
	}
	lengthBytes := meta.LengthWords * 4
	if err := b.info.Segments.Validate(b.txn.Type, meta.StartAddr, lengthBytes); err != nil {
		return // stay in READY
	}
	count := segmentCount(lengthBytes, meta.StartAddr)
	bank := bankAddrFor(b.txn.Type, b.info.Segments.App, meta.StartAddr, lengthBytes)
	if err := b.flashw.Start(meta.StartAddr, bank, lengthBytes, uint32(meta.SignatureLength), meta.Last); err != nil {
		return
	}
	if !b.txn.Start(meta.StartAddr, bank, lengthBytes, meta.SignatureLength, count, meta.Last) {
		return
	}
	b.enterTarget()
	b.relay(transport.KindDATA, encodeStartPacket(b.txn.TransactionID, meta))
}

// handleSegmentWrite implements TARGET, segment > 0 (§4.6).
// Duplicate or invalid writes do not decrement progress and are not
// relayed (P2, P7, scenario 6).
func (b *Bootloader) handleSegmentWrite(d dataFrame, rawPayload []byte) {
	if d.Segment > b.txn.SegmentCount {
		return
	}
	addr := segmentAddress(b.txn.StartAddr, d.Segment)
	if err := b.flashw.Data(addr, d.Payload); err != nil {
		return
	}
	done := b.txn.Decrement()
	b.relay(transport.KindDATA, rawPayload)
	if done {
		b.finalize()
	}
}

// relay re-broadcasts a DATA frame that advanced our state (§4.6
// "Relay rule"), stamping the new envelope with our own local
// address via the transport.
func (b *Bootloader) relay(kind transport.PacketKind, payload []byte) {
	buf, err := b.mesh.Acquire()
	if err != nil {
		b.fatalAbort(ReasonOutOfMemory)
		return
	}
	b.mesh.Tx(buf, kind, payload, dataRepeat)
}

// finalize implements C8 (§4.6 "Finalization"): close the flash
// writer, then check the signature. pubkey==None accepts
// unconditionally; signature_length==0 with a provisioned key is
// rejected; otherwise the trailing signature_length bytes of the
// transfer are read and verified against the running hash (P4).
//
// The signature is read at start_addr+length-signature_length: this
// package addresses the flash writer in the same start_addr-relative
// space the segment engine uses throughout (§4.6), which is
// equivalent to spec's bank_addr+length-signature_length physical
// address when bank==start and is the bank-relative translation of
// it otherwise (see DESIGN.md's "signature read address" entry).
func (b *Bootloader) finalize() {
	b.flashw.End()
	if len(b.info.PublicKey) == 0 {
		b.enterRampdown()
		return
	}
	if b.txn.SignatureLength == 0 {
		b.abort(ReasonUnauthorized)
		return
	}
	sigLen := int(b.txn.SignatureLength)
	sigAddr := b.txn.StartAddr + b.txn.Length - uint32(sigLen)
	signature, ok := b.flashw.HasEntry(sigAddr, sigLen)
	if !ok {
		b.abort(ReasonUnauthorized)
		return
	}
	hash := b.flashw.SHA256()
	if err := b.verifier.Verify(b.info.PublicKey, hash, signature); err != nil {
		b.abort(ReasonUnauthorized)
		return
	}
	b.enterRampdown()
}
