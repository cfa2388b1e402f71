package dfu

import "meshdfu.dev/transport"

// handleDataReq implements C7 (§4.7): serve a peer's request to
// retransmit a segment, only while holding a matching transaction.
func (b *Bootloader) handleDataReq(payload []byte) {
	d, err := decodeDataReq(payload)
	if err != nil {
		return
	}
	if !b.txn.Matches(b.txn.Type, d.TransactionID) {
		return
	}
	if b.reqCache.Contains(d.Segment) {
		return // answered recently; drop
	}
	addr := segmentAddress(b.txn.StartAddr, d.Segment)
	data, ok := b.flashw.HasEntry(addr, dataRspPayloadLen)
	if !ok {
		return
	}
	buf, err := b.mesh.Acquire()
	if err != nil {
		b.fatalAbort(ReasonOutOfMemory)
		return
	}
	b.mesh.Tx(buf, transport.KindDataRsp, encodeDataRsp(d.TransactionID, d.Segment, data), oneShotRepeat)
	b.reqCache.Add(d.Segment)
}

// handleDataRsp implements C7's accept-for-self half (§4.7): a peer
// supplied us a segment. This is fire-and-forget — the segment
// engine's accounting (segments_remaining) is driven by DATA writes,
// not by DATA_RSP, per spec's open question on RSP accounting
// (intentional, not changed; see DESIGN.md).
func (b *Bootloader) handleDataRsp(payload []byte) {
	d, err := decodeDataRsp(payload)
	if err != nil {
		return
	}
	if !b.txn.Matches(b.txn.Type, d.TransactionID) {
		return
	}
	addr := segmentAddress(b.txn.StartAddr, d.Segment)
	b.flashw.Data(addr, d.Bytes[:])
}
