package dfu

import (
	"encoding/binary"
	"errors"

	"meshdfu.dev/fwid"
	"meshdfu.dev/txn"
)

// errMalformed marks a packet that failed to parse; the caller drops
// it silently (§4.3: "all validation lives in the handlers").
var errMalformed = errors.New("dfu: malformed packet")

// idLen returns the wire width of the "id" field for dfu_type t:
// 6 bytes (app id) for APP, 2 bytes for BL, 4 bytes for RUNTIME.
func idLen(t fwid.Type) int {
	switch t {
	case fwid.App_:
		return 6
	case fwid.BL:
		return 2
	case fwid.Runtime:
		return 4
	default:
		return 0
	}
}

func encodeID(t fwid.Type, f fwid.FWID) []byte {
	switch t {
	case fwid.App_:
		b := make([]byte, 6)
		binary.LittleEndian.PutUint16(b[0:2], f.App.ID.Vendor)
		binary.LittleEndian.PutUint16(b[2:4], f.App.ID.Product)
		binary.LittleEndian.PutUint16(b[4:6], f.App.Version)
		return b
	case fwid.BL:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, f.Bootloader)
		return b
	case fwid.Runtime:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, f.Runtime)
		return b
	default:
		return nil
	}
}

// decodeID fills the component of target named by t from b, which
// must be exactly idLen(t) bytes.
func decodeID(t fwid.Type, b []byte) (target fwid.FWID, err error) {
	if len(b) != idLen(t) {
		return target, errMalformed
	}
	switch t {
	case fwid.App_:
		target.App.ID.Vendor = binary.LittleEndian.Uint16(b[0:2])
		target.App.ID.Product = binary.LittleEndian.Uint16(b[2:4])
		target.App.Version = binary.LittleEndian.Uint16(b[4:6])
	case fwid.BL:
		target.Bootloader = binary.LittleEndian.Uint16(b)
	case fwid.Runtime:
		target.Runtime = binary.LittleEndian.Uint32(b)
	}
	return target, nil
}

// encodeFWID formats the FWID beacon payload (§6): app_id(6B),
// bl_version(2B), sd_version(4B).
func encodeFWID(f fwid.FWID) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint16(b[0:2], f.App.ID.Vendor)
	binary.LittleEndian.PutUint16(b[2:4], f.App.ID.Product)
	binary.LittleEndian.PutUint16(b[4:6], f.App.Version)
	binary.LittleEndian.PutUint16(b[6:8], f.Bootloader)
	binary.LittleEndian.PutUint32(b[8:12], f.Runtime)
	return b
}

func decodeFWID(b []byte) (fwid.FWID, error) {
	var f fwid.FWID
	if len(b) != 12 {
		return f, errMalformed
	}
	f.App.ID.Vendor = binary.LittleEndian.Uint16(b[0:2])
	f.App.ID.Product = binary.LittleEndian.Uint16(b[2:4])
	f.App.Version = binary.LittleEndian.Uint16(b[4:6])
	f.Bootloader = binary.LittleEndian.Uint16(b[6:8])
	f.Runtime = binary.LittleEndian.Uint32(b[8:12])
	return f, nil
}

// stateFrame is the decoded STATE (FWID negotiation) packet: a REQ
// (Authority==0) or a READY (Authority>0, with transaction id and
// MIC) offer for dfu_type Type.
type stateFrame struct {
	Type          fwid.Type
	Authority     uint8
	TransactionID uint32
	MIC           txn.MIC
	Target        fwid.FWID
}

func encodeREQ(t fwid.Type, target fwid.FWID) []byte {
	b := make([]byte, 2, 2+idLen(t))
	b[0] = byte(t)
	b[1] = 0 // authority
	b = append(b, encodeID(t, target)...)
	return b
}

func encodeREADY(t fwid.Type, authority uint8, transactionID uint32, mic txn.MIC, target fwid.FWID) []byte {
	b := make([]byte, 2, 2+4+8+idLen(t))
	b[0] = byte(t)
	b[1] = authority
	var tidb [4]byte
	binary.LittleEndian.PutUint32(tidb[:], transactionID)
	b = append(b, tidb[:]...)
	b = append(b, mic[:]...)
	b = append(b, encodeID(t, target)...)
	return b
}

func decodeState(payload []byte) (stateFrame, error) {
	var sf stateFrame
	if len(payload) < 2 {
		return sf, errMalformed
	}
	t := fwid.Type(payload[0])
	if t != fwid.App_ && t != fwid.BL && t != fwid.Runtime {
		return sf, errMalformed
	}
	sf.Type = t
	sf.Authority = payload[1]
	rest := payload[2:]
	if sf.Authority == 0 {
		target, err := decodeID(t, rest)
		if err != nil {
			return sf, err
		}
		sf.Target = target
		return sf, nil
	}
	if len(rest) != 4+8+idLen(t) {
		return sf, errMalformed
	}
	sf.TransactionID = binary.LittleEndian.Uint32(rest[0:4])
	copy(sf.MIC[:], rest[4:12])
	target, err := decodeID(t, rest[12:])
	if err != nil {
		return sf, err
	}
	sf.Target = target
	return sf, nil
}

// startMeta is the segment-0 start metadata reinterpreted from a
// DATA frame's bytes field (§6, §4.6).
type startMeta struct {
	StartAddr       uint32
	LengthWords     uint32
	SignatureLength uint16
	Last            bool
}

const dataHeaderLen = 4 + 2 // transaction_id(4B) + segment(2B)
const startMetaLen = 4 + 4 + 2 + 1

// dataFrame is a decoded DATA frame (§6).
type dataFrame struct {
	TransactionID uint32
	Segment       uint16
	Payload       []byte // raw bytes field, meaning depends on Segment
}

func decodeData(payload []byte) (dataFrame, error) {
	var d dataFrame
	if len(payload) < dataHeaderLen {
		return d, errMalformed
	}
	d.TransactionID = binary.LittleEndian.Uint32(payload[0:4])
	d.Segment = binary.LittleEndian.Uint16(payload[4:6])
	d.Payload = payload[dataHeaderLen:]
	return d, nil
}

func decodeStartMeta(b []byte) (startMeta, error) {
	var m startMeta
	if len(b) < startMetaLen {
		return m, errMalformed
	}
	m.StartAddr = binary.LittleEndian.Uint32(b[0:4])
	m.LengthWords = binary.LittleEndian.Uint32(b[4:8])
	m.SignatureLength = binary.LittleEndian.Uint16(b[8:10])
	m.Last = b[10] != 0
	return m, nil
}

func encodeStartPacket(transactionID uint32, m startMeta) []byte {
	b := make([]byte, dataHeaderLen+startMetaLen)
	binary.LittleEndian.PutUint32(b[0:4], transactionID)
	binary.LittleEndian.PutUint16(b[4:6], 0) // segment 0
	binary.LittleEndian.PutUint32(b[6:10], m.StartAddr)
	binary.LittleEndian.PutUint32(b[10:14], m.LengthWords)
	binary.LittleEndian.PutUint16(b[14:16], m.SignatureLength)
	if m.Last {
		b[16] = 1
	}
	return b
}

func encodeDataSegment(transactionID uint32, segment uint16, bytes []byte) []byte {
	b := make([]byte, dataHeaderLen+len(bytes))
	binary.LittleEndian.PutUint32(b[0:4], transactionID)
	binary.LittleEndian.PutUint16(b[4:6], segment)
	copy(b[dataHeaderLen:], bytes)
	return b
}

// dataReqFrame is a decoded DATA_REQ frame.
type dataReqFrame struct {
	TransactionID uint32
	Segment       uint16
}

func decodeDataReq(payload []byte) (dataReqFrame, error) {
	var d dataReqFrame
	if len(payload) != 6 {
		return d, errMalformed
	}
	d.TransactionID = binary.LittleEndian.Uint32(payload[0:4])
	d.Segment = binary.LittleEndian.Uint16(payload[4:6])
	return d, nil
}

func encodeDataReq(transactionID uint32, segment uint16) []byte {
	b := make([]byte, 6)
	binary.LittleEndian.PutUint32(b[0:4], transactionID)
	binary.LittleEndian.PutUint16(b[4:6], segment)
	return b
}

const dataRspPayloadLen = 16

// dataRspFrame is a decoded DATA_RSP frame.
type dataRspFrame struct {
	TransactionID uint32
	Segment       uint16
	Bytes         [dataRspPayloadLen]byte
}

func decodeDataRsp(payload []byte) (dataRspFrame, error) {
	var d dataRspFrame
	if len(payload) != 6+dataRspPayloadLen {
		return d, errMalformed
	}
	d.TransactionID = binary.LittleEndian.Uint32(payload[0:4])
	d.Segment = binary.LittleEndian.Uint16(payload[4:6])
	copy(d.Bytes[:], payload[6:])
	return d, nil
}

func encodeDataRsp(transactionID uint32, segment uint16, bytes []byte) []byte {
	b := make([]byte, 6+dataRspPayloadLen)
	binary.LittleEndian.PutUint32(b[0:4], transactionID)
	binary.LittleEndian.PutUint16(b[4:6], segment)
	copy(b[6:], bytes)
	return b
}
