// Package pcapformat implements the capture-file HeaderParser (§4.E) and
// the resumable StreamParser state machine (§4.F).
package pcapformat

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the fixed size of the capture-file header.
const HeaderLen = 24

// RecordHeaderLen is the fixed size of a per-packet record header.
const RecordHeaderLen = 16

// Magic values. Each encodes two independent booleans: byte order and
// timestamp resolution (§4.E).
const (
	MagicMicroNative  uint32 = 0xA1B2C3D4
	MagicMicroSwapped uint32 = 0xD4C3B2A1
	MagicNanoNative   uint32 = 0xA1B23C4D
	MagicNanoSwapped  uint32 = 0x4D3CB2A1
)

// FileHeader is the decoded 24-byte capture-file header.
type FileHeader struct {
	Magic         uint32
	VersionMajor  uint16
	VersionMinor  uint16
	ThisZone      int32
	SigFigs       uint32
	SnapLen       uint32
	DLT           uint32
	NeedsByteSwap bool
	NanosecondTS  bool
}

// ErrUnknownMagic is returned by ParseFileHeader when the magic number
// matches none of the four accepted values.
type ErrUnknownMagic struct{ Magic uint32 }

func (e ErrUnknownMagic) Error() string {
	return fmt.Sprintf("pcapformat: unknown capture file magic 0x%08X", e.Magic)
}

// ParseFileHeader decodes exactly HeaderLen bytes of buf. buf must be at
// least HeaderLen bytes; only the first HeaderLen are consumed.
func ParseFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < HeaderLen {
		return FileHeader{}, fmt.Errorf("pcapformat: header needs %d bytes, got %d", HeaderLen, len(buf))
	}
	// The four magics are fixed bit patterns (§4.E); encoding/binary reads
	// an explicit byte order regardless of host architecture, so reading
	// the first four bytes little-endian is enough to classify all four.
	magic := binary.LittleEndian.Uint32(buf[0:4])

	var h FileHeader
	switch magic {
	case MagicMicroNative:
		h.Magic, h.NeedsByteSwap, h.NanosecondTS = MagicMicroNative, false, false
	case MagicMicroSwapped:
		h.Magic, h.NeedsByteSwap, h.NanosecondTS = MagicMicroSwapped, true, false
	case MagicNanoNative:
		h.Magic, h.NeedsByteSwap, h.NanosecondTS = MagicNanoNative, false, true
	case MagicNanoSwapped:
		h.Magic, h.NeedsByteSwap, h.NanosecondTS = MagicNanoSwapped, true, true
	default:
		return FileHeader{}, ErrUnknownMagic{Magic: magic}
	}

	order := byteOrder(h.NeedsByteSwap)
	h.VersionMajor = order.Uint16(buf[4:6])
	h.VersionMinor = order.Uint16(buf[6:8])
	h.ThisZone = int32(order.Uint32(buf[8:12]))
	h.SigFigs = order.Uint32(buf[12:16])
	h.SnapLen = order.Uint32(buf[16:20])
	h.DLT = order.Uint32(buf[20:24])
	return h, nil
}

// byteOrder picks the decode order: the four magics are always stored
// little-endian in the file; needsByteSwap means the file was written on a
// big-endian host relative to us, i.e. the remaining fields were written
// in the *opposite* order of the magic's natural representation — for this
// format that means the remaining 32/16-bit fields use big-endian when
// needsByteSwap is set, little-endian otherwise.
func byteOrder(needsByteSwap bool) binary.ByteOrder {
	if needsByteSwap {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// RecordHeader is the decoded 16-byte per-packet header.
type RecordHeader struct {
	TsSec    uint32
	TsFrac   uint32
	CapLen   uint32
	OrigLen  uint32
}

// ParseRecordHeader decodes exactly RecordHeaderLen bytes of buf using the
// given byte order.
func ParseRecordHeader(buf []byte, needsByteSwap bool) RecordHeader {
	order := byteOrder(needsByteSwap)
	return RecordHeader{
		TsSec:   order.Uint32(buf[0:4]),
		TsFrac:  order.Uint32(buf[4:8]),
		CapLen:  order.Uint32(buf[8:12]),
		OrigLen: order.Uint32(buf[12:16]),
	}
}
