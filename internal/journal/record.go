package journal

import (
	"encoding/binary"
	"hash/crc32"

	"main/internal/schema"
)

// Record framing: a fixed 44-byte header followed by the payload.
//
//	offset size field
//	0      2    event type
//	2      2    schema version
//	4      2    venue id
//	6      2    flags
//	8      8    sequence
//	16     8    ts event (ns)
//	24     8    ts recv (ns)
//	32     8    trace id (low 4 bytes) + payload length
//	40     4    crc32 (header[0:40] + payload)
const (
	headerSize = 44

	offType       = 0
	offVersion    = 2
	offVenue      = 4
	offFlags      = 6
	offSeq        = 8
	offTsEvent    = 16
	offTsRecv     = 24
	offTraceID    = 32
	offPayloadLen = 36
	offChecksum   = 40
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// encodeRecord frames one event into dst.
func encodeRecord(dst []byte, header schema.EventHeader, payload []byte) []byte {
	total := headerSize + len(payload)
	if cap(dst) < total {
		dst = make([]byte, total)
	} else {
		dst = dst[:total]
	}
	binary.LittleEndian.PutUint16(dst[offType:], uint16(header.Type))
	binary.LittleEndian.PutUint16(dst[offVersion:], header.Version)
	binary.LittleEndian.PutUint16(dst[offVenue:], uint16(header.Venue))
	binary.LittleEndian.PutUint16(dst[offFlags:], header.Flags)
	binary.LittleEndian.PutUint64(dst[offSeq:], header.Seq)
	binary.LittleEndian.PutUint64(dst[offTsEvent:], uint64(header.TsEvent))
	binary.LittleEndian.PutUint64(dst[offTsRecv:], uint64(header.TsRecv))
	binary.LittleEndian.PutUint32(dst[offTraceID:], uint32(header.TraceID))
	binary.LittleEndian.PutUint32(dst[offPayloadLen:], uint32(len(payload)))
	copy(dst[headerSize:], payload)

	crc := crc32.Checksum(dst[:offChecksum], crcTable)
	crc = crc32.Update(crc, crcTable, payload)
	binary.LittleEndian.PutUint32(dst[offChecksum:], crc)
	return dst
}

// decodeHeader parses the fixed header and returns the payload length.
func decodeHeader(src []byte) (schema.EventHeader, int, uint32, bool) {
	if len(src) < headerSize {
		return schema.EventHeader{}, 0, 0, false
	}
	header := schema.EventHeader{
		Type:    schema.EventType(binary.LittleEndian.Uint16(src[offType:])),
		Version: binary.LittleEndian.Uint16(src[offVersion:]),
		Venue:   schema.VenueID(binary.LittleEndian.Uint16(src[offVenue:])),
		Flags:   binary.LittleEndian.Uint16(src[offFlags:]),
		Seq:     binary.LittleEndian.Uint64(src[offSeq:]),
		TsEvent: int64(binary.LittleEndian.Uint64(src[offTsEvent:])),
		TsRecv:  int64(binary.LittleEndian.Uint64(src[offTsRecv:])),
		TraceID: uint64(binary.LittleEndian.Uint32(src[offTraceID:])),
	}
	payloadLen := int(binary.LittleEndian.Uint32(src[offPayloadLen:]))
	crc := binary.LittleEndian.Uint32(src[offChecksum:])
	return header, payloadLen, crc, true
}

func checksum(headerBytes, payload []byte) uint32 {
	crc := crc32.Checksum(headerBytes[:offChecksum], crcTable)
	return crc32.Update(crc, crcTable, payload)
}
