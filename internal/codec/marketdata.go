package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

// Market-data payloads are length-prefixed because book depth varies;
// order-flow payloads in this package stay fixed-layout where they can.

// EncodeBook serializes a book snapshot.
func EncodeBook(dst []byte, b schema.BookSnapshot) []byte {
	dst = dst[:0]
	var tmp [8]byte

	binary.LittleEndian.PutUint32(tmp[0:4], uint32(b.SymbolID))
	dst = append(dst, tmp[:4]...)
	binary.LittleEndian.PutUint16(tmp[0:2], uint16(b.Venue))
	dst = append(dst, tmp[:2]...)
	binary.LittleEndian.PutUint64(tmp[0:8], uint64(b.TsEvent))
	dst = append(dst, tmp[:8]...)

	dst = appendLevels(dst, b.Bids)
	dst = appendLevels(dst, b.Asks)
	return dst
}

// DecodeBook parses a book snapshot payload.
func DecodeBook(src []byte) (schema.BookSnapshot, bool) {
	if len(src) < 14 {
		return schema.BookSnapshot{}, false
	}
	b := schema.BookSnapshot{
		SymbolID: schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Venue:    schema.VenueID(binary.LittleEndian.Uint16(src[4:6])),
		TsEvent:  int64(binary.LittleEndian.Uint64(src[6:14])),
	}
	rest := src[14:]
	var ok bool
	if b.Bids, rest, ok = readLevels(rest); !ok {
		return schema.BookSnapshot{}, false
	}
	if b.Asks, _, ok = readLevels(rest); !ok {
		return schema.BookSnapshot{}, false
	}
	return b, true
}

const TradePayloadSize = 32

// EncodeTrade serializes a trade tick into a fixed-size payload.
func EncodeTrade(dst []byte, t schema.TradeTick) []byte {
	if cap(dst) < TradePayloadSize {
		dst = make([]byte, TradePayloadSize)
	} else {
		dst = dst[:TradePayloadSize]
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(t.SymbolID))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(t.Venue))
	binary.LittleEndian.PutUint16(dst[6:8], uint16(t.Side))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(t.TsEvent))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(t.Price))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(t.Size))
	return dst
}

// DecodeTrade parses a fixed-size trade payload.
func DecodeTrade(src []byte) (schema.TradeTick, bool) {
	if len(src) < TradePayloadSize {
		return schema.TradeTick{}, false
	}
	return schema.TradeTick{
		SymbolID: schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Venue:    schema.VenueID(binary.LittleEndian.Uint16(src[4:6])),
		Side:     schema.Side(binary.LittleEndian.Uint16(src[6:8])),
		TsEvent:  int64(binary.LittleEndian.Uint64(src[8:16])),
		Price:    schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		Size:     schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
	}, true
}

const GapPayloadSize = 16

// EncodeGap serializes a feed gap signal.
func EncodeGap(dst []byte, g schema.Gap) []byte {
	if cap(dst) < GapPayloadSize {
		dst = make([]byte, GapPayloadSize)
	} else {
		dst = dst[:GapPayloadSize]
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(g.SymbolID))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(g.Venue))
	dst[6] = 0
	if g.Resumed {
		dst[6] = 1
	}
	dst[7] = 0
	binary.LittleEndian.PutUint64(dst[8:16], uint64(g.TsEvent))
	return dst
}

// DecodeGap parses a feed gap payload.
func DecodeGap(src []byte) (schema.Gap, bool) {
	if len(src) < GapPayloadSize {
		return schema.Gap{}, false
	}
	return schema.Gap{
		SymbolID: schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Venue:    schema.VenueID(binary.LittleEndian.Uint16(src[4:6])),
		Resumed:  src[6] == 1,
		TsEvent:  int64(binary.LittleEndian.Uint64(src[8:16])),
	}, true
}

func appendLevels(dst []byte, levels []schema.BookLevel) []byte {
	if len(levels) > schema.MaxBookDepth {
		levels = levels[:schema.MaxBookDepth]
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint16(tmp[0:2], uint16(len(levels)))
	dst = append(dst, tmp[:2]...)
	for _, lvl := range levels {
		binary.LittleEndian.PutUint64(tmp[0:8], uint64(lvl.Price))
		dst = append(dst, tmp[:8]...)
		binary.LittleEndian.PutUint64(tmp[0:8], uint64(lvl.Size))
		dst = append(dst, tmp[:8]...)
	}
	return dst
}

func readLevels(src []byte) ([]schema.BookLevel, []byte, bool) {
	if len(src) < 2 {
		return nil, nil, false
	}
	n := int(binary.LittleEndian.Uint16(src[0:2]))
	src = src[2:]
	if n > schema.MaxBookDepth || len(src) < n*16 {
		return nil, nil, false
	}
	levels := make([]schema.BookLevel, n)
	for i := 0; i < n; i++ {
		off := i * 16
		levels[i] = schema.BookLevel{
			Price: schema.Price(int64(binary.LittleEndian.Uint64(src[off : off+8]))),
			Size:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[off+8 : off+16]))),
		}
	}
	return levels, src[n*16:], true
}
