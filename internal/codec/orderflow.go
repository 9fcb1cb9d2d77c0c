package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

// EncodeOrderAck serializes an order acknowledgment.
func EncodeOrderAck(dst []byte, ack schema.OrderAck) []byte {
	dst = dst[:0]
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:], ack.ClientID)
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint16(tmp[0:2], uint16(ack.Venue))
	dst = append(dst, tmp[:2]...)
	binary.LittleEndian.PutUint32(tmp[0:4], uint32(ack.SymbolID))
	dst = append(dst, tmp[:4]...)
	binary.LittleEndian.PutUint16(tmp[0:2], uint16(ack.Status))
	dst = append(dst, tmp[:2]...)
	binary.LittleEndian.PutUint16(tmp[0:2], uint16(ack.Reason))
	dst = append(dst, tmp[:2]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(ack.Price))
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(ack.LeavesQty))
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], ack.Generation)
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(ack.TsEvent))
	dst = append(dst, tmp[:]...)
	dst = appendString(dst, ack.VenueOrderID)
	return dst
}

// DecodeOrderAck parses an order acknowledgment payload.
func DecodeOrderAck(src []byte) (schema.OrderAck, bool) {
	if len(src) < 50 {
		return schema.OrderAck{}, false
	}
	ack := schema.OrderAck{
		ClientID:   binary.LittleEndian.Uint64(src[0:8]),
		Venue:      schema.VenueID(binary.LittleEndian.Uint16(src[8:10])),
		SymbolID:   schema.SymbolID(binary.LittleEndian.Uint32(src[10:14])),
		Status:     schema.AckStatus(binary.LittleEndian.Uint16(src[14:16])),
		Reason:     schema.AckReason(binary.LittleEndian.Uint16(src[16:18])),
		Price:      schema.Price(int64(binary.LittleEndian.Uint64(src[18:26]))),
		LeavesQty:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[26:34]))),
		Generation: binary.LittleEndian.Uint64(src[34:42]),
		TsEvent:    int64(binary.LittleEndian.Uint64(src[42:50])),
	}
	var ok bool
	if ack.VenueOrderID, _, ok = readString(src[50:]); !ok {
		return schema.OrderAck{}, false
	}
	return ack, true
}

// EncodeFill serializes a fill.
func EncodeFill(dst []byte, fill schema.Fill) []byte {
	dst = dst[:0]
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:], fill.ClientID)
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint16(tmp[0:2], uint16(fill.Venue))
	dst = append(dst, tmp[:2]...)
	binary.LittleEndian.PutUint32(tmp[0:4], uint32(fill.SymbolID))
	dst = append(dst, tmp[:4]...)
	binary.LittleEndian.PutUint16(tmp[0:2], uint16(fill.Side))
	dst = append(dst, tmp[:2]...)
	binary.LittleEndian.PutUint16(tmp[0:2], uint16(fill.Liquidity))
	dst = append(dst, tmp[:2]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(fill.Price))
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(fill.Qty))
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(fill.Fee))
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(fill.TsEvent))
	dst = append(dst, tmp[:]...)
	dst = appendString(dst, fill.VenueOrderID)
	dst = appendString(dst, fill.FillID)
	return dst
}

// DecodeFill parses a fill payload.
func DecodeFill(src []byte) (schema.Fill, bool) {
	if len(src) < 50 {
		return schema.Fill{}, false
	}
	fill := schema.Fill{
		ClientID:  binary.LittleEndian.Uint64(src[0:8]),
		Venue:     schema.VenueID(binary.LittleEndian.Uint16(src[8:10])),
		SymbolID:  schema.SymbolID(binary.LittleEndian.Uint32(src[10:14])),
		Side:      schema.Side(binary.LittleEndian.Uint16(src[14:16])),
		Liquidity: schema.Liquidity(binary.LittleEndian.Uint16(src[16:18])),
		Price:     schema.Price(int64(binary.LittleEndian.Uint64(src[18:26]))),
		Qty:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[26:34]))),
		Fee:       schema.Fee(int64(binary.LittleEndian.Uint64(src[34:42]))),
		TsEvent:   int64(binary.LittleEndian.Uint64(src[42:50])),
	}
	rest := src[50:]
	var ok bool
	if fill.VenueOrderID, rest, ok = readString(rest); !ok {
		return schema.Fill{}, false
	}
	if fill.FillID, _, ok = readString(rest); !ok {
		return schema.Fill{}, false
	}
	return fill, true
}

const RiskTransitionPayloadSize = 16

// EncodeRiskTransition serializes a risk transition audit record.
func EncodeRiskTransition(dst []byte, tr schema.RiskTransition) []byte {
	if cap(dst) < RiskTransitionPayloadSize {
		dst = make([]byte, RiskTransitionPayloadSize)
	} else {
		dst = dst[:RiskTransitionPayloadSize]
	}
	binary.LittleEndian.PutUint16(dst[0:2], uint16(tr.From))
	binary.LittleEndian.PutUint16(dst[2:4], uint16(tr.To))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(tr.Reason))
	binary.LittleEndian.PutUint16(dst[6:8], uint16(tr.Venue))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(tr.TsEvent))
	return dst
}

// DecodeRiskTransition parses a risk transition payload.
func DecodeRiskTransition(src []byte) (schema.RiskTransition, bool) {
	if len(src) < RiskTransitionPayloadSize {
		return schema.RiskTransition{}, false
	}
	return schema.RiskTransition{
		From:    schema.RiskMode(binary.LittleEndian.Uint16(src[0:2])),
		To:      schema.RiskMode(binary.LittleEndian.Uint16(src[2:4])),
		Reason:  schema.RiskReason(binary.LittleEndian.Uint16(src[4:6])),
		Venue:   schema.VenueID(binary.LittleEndian.Uint16(src[6:8])),
		TsEvent: int64(binary.LittleEndian.Uint64(src[8:16])),
	}, true
}

const HedgePayloadSize = 40

// EncodeHedge serializes a hedge instruction.
func EncodeHedge(dst []byte, h schema.HedgeInstruction) []byte {
	if cap(dst) < HedgePayloadSize {
		dst = make([]byte, HedgePayloadSize)
	} else {
		dst = dst[:HedgePayloadSize]
	}
	binary.LittleEndian.PutUint16(dst[0:2], uint16(h.Kind))
	binary.LittleEndian.PutUint16(dst[2:4], uint16(h.Venue))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(h.SymbolID))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(h.Side))
	binary.LittleEndian.PutUint16(dst[10:12], 0)
	binary.LittleEndian.PutUint64(dst[12:20], uint64(h.Qty))
	binary.LittleEndian.PutUint64(dst[20:28], uint64(h.LimitPrice))
	binary.LittleEndian.PutUint32(dst[28:32], uint32(h.MaxSlippageBps))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(h.TsEvent))
	return dst
}

// DecodeHedge parses a hedge instruction payload.
func DecodeHedge(src []byte) (schema.HedgeInstruction, bool) {
	if len(src) < HedgePayloadSize {
		return schema.HedgeInstruction{}, false
	}
	return schema.HedgeInstruction{
		Kind:           schema.HedgeKind(binary.LittleEndian.Uint16(src[0:2])),
		Venue:          schema.VenueID(binary.LittleEndian.Uint16(src[2:4])),
		SymbolID:       schema.SymbolID(binary.LittleEndian.Uint32(src[4:8])),
		Side:           schema.Side(binary.LittleEndian.Uint16(src[8:10])),
		Qty:            schema.Quantity(int64(binary.LittleEndian.Uint64(src[12:20]))),
		LimitPrice:     schema.Price(int64(binary.LittleEndian.Uint64(src[20:28]))),
		MaxSlippageBps: int64(int32(binary.LittleEndian.Uint32(src[28:32]))),
		TsEvent:        int64(binary.LittleEndian.Uint64(src[32:40])),
	}, true
}

func appendString(dst []byte, s string) []byte {
	if len(s) > int(^uint16(0)) {
		s = s[:^uint16(0)]
	}
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(s)))
	dst = append(dst, tmp[:]...)
	return append(dst, s...)
}

func readString(src []byte) (string, []byte, bool) {
	if len(src) < 2 {
		return "", nil, false
	}
	n := int(binary.LittleEndian.Uint16(src[0:2]))
	src = src[2:]
	if len(src) < n {
		return "", nil, false
	}
	return string(src[:n]), src[n:], true
}
