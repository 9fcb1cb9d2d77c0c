package schema

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 2

// EventType defines the category of an event carried on the bus and journal.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventBook
	EventTrade
	EventGap
	EventOrderAck
	EventFill
	EventQuote
	EventHedge
	EventRiskTransition
	EventTimer
)

// EventHeader is the common metadata attached to every event.
type EventHeader struct {
	Type    EventType
	Version uint16
	Venue   VenueID
	Flags   uint16
	Seq     uint64
	TsEvent int64
	TsRecv  int64
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, venue VenueID, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Venue:   venue,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}
