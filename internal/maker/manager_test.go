package maker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/inventory"
	"main/internal/quote"
	"main/internal/risk"
	"main/internal/schema"
)

type captureSender struct {
	actions []schema.OrderAction
	fail    bool
}

func (c *captureSender) Submit(action schema.OrderAction) error {
	if c.fail {
		return assert.AnError
	}
	c.actions = append(c.actions, action)
	return nil
}

func (c *captureSender) last() schema.OrderAction {
	return c.actions[len(c.actions)-1]
}

func testManager(sender Sender, sup *risk.Supervisor) *Manager {
	return NewManager(Config{
		Venue:             1,
		SymbolID:          1,
		MinActionInterval: time.Millisecond,
	}, sender, sup)
}

func q(gen uint64, bidPx, bidSz, askPx, askSz int64) quote.Quote {
	return quote.Quote{
		BidPrice:   schema.Price(bidPx),
		BidSize:    schema.Quantity(bidSz),
		AskPrice:   schema.Price(askPx),
		AskSize:    schema.Quantity(askSz),
		Generation: gen,
	}
}

func ackFor(action schema.OrderAction, status schema.AckStatus) schema.OrderAck {
	return schema.OrderAck{
		ClientID:     action.ClientID,
		VenueOrderID: "v1",
		Venue:        action.Venue,
		Status:       status,
		Price:        action.Price,
		LeavesQty:    action.Qty,
		Generation:   action.Generation,
	}
}

func TestSyncQuotePlacesBothSides(t *testing.T) {
	sender := &captureSender{}
	m := testManager(sender, nil)

	m.SyncQuote(q(1, 9995, 10, 10005, 10), time.Now(), false)

	require.Len(t, sender.actions, 2)
	assert.Equal(t, schema.ActionPlace, sender.actions[0].Kind)
	assert.Equal(t, schema.SideBuy, sender.actions[0].Side)
	assert.Equal(t, schema.SideSell, sender.actions[1].Side)
	assert.Equal(t, schema.OrderTypeLimit, sender.actions[0].Type)
	assert.Equal(t, schema.TimeInForceGTC, sender.actions[0].TimeInForce)

	bid, ok := m.Slot(schema.SideBuy, 0)
	require.True(t, ok)
	assert.Equal(t, SlotPendingPlace, bid.State)
}

func TestStaleGenerationDiscarded(t *testing.T) {
	sender := &captureSender{}
	m := testManager(sender, nil)

	m.SyncQuote(q(5, 9995, 10, 10005, 10), time.Now(), false)
	n := len(sender.actions)

	m.SyncQuote(q(4, 9990, 10, 10010, 10), time.Now(), false)
	assert.Len(t, sender.actions, n)

	m.SyncQuote(q(5, 9990, 10, 10010, 10), time.Now(), false)
	assert.Len(t, sender.actions, n)
}

func TestReplaceOnPriceDrift(t *testing.T) {
	sender := &captureSender{}
	m := testManager(sender, nil)
	now := time.Now()

	m.SyncQuote(q(1, 9995, 10, 10005, 10), now, false)
	m.OnAck(ackFor(sender.actions[0], schema.AckStatusAcked), now)
	m.OnAck(ackFor(sender.actions[1], schema.AckStatusAcked), now)

	m.SyncQuote(q(2, 9990, 10, 10005, 10), now.Add(10*time.Millisecond), false)

	require.Len(t, sender.actions, 3)
	last := sender.last()
	assert.Equal(t, schema.ActionReplace, last.Kind)
	assert.Equal(t, schema.SideBuy, last.Side)
	assert.Equal(t, schema.Price(9990), last.Price)
	assert.Equal(t, uint64(2), last.Generation)
}

func TestUnchangedQuoteIssuesNothing(t *testing.T) {
	sender := &captureSender{}
	m := testManager(sender, nil)
	now := time.Now()

	m.SyncQuote(q(1, 9995, 10, 10005, 10), now, false)
	m.OnAck(ackFor(sender.actions[0], schema.AckStatusAcked), now)
	m.OnAck(ackFor(sender.actions[1], schema.AckStatusAcked), now)
	n := len(sender.actions)

	m.SyncQuote(q(2, 9995, 10, 10005, 10), now.Add(10*time.Millisecond), false)
	assert.Len(t, sender.actions, n)
}

func TestThrottleDefersThenReconciles(t *testing.T) {
	sender := &captureSender{}
	m := NewManager(Config{
		Venue:             1,
		SymbolID:          1,
		MinActionInterval: time.Second,
	}, sender, nil)
	now := time.Now()

	m.SyncQuote(q(1, 9995, 10, 10005, 10), now, false)
	m.OnAck(ackFor(sender.actions[0], schema.AckStatusAcked), now)
	m.OnAck(ackFor(sender.actions[1], schema.AckStatusAcked), now)
	n := len(sender.actions)

	// drift within the throttle window defers
	m.SyncQuote(q(2, 9990, 10, 10010, 10), now.Add(time.Millisecond), false)
	assert.Len(t, sender.actions, n)

	// the timer tick retries after the window opens
	m.Reconcile(now.Add(2 * time.Second))
	require.Greater(t, len(sender.actions), n)
	assert.Equal(t, schema.ActionReplace, sender.actions[n].Kind)
}

func TestUrgentReplaceBypassesThrottle(t *testing.T) {
	sender := &captureSender{}
	m := NewManager(Config{
		Venue:             1,
		SymbolID:          1,
		MinActionInterval: time.Hour,
	}, sender, nil)
	now := time.Now()

	m.SyncQuote(q(1, 9995, 10, 10005, 10), now, false)
	m.OnAck(ackFor(sender.actions[0], schema.AckStatusAcked), now)
	m.OnAck(ackFor(sender.actions[1], schema.AckStatusAcked), now)
	n := len(sender.actions)

	// a routine reprice inside the window stays deferred
	m.SyncQuote(q(2, 9990, 10, 10010, 10), now.Add(time.Millisecond), false)
	assert.Len(t, sender.actions, n)

	// a crossed quote replaces immediately
	m.SyncQuote(q(3, 9985, 10, 10015, 10), now.Add(2*time.Millisecond), true)
	require.Len(t, sender.actions, n+2)
	for _, a := range sender.actions[n:] {
		assert.Equal(t, schema.ActionReplace, a.Kind)
		assert.Equal(t, uint64(3), a.Generation)
	}
}

func TestZeroSizeTargetCancels(t *testing.T) {
	sender := &captureSender{}
	m := testManager(sender, nil)
	now := time.Now()

	m.SyncQuote(q(1, 9995, 10, 10005, 10), now, false)
	m.OnAck(ackFor(sender.actions[0], schema.AckStatusAcked), now)
	m.OnAck(ackFor(sender.actions[1], schema.AckStatusAcked), now)

	m.SyncQuote(q(2, 9995, 0, 10005, 0), now.Add(10*time.Millisecond), false)

	kinds := map[schema.OrderActionKind]int{}
	for _, a := range sender.actions[2:] {
		kinds[a.Kind]++
	}
	assert.Equal(t, 2, kinds[schema.ActionCancel])
}

func TestCancelAllBypassesThrottle(t *testing.T) {
	sender := &captureSender{}
	m := NewManager(Config{
		Venue:             1,
		SymbolID:          1,
		MinActionInterval: time.Hour,
	}, sender, nil)
	now := time.Now()

	m.SyncQuote(q(1, 9995, 10, 10005, 10), now, true)
	m.OnAck(ackFor(sender.actions[0], schema.AckStatusAcked), now)
	m.OnAck(ackFor(sender.actions[1], schema.AckStatusAcked), now)

	m.CancelAll(now)

	cancels := 0
	for _, a := range sender.actions[2:] {
		if a.Kind == schema.ActionCancel {
			cancels++
		}
	}
	assert.Equal(t, 2, cancels)
	assert.Empty(t, filterOpen(m.OpenOrders(), SlotPendingCancel))
}

func filterOpen(orders []Order, exclude SlotState) []Order {
	out := orders[:0]
	for _, o := range orders {
		if o.State != exclude {
			out = append(out, o)
		}
	}
	return out
}

func TestPartialFillReducesLeaves(t *testing.T) {
	sender := &captureSender{}
	m := testManager(sender, nil)
	now := time.Now()

	var fills []schema.Fill
	m.OnFill = func(f schema.Fill) { fills = append(fills, f) }

	m.SyncQuote(q(1, 9995, 10, 10005, 10), now, false)
	bid := sender.actions[0]
	m.OnAck(ackFor(bid, schema.AckStatusAcked), now)

	m.HandleFill(schema.Fill{
		ClientID: bid.ClientID,
		FillID:   "f1",
		Side:     schema.SideBuy,
		Price:    9995,
		Qty:      4,
	})

	order, ok := m.Slot(schema.SideBuy, 0)
	require.True(t, ok)
	assert.Equal(t, schema.Quantity(6), order.LeavesQty)
	assert.Equal(t, SlotOpen, order.State)
	require.Len(t, fills, 1)

	m.HandleFill(schema.Fill{
		ClientID: bid.ClientID,
		FillID:   "f2",
		Side:     schema.SideBuy,
		Price:    9995,
		Qty:      6,
	})
	order, _ = m.Slot(schema.SideBuy, 0)
	assert.Equal(t, SlotNone, order.State)
	assert.Len(t, fills, 2)
}

func TestRejectClearsSlotAndNotifies(t *testing.T) {
	sender := &captureSender{}
	sup := risk.NewSupervisor(risk.Limits{})
	m := testManager(sender, sup)
	now := time.Now()

	var rejected []schema.OrderAck
	m.OnReject = func(ack schema.OrderAck) { rejected = append(rejected, ack) }

	m.SyncQuote(q(1, 9995, 10, 10005, 10), now, false)
	m.OnAck(ackFor(sender.actions[0], schema.AckStatusRejected), now)

	order, ok := m.Slot(schema.SideBuy, 0)
	require.True(t, ok)
	assert.Equal(t, SlotNone, order.State)
	assert.Len(t, rejected, 1)
}

func TestGateDeniedActionNotSent(t *testing.T) {
	sender := &captureSender{}
	sup := risk.NewSupervisor(risk.Limits{HardInventory: 10})
	m := testManager(sender, sup)

	m.SetPosition(inventory.Position{NetSize: 10})
	m.SyncQuote(q(1, 9995, 5, 10005, 5), time.Now(), false)

	// buying would project past the hard cap; selling reduces
	for _, a := range sender.actions {
		assert.NotEqual(t, schema.SideBuy, a.Side)
	}
}

func TestSubmitFailureFreesSlot(t *testing.T) {
	sender := &captureSender{fail: true}
	m := testManager(sender, nil)

	m.SyncQuote(q(1, 9995, 10, 10005, 10), time.Now(), false)

	order, ok := m.Slot(schema.SideBuy, 0)
	require.True(t, ok)
	assert.Equal(t, SlotNone, order.State)
}
