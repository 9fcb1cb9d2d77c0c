package hedge

import (
	"time"

	"golang.org/x/time/rate"

	"main/internal/schema"
	"main/pkg/exception"
)

// Taker is the hedge venue's aggressive-order capability: an IOC with a
// price guard derived from the slippage cap.
type Taker interface {
	TakeLiquidity(side schema.Side, qty schema.Quantity, limitPrice schema.Price) error
}

// Executor translates hedge instructions into venue Y orders: taker legs
// through the IOC capability, ladder legs through the passive ladder.
type Executor struct {
	taker  Taker
	ladder *Ladder
	pacer  *rate.Limiter
}

// NewExecutor creates an executor over the venue capabilities.
func NewExecutor(taker Taker, ladder *Ladder, takerPerSecond float64) *Executor {
	if takerPerSecond <= 0 {
		takerPerSecond = 2
	}
	return &Executor{
		taker:  taker,
		ladder: ladder,
		pacer:  rate.NewLimiter(rate.Limit(takerPerSecond), 1),
	}
}

// Ladder exposes the passive ladder for ack/fill routing.
func (e *Executor) Ladder() *Ladder {
	return e.ladder
}

// Execute carries out a hedge plan and reports the taker quantity actually
// sent. Taker legs are paced; a paced-out taker leg is deferred to the next
// inventory change rather than queued. Ladder legs reconcile as a set.
func (e *Executor) Execute(plan []schema.HedgeInstruction, now time.Time, urgent bool) (schema.Quantity, error) {
	var sent schema.Quantity
	var firstErr error
	for _, leg := range plan {
		if leg.Kind != schema.HedgeKindTaker || leg.Qty <= 0 {
			continue
		}
		if !urgent && !e.pacer.AllowN(now, 1) {
			if firstErr == nil {
				firstErr = exception.ErrRateLimited
			}
			continue
		}
		if err := e.taker.TakeLiquidity(leg.Side, leg.Qty, leg.LimitPrice); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent += leg.Qty
	}
	e.ladder.Sync(plan, now, urgent)
	return sent, firstErr
}
