package venue

import "main/internal/schema"

// ExecutionClient is the abstract order capability of one venue. Submission
// is asynchronous: outcomes come back as ack/reject/fill events on the
// venue's event stream.
type ExecutionClient interface {
	Submit(action schema.OrderAction) error
}

// TakerClient is the aggressive-order capability of the hedge venue: an
// IOC guarded by a limit price, filled in whole or part or canceled.
type TakerClient interface {
	TakeLiquidity(side schema.Side, qty schema.Quantity, limitPrice schema.Price) error
}
