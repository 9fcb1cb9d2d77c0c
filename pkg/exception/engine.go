package exception

import "github.com/yanun0323/errors"

// Engine-wide error taxonomy. Components return these sentinels (possibly
// wrapped) so callers can branch on the failure class, not the message.
var (
	// ErrStaleData marks an out-of-order or duplicate market event. The
	// event is dropped and logged; no state is mutated.
	ErrStaleData = errors.New("engine: stale market data")

	// ErrMalformedEvent marks a market event failing basic validation
	// (non-positive price or size). Dropped and logged; distinct from
	// staleness so feed defects are attributed correctly.
	ErrMalformedEvent = errors.New("engine: malformed market event")

	// ErrRateLimited marks a throttled order action. The action is
	// deferred to the next reconciliation pass, never dropped.
	ErrRateLimited = errors.New("engine: action rate limited")

	// ErrOrderRejected marks a venue rejection. The order slot returns to
	// empty and the next quote cycle reconciles.
	ErrOrderRejected = errors.New("engine: order rejected")

	// ErrRiskBreach marks a soft or hard limit violation escalating the
	// risk state.
	ErrRiskBreach = errors.New("engine: risk limit breached")

	// ErrVenueUnavailable marks a venue with no data or acks within the
	// configured timeout.
	ErrVenueUnavailable = errors.New("engine: venue unavailable")

	// ErrDuplicateFill marks a fill whose venue fill ID was already
	// applied to the ledger.
	ErrDuplicateFill = errors.New("engine: duplicate fill")

	// ErrLedgerMismatch marks an irreconcilable fill/position mismatch.
	// Non-recoverable: forces HALTED, never silently corrected.
	ErrLedgerMismatch = errors.New("engine: ledger mismatch")

	// ErrHalted marks an action suppressed because the supervisor is in
	// HALTED mode.
	ErrHalted = errors.New("engine: halted")

	// ErrSlippageCap marks a taker hedge whose estimated execution price
	// exceeds the configured slippage cap. Rejected locally, not sent.
	ErrSlippageCap = errors.New("engine: slippage cap exceeded")

	// ErrInvalidConfig marks a configuration that failed validation. The
	// previous configuration stays in effect.
	ErrInvalidConfig = errors.New("engine: invalid config")
)
