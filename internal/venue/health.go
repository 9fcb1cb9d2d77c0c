package venue

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/yanun0323/logs"

	"main/internal/schema"
	"main/pkg/exception"
)

// HealthConfig controls the per-venue circuit breaker.
type HealthConfig struct {
	Name             string
	ConsecutiveFails uint32
	Timeout          time.Duration // open -> half-open probe delay
}

// Guard wraps an ExecutionClient with a circuit breaker. Repeated submit
// failures open the breaker; while open, actions fail fast with
// ErrVenueUnavailable and the state change is reported so the supervisor
// can fence the venue.
type Guard struct {
	client  ExecutionClient
	breaker *gobreaker.CircuitBreaker

	// OnStateChange fires on breaker transitions; down is true when the
	// breaker opened.
	OnStateChange func(venue schema.VenueID, down bool)

	venue schema.VenueID
}

// NewGuard wraps client for the given venue.
func NewGuard(venueID schema.VenueID, client ExecutionClient, cfg HealthConfig) *Guard {
	g := &Guard{client: client, venue: venueID}
	fails := cfg.ConsecutiveFails
	if fails == 0 {
		fails = 5
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= fails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logs.Warnf("venue %s breaker %s -> %s", name, from, to)
			if g.OnStateChange == nil {
				return
			}
			switch to {
			case gobreaker.StateOpen:
				g.OnStateChange(g.venue, true)
			case gobreaker.StateClosed:
				g.OnStateChange(g.venue, false)
			}
		},
	})
	return g
}

// Submit routes the action through the breaker.
func (g *Guard) Submit(action schema.OrderAction) error {
	_, err := g.breaker.Execute(func() (any, error) {
		return nil, g.client.Submit(action)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return exception.ErrVenueUnavailable
	}
	return err
}
