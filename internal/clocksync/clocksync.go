// Package clocksync implements the clock synchronization controller (C7): a
// small PID controller that turns measured round-trip latency into a
// wall-clock offset consumed by the loop pacer.
package clocksync

import (
	"time"

	"github.com/rusty-dusty/doomnet-client/internal/metrics"
)

// Gains are fixed and empirically tuned; they are not exposed as config.
const (
	gainProportional = 0.1
	gainIntegral     = 0.01
	gainDerivative   = 0.02
)

// Ctx is the persistent PID state, carried across every update call for the
// lifetime of a session.
type Ctx struct {
	OffsetMs        int32
	LastLatency     int32
	CumulativeError int32
	LastError       int32
}

// New returns a zeroed controller.
func New() *Ctx {
	return &Ctx{}
}

// Reset clears all PID state; called whenever the session re-enters InGame.
func (c *Ctx) Reset() {
	*c = Ctx{}
}

// Update folds one latency sample into the controller. latency is the
// measured round-trip-ish delay for a tic this client sent (now minus that
// tic's send time); remoteLatency is the peer's own last-reported latency,
// bundled in the same GAMEDATA payload. It updates OffsetMs/LastLatency and
// publishes OffsetMs to metrics.
func (c *Ctx) Update(latency time.Duration, remoteLatency int16) int32 {
	latencyMs := int32(latency.Milliseconds())
	e := latencyMs - int32(remoteLatency)

	c.CumulativeError += e
	d := c.LastError - e

	offset := gainProportional*float64(e) - gainIntegral*float64(c.CumulativeError) + gainDerivative*float64(d)

	c.OffsetMs = int32(offset)
	c.LastLatency = latencyMs
	c.LastError = e

	metrics.SetClockOffsetMs(c.OffsetMs)
	return c.OffsetMs
}
