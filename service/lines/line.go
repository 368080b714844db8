package lines

import (
	"context"
	"time"
)

// Edge selects which transitions on an input line generate events.
type Edge byte

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// String returns a human readable name of the edge mode.
func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// ParseEdge parses a human readable edge mode.
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "rising":
		return EdgeRising, nil
	case "falling":
		return EdgeFalling, nil
	case "both", "change", "":
		return EdgeBoth, nil
	default:
		return EdgeNone, maskAny(InvalidEdgeError)
	}
}

// Bias selects the internal pull resistor of an input line.
type Bias byte

const (
	BiasAsIs Bias = iota
	BiasPullUp
	BiasPullDown
)

// Event describes one edge event reported on an input line.
type Event struct {
	// Pin the event was detected on.
	Pin int
	// Rising is true for a LOW to HIGH transition.
	Rising bool
	// Timestamp of the event on a monotonic clock.
	// Only differences between timestamps are meaningful.
	Timestamp time.Duration
	// Seqno is the sequence number of this event on the line.
	Seqno uint32
}

// InputLine is a claimed input line with edge detection.
type InputLine interface {
	// Read the current level of the line.
	Read() (bool, error)
	// WaitForEdge blocks until the next edge event, the given context
	// is canceled or the line is released.
	WaitForEdge(ctx context.Context) (Event, error)
	// Release the line, unblocking any pending WaitForEdge.
	Release() error
}

// OutputLine is a claimed output line.
type OutputLine interface {
	// Write the given level to the line.
	Write(on bool) error
	// Release the line.
	Release() error
}

// Provider claims lines from a GPIO chip.
// A pin has at most one live claim at a time.
type Provider interface {
	// ClaimInput claims the line at the given pin as an input with
	// edge detection in the given mode.
	ClaimInput(pin int, edge Edge, bias Bias) (InputLine, error)
	// ClaimOutput claims the line at the given pin as an output,
	// driven to the given initial level.
	ClaimOutput(pin int, initial bool) (OutputLine, error)
}
