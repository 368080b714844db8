package bridge

import (
	"time"

	"github.com/pkg/errors"
)

var maskAny = errors.WithStack

// API of the status bridge: the LEDs used to signal daemon health on
// boards that have them wired up.
type API interface {
	// Turn Green status led on/off
	SetGreenLED(on bool) error
	// Turn Red status led on/off
	SetRedLED(on bool) error
	// Blink Green status led with given duration between on/off
	BlinkGreenLED(delay time.Duration) error
	// Blink Red status led with given duration between on/off
	BlinkRedLED(delay time.Duration) error

	Close() error
}
