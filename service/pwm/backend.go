package pwm

import "github.com/pkg/errors"

// Backend selects the PWM generation strategy of a channel.
type Backend byte

const (
	// BackendSoftware toggles the line from a dedicated goroutine with
	// busy-wait timing. Lowest jitter of the software strategies
	// (sub-5us typical), highest CPU cost.
	BackendSoftware Backend = iota
	// BackendEvent toggles the line from a dedicated goroutine that
	// sleeps until absolute deadlines. Slightly higher jitter
	// (sub-10us typical), large CPU reduction.
	BackendEvent
	// BackendHardware programs a kernel PWM channel.
	// Zero jitter, zero CPU, available on few pins only.
	BackendHardware
)

// String returns a human readable name of the backend.
func (b Backend) String() string {
	switch b {
	case BackendSoftware:
		return "software"
	case BackendEvent:
		return "event"
	case BackendHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// ParseBackend parses a human readable backend name.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "software", "busy":
		return BackendSoftware, nil
	case "event", "":
		return BackendEvent, nil
	case "hardware":
		return BackendHardware, nil
	default:
		return BackendEvent, errors.Wrapf(InvalidBackendError, "backend '%s'", s)
	}
}

const (
	// DefaultFrequency matches the Arduino UNO PWM default.
	DefaultFrequency = 490.0

	// Frequency bounds of the software (busy-loop) backend.
	minSoftwareFrequency = 1.0
	maxSoftwareFrequency = 5000.0

	// Frequency bounds of the event-scheduled backend.
	minEventFrequency = 50.0
	maxEventFrequency = 10000.0
)

// clampFrequency clamps the given frequency into the valid range of
// the given backend. The hardware backend accepts any positive value.
func clampFrequency(frequencyHz float64, backend Backend) float64 {
	min, max := 0.0, 0.0
	switch backend {
	case BackendSoftware:
		min, max = minSoftwareFrequency, maxSoftwareFrequency
	case BackendEvent:
		min, max = minEventFrequency, maxEventFrequency
	default:
		return frequencyHz
	}
	if frequencyHz < min {
		return min
	}
	if frequencyHz > max {
		return max
	}
	return frequencyHz
}

// clampDuty clamps the given duty cycle into [0, 100] percent.
func clampDuty(dutyPercent float64) float64 {
	if dutyPercent < 0 {
		return 0
	}
	if dutyPercent > 100 {
		return 100
	}
	return dutyPercent
}

// dutyFrom8Bit converts an Arduino style 0-255 value to percent.
func dutyFrom8Bit(value uint8) float64 {
	return float64(value) / 255.0 * 100.0
}
