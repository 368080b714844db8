// Package arduino offers the classic Arduino pin functions on top of
// a GPIO runtime, for porting sketch style programs.
package arduino

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/pinwheel-io/pinwheel/service"
	"github.com/pinwheel-io/pinwheel/service/intr"
	"github.com/pinwheel-io/pinwheel/service/lines"
	"github.com/pinwheel-io/pinwheel/service/pwm"
)

// PinMode of a pin.
type PinMode byte

const (
	INPUT PinMode = iota
	OUTPUT
	INPUT_PULLUP
	INPUT_PULLDOWN
)

// Level of a digital pin.
const (
	LOW  = false
	HIGH = true
)

// InterruptMode selects the transitions an interrupt fires on.
type InterruptMode byte

const (
	RISING InterruptMode = iota
	FALLING
	CHANGE
)

// Board wraps a GPIO runtime with the Arduino pin functions.
type Board struct {
	runtime service.Service
	start   time.Time

	mutex sync.Mutex
	modes map[int]PinMode
	// Active analogWrite channels by pin.
	analog map[int]pwm.ChannelID
}

// NewBoard creates a Board driving the given runtime.
func NewBoard(runtime service.Service) *Board {
	return &Board{
		runtime: runtime,
		start:   time.Now(),
		modes:   make(map[int]PinMode),
		analog:  make(map[int]pwm.ChannelID),
	}
}

// PinMode configures the mode of the given pin.
func (b *Board) PinMode(pin int, mode PinMode) error {
	b.mutex.Lock()
	previous, found := b.modes[pin]
	b.modes[pin] = mode
	b.mutex.Unlock()
	if found && previous != mode {
		// Mode change releases the previous claim.
		if err := b.runtime.ReleasePin(pin); err != nil {
			return maskAny(err)
		}
	}
	switch mode {
	case OUTPUT:
		// Claim now, driven LOW.
		if err := b.runtime.SetOutput(pin, LOW); err != nil {
			return maskAny(err)
		}
	case INPUT, INPUT_PULLUP, INPUT_PULLDOWN:
		// Claim lazily on the first read.
	default:
		return errors.Wrapf(InvalidModeError, "mode %d", mode)
	}
	return nil
}

// DigitalWrite drives the given output pin HIGH or LOW.
func (b *Board) DigitalWrite(pin int, level bool) error {
	if err := b.runtime.SetOutput(pin, level); err != nil {
		return maskAny(err)
	}
	return nil
}

// DigitalRead returns the level of the given input pin.
func (b *Board) DigitalRead(pin int) (bool, error) {
	b.mutex.Lock()
	mode := b.modes[pin]
	b.mutex.Unlock()
	bias := lines.BiasAsIs
	switch mode {
	case INPUT_PULLUP:
		bias = lines.BiasPullUp
	case INPUT_PULLDOWN:
		bias = lines.BiasPullDown
	}
	on, err := b.runtime.GetInput(pin, bias)
	if err != nil {
		return false, maskAny(err)
	}
	return on, nil
}

// AnalogWrite generates a PWM signal on the given pin with the given
// 0-255 duty value at the Arduino default frequency.
// The first call starts the signal; later calls adjust the duty cycle.
func (b *Board) AnalogWrite(pin int, value uint8) error {
	b.mutex.Lock()
	id, active := b.analog[pin]
	b.mutex.Unlock()
	if active {
		if err := b.runtime.SetDutyCycle(id, float64(value)/255.0*100.0); err != nil {
			return maskAny(err)
		}
		return nil
	}
	id, err := b.runtime.StartPWM(pin, pwm.DefaultFrequency, float64(value)/255.0*100.0, pwm.BackendSoftware)
	if err != nil {
		return maskAny(err)
	}
	b.mutex.Lock()
	b.analog[pin] = id
	b.mutex.Unlock()
	return nil
}

// NoAnalogWrite stops the PWM signal of an earlier AnalogWrite,
// leaving the pin LOW.
func (b *Board) NoAnalogWrite(pin int) error {
	b.mutex.Lock()
	id, active := b.analog[pin]
	delete(b.analog, pin)
	b.mutex.Unlock()
	if !active {
		return nil
	}
	if err := b.runtime.StopPWM(id); err != nil {
		return maskAny(err)
	}
	return nil
}

// AttachInterrupt registers a callback for edges on the given pin.
func (b *Board) AttachInterrupt(pin int, callback func(), mode InterruptMode) error {
	edge := lines.EdgeBoth
	switch mode {
	case RISING:
		edge = lines.EdgeRising
	case FALLING:
		edge = lines.EdgeFalling
	}
	handler := intr.HandlerFunc(func(lines.Event) {
		callback()
	})
	if err := b.runtime.AttachInterrupt(pin, handler, intr.Options{Edge: edge}); err != nil {
		return maskAny(err)
	}
	return nil
}

// DetachInterrupt removes the interrupt of the given pin.
func (b *Board) DetachInterrupt(pin int) error {
	if err := b.runtime.DetachInterrupt(pin); err != nil {
		return maskAny(err)
	}
	return nil
}

// Delay sleeps for the given number of milliseconds.
func (b *Board) Delay(ms int) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// DelayMicroseconds sleeps for the given number of microseconds.
func (b *Board) DelayMicroseconds(us int) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// Millis returns the milliseconds since the board was created.
func (b *Board) Millis() uint64 {
	return uint64(time.Since(b.start) / time.Millisecond)
}

// Micros returns the microseconds since the board was created.
func (b *Board) Micros() uint64 {
	return uint64(time.Since(b.start) / time.Microsecond)
}

var (
	// InvalidModeError indicates an unknown pin mode.
	InvalidModeError = errors.New("invalid pin mode")
	IsInvalidMode    = isErrorFunc(InvalidModeError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
