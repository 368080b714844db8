package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
)

// Activity LEDs on the default header pins, wired active low.
const (
	greenLedPin = 23
	redLedPin   = 24
)

// led drives one status LED. A blink goroutine may own the pin until
// the next explicit set.
type led struct {
	number int
	pin    gpio.OutputPin

	mutex       sync.Mutex
	cancelBlink context.CancelFunc
}

func newLed(number int) (*led, error) {
	pin, err := gpio.Output(number, true, false)
	if err != nil {
		return nil, errors.Wrapf(err, "open led pin %d", number)
	}
	return &led{number: number, pin: pin}, nil
}

// set turns the LED on or off, ending any blink in progress.
func (l *led) set(on bool) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.stopBlink()
	if err := l.pin.Write(on); err != nil {
		return errors.Wrapf(err, "write led pin %d", l.number)
	}
	return nil
}

// blink toggles the LED at the given interval until set is called.
func (l *led) blink(interval time.Duration) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.stopBlink()
	ctx, cancel := context.WithCancel(context.Background())
	l.cancelBlink = cancel
	go l.blinkLoop(ctx, interval)
	return nil
}

// stopBlink must be called with the mutex held.
func (l *led) stopBlink() {
	if l.cancelBlink != nil {
		l.cancelBlink()
		l.cancelBlink = nil
	}
}

func (l *led) blinkLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	on := true
	for {
		l.mutex.Lock()
		if ctx.Err() == nil {
			l.pin.Write(on)
		}
		l.mutex.Unlock()
		on = !on
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// piBridge drives the status LEDs of a Raspberry Pi based setup.
type piBridge struct {
	green *led
	red   *led
}

// NewRaspberryPiBridge opens the status LEDs on a Raspberry Pi.
func NewRaspberryPiBridge() (API, error) {
	green, err := newLed(greenLedPin)
	if err != nil {
		return nil, maskAny(err)
	}
	red, err := newLed(redLedPin)
	if err != nil {
		return nil, maskAny(err)
	}
	return &piBridge{green: green, red: red}, nil
}

func (b *piBridge) SetGreenLED(on bool) error {
	return b.green.set(on)
}

func (b *piBridge) SetRedLED(on bool) error {
	return b.red.set(on)
}

func (b *piBridge) BlinkGreenLED(interval time.Duration) error {
	return b.green.blink(interval)
}

func (b *piBridge) BlinkRedLED(interval time.Duration) error {
	return b.red.blink(interval)
}

// Close turns both LEDs off.
func (b *piBridge) Close() error {
	b.green.set(false)
	b.red.set(false)
	return nil
}
