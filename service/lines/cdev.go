package lines

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	gpiocdev "github.com/warthog618/go-gpiocdev"
)

const (
	// DefaultChip is the GPIO chip used when none is configured.
	DefaultChip = "gpiochip0"
	// DefaultConsumer is the consumer label attached to claimed lines.
	DefaultConsumer = "pinwheel"

	// Capacity of the per-line event queue. Events arriving while the
	// queue is full are dropped.
	eventQueueSize = 16
)

// ChardevConfig configures a character device line provider.
type ChardevConfig struct {
	// Chip device name, e.g. "gpiochip0".
	Chip string
	// Consumer label attached to claimed lines.
	Consumer string
}

// NewChardevProvider creates a Provider backed by the kernel GPIO
// character device of the given chip.
func NewChardevProvider(conf ChardevConfig, log zerolog.Logger) Provider {
	if conf.Chip == "" {
		conf.Chip = DefaultChip
	}
	if conf.Consumer == "" {
		conf.Consumer = DefaultConsumer
	}
	return &chardevProvider{
		ChardevConfig: conf,
		log:           log.With().Str("component", "lines").Str("chip", conf.Chip).Logger(),
	}
}

type chardevProvider struct {
	ChardevConfig
	log zerolog.Logger
}

// ClaimInput claims the line at the given pin as an input with
// edge detection in the given mode.
func (p *chardevProvider) ClaimInput(pin int, edge Edge, bias Bias) (InputLine, error) {
	if pin < 0 {
		return nil, errors.Wrapf(InvalidPinError, "pin %d", pin)
	}
	result := &chardevInput{
		pin:    pin,
		events: make(chan Event, eventQueueSize),
		closed: make(chan struct{}),
		log:    p.log.With().Int("pin", pin).Logger(),
	}
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithConsumer(p.Consumer),
		gpiocdev.WithEventHandler(result.handleEvent),
	}
	switch edge {
	case EdgeRising:
		opts = append(opts, gpiocdev.WithRisingEdge)
	case EdgeFalling:
		opts = append(opts, gpiocdev.WithFallingEdge)
	case EdgeBoth:
		opts = append(opts, gpiocdev.WithBothEdges)
	}
	switch bias {
	case BiasPullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case BiasPullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	}
	l, err := gpiocdev.RequestLine(p.Chip, pin, opts...)
	if err != nil {
		return nil, errors.Wrapf(LineClaimError, "pin %d: %s", pin, err.Error())
	}
	result.line = l
	return result, nil
}

// ClaimOutput claims the line at the given pin as an output,
// driven to the given initial level.
func (p *chardevProvider) ClaimOutput(pin int, initial bool) (OutputLine, error) {
	if pin < 0 {
		return nil, errors.Wrapf(InvalidPinError, "pin %d", pin)
	}
	initialValue := 0
	if initial {
		initialValue = 1
	}
	l, err := gpiocdev.RequestLine(p.Chip, pin,
		gpiocdev.AsOutput(initialValue),
		gpiocdev.WithConsumer(p.Consumer))
	if err != nil {
		return nil, errors.Wrapf(LineClaimError, "pin %d: %s", pin, err.Error())
	}
	return &chardevOutput{pin: pin, line: l}, nil
}

type chardevInput struct {
	pin    int
	line   *gpiocdev.Line
	events chan Event
	closed chan struct{}
	once   sync.Once
	log    zerolog.Logger
}

// handleEvent is invoked by the chardev event watcher.
func (l *chardevInput) handleEvent(evt gpiocdev.LineEvent) {
	e := Event{
		Pin:       l.pin,
		Rising:    evt.Type == gpiocdev.LineEventRisingEdge,
		Timestamp: evt.Timestamp,
		Seqno:     evt.Seqno,
	}
	select {
	case l.events <- e:
		// Queued
	default:
		// Queue full, drop the event.
		l.log.Debug().Uint32("seqno", e.Seqno).Msg("event queue full, dropping edge event")
	}
}

// Read the current level of the line.
func (l *chardevInput) Read() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, maskAny(err)
	}
	return v != 0, nil
}

// WaitForEdge blocks until the next edge event, the given context
// is canceled or the line is released.
func (l *chardevInput) WaitForEdge(ctx context.Context) (Event, error) {
	select {
	case evt := <-l.events:
		return evt, nil
	case <-l.closed:
		return Event{}, maskAny(LineClosedError)
	case <-ctx.Done():
		return Event{}, maskAny(ctx.Err())
	}
}

// Release the line, unblocking any pending WaitForEdge.
func (l *chardevInput) Release() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.line.Close()
	})
	if err != nil {
		return maskAny(err)
	}
	return nil
}

type chardevOutput struct {
	pin  int
	line *gpiocdev.Line
	once sync.Once
}

// Write the given level to the line.
func (l *chardevOutput) Write(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return maskAny(err)
	}
	return nil
}

// Release the line.
func (l *chardevOutput) Release() error {
	var err error
	l.once.Do(func() {
		err = l.line.Close()
	})
	if err != nil {
		return maskAny(err)
	}
	return nil
}
