package intr

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pinwheel-io/pinwheel/service/lines"
	"github.com/pinwheel-io/pinwheel/service/pins"
)

// Handler is invoked on the monitor goroutine of a pin for every
// accepted edge event. Invocations for one pin are strictly ordered
// and never overlap. Handlers for different pins run concurrently.
type Handler interface {
	HandleEdge(evt lines.Event)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(evt lines.Event)

// HandleEdge invokes the function.
func (f HandlerFunc) HandleEdge(evt lines.Event) {
	f(evt)
}

// Dependencies of an interrupt manager.
type Dependencies struct {
	Log      zerolog.Logger
	Provider lines.Provider
	Pins     *pins.Registry
}

// Manager owns the interrupt registrations of a GPIO runtime.
// Each attached pin is monitored by a dedicated goroutine that blocks
// on the line's edge events and dispatches the registered handler.
type Manager struct {
	Dependencies

	mutex    sync.Mutex
	handlers map[int]*handler
}

// NewManager creates an empty interrupt manager.
func NewManager(deps Dependencies) *Manager {
	deps.Log = deps.Log.With().Str("component", "intr").Logger()
	return &Manager{
		Dependencies: deps,
		handlers:     make(map[int]*handler),
	}
}

type handler struct {
	pin      int
	line     lines.InputLine
	handler  Handler
	mode     lines.Edge
	debounce time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	failed atomic.Bool

	// Dispatch state, owned by the monitor goroutine.
	lastAccepted time.Duration
	haveLast     bool
	dispatched   uint64
	rejected     uint64

	log zerolog.Logger
}

// Options of an interrupt attachment.
type Options struct {
	// Edge selects the transitions to watch. Required.
	Edge lines.Edge
	// Bias of the line.
	Bias lines.Bias
	// Debounce window; edges closer to the previously accepted edge
	// are discarded. Zero disables debouncing.
	Debounce time.Duration
}

// Attach claims the given pin as an input with edge detection and
// starts a monitor goroutine dispatching the given handler.
// Attach does not return until the monitor goroutine has started.
func (m *Manager) Attach(pin int, h Handler, opts Options) error {
	if h == nil {
		return errors.Wrap(NilHandlerError, "handler must be set")
	}
	mode := opts.Edge
	if mode != lines.EdgeRising && mode != lines.EdgeFalling && mode != lines.EdgeBoth {
		return errors.Wrapf(lines.InvalidEdgeError, "mode %d", mode)
	}
	if m.IsAttached(pin) {
		return errors.Wrapf(AlreadyAttachedError, "pin %d", pin)
	}
	if err := m.Pins.Claim(pin, pins.OwnerInterrupt); err != nil {
		return maskAny(err)
	}
	line, err := m.Provider.ClaimInput(pin, mode, opts.Bias)
	if err != nil {
		m.Pins.Release(pin)
		return maskAny(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &handler{
		pin:      pin,
		line:     line,
		handler:  h,
		mode:     mode,
		debounce: opts.Debounce,
		cancel:   cancel,
		done:     make(chan struct{}),
		log:      m.Log.With().Int("pin", pin).Str("mode", mode.String()).Logger(),
	}

	m.mutex.Lock()
	if _, found := m.handlers[pin]; found {
		// Lost a race on the same pin.
		m.mutex.Unlock()
		cancel()
		line.Release()
		m.Pins.Release(pin)
		return errors.Wrapf(AlreadyAttachedError, "pin %d", pin)
	}
	m.handlers[pin] = entry
	m.mutex.Unlock()

	started := make(chan struct{})
	go m.monitor(ctx, entry, started)
	<-started

	interruptsAttachedGauge.Inc()
	entry.log.Debug().Dur("debounce", opts.Debounce).Msg("interrupt attached")
	return nil
}

// Detach stops monitoring the given pin, waits for its monitor
// goroutine to exit and releases the line. Detaching a pin without
// an attached interrupt is a no-op.
func (m *Manager) Detach(pin int) error {
	m.mutex.Lock()
	entry, found := m.handlers[pin]
	if found {
		delete(m.handlers, pin)
	}
	m.mutex.Unlock()
	if !found {
		return nil
	}

	// Unblock the pending edge wait, then wait for the monitor
	// goroutine to exit before releasing the line.
	entry.cancel()
	<-entry.done
	entry.line.Release()
	m.Pins.Release(pin)

	interruptsAttachedGauge.Dec()
	entry.log.Debug().Msg("interrupt detached")
	return nil
}

// IsAttached returns true when the given pin has an attached interrupt.
func (m *Manager) IsAttached(pin int) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, found := m.handlers[pin]
	return found
}

// ActiveCount returns the number of attached interrupts.
func (m *Manager) ActiveCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.handlers)
}

// Status describes one attached interrupt.
type Status struct {
	Pin        int
	Mode       lines.Edge
	Debounce   time.Duration
	Dispatched uint64
	Rejected   uint64
	Failed     bool
}

// StatusAll returns the status of all attached interrupts.
func (m *Manager) StatusAll() []Status {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	result := make([]Status, 0, len(m.handlers))
	for _, entry := range m.handlers {
		result = append(result, Status{
			Pin:        entry.pin,
			Mode:       entry.mode,
			Debounce:   entry.debounce,
			Dispatched: atomic.LoadUint64(&entry.dispatched),
			Rejected:   atomic.LoadUint64(&entry.rejected),
			Failed:     entry.failed.Load(),
		})
	}
	return result
}

// Close detaches all interrupts.
func (m *Manager) Close() error {
	m.mutex.Lock()
	attached := make([]int, 0, len(m.handlers))
	for pin := range m.handlers {
		attached = append(attached, pin)
	}
	m.mutex.Unlock()

	var ae aerr.AggregateError
	for _, pin := range attached {
		ae.Add(m.Detach(pin))
	}
	return ae.AsError()
}

// monitor blocks on the line's edge events until the entry is
// detached, dispatching the handler for every accepted event.
func (m *Manager) monitor(ctx context.Context, entry *handler, started chan<- struct{}) {
	defer close(entry.done)
	close(started)
	entry.log.Debug().Msg("monitor started")
	for {
		evt, err := entry.line.WaitForEdge(ctx)
		if err != nil {
			if errors.Cause(err) == context.Canceled || lines.IsLineClosed(err) {
				// Normal teardown
				entry.log.Debug().Msg("monitor stopped")
				return
			}
			// The line failed underneath us. Mark the entry failed and
			// stop; the failure is observed on the next operation
			// touching this pin.
			entry.failed.Store(true)
			interruptFailuresTotal.Inc()
			entry.log.Error().Err(err).Msg("edge wait failed, monitor stopped")
			return
		}
		if entry.debounce > 0 && entry.haveLast {
			if evt.Timestamp-entry.lastAccepted < entry.debounce {
				atomic.AddUint64(&entry.rejected, 1)
				debounceRejectsTotal.WithLabelValues(strconv.Itoa(entry.pin)).Inc()
				continue
			}
		}
		m.dispatch(entry, evt)
		entry.lastAccepted = evt.Timestamp
		entry.haveLast = true
	}
}

// dispatch invokes the handler, catching panics so that a failing
// callback cannot kill the monitor goroutine.
func (m *Manager) dispatch(entry *handler, evt lines.Event) {
	defer func() {
		if err := recover(); err != nil {
			callbackPanicsTotal.Inc()
			entry.log.Error().Interface("panic", err).Msg("interrupt handler panicked")
		}
	}()
	entry.handler.HandleEdge(evt)
	atomic.AddUint64(&entry.dispatched, 1)
	callbacksTotal.WithLabelValues(strconv.Itoa(entry.pin)).Inc()
}
