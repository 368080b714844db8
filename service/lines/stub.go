package lines

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Stub is an in-memory line provider for tests and for running the
// daemon on hosts without GPIO hardware. Edge events are injected with
// TriggerEdge; output levels are recorded and can be inspected.
type Stub struct {
	mutex   sync.Mutex
	start   time.Time
	inputs  map[int]*stubInput
	outputs map[int]*stubOutput
	levels  map[int]bool
	writes  map[int]int
}

// NewStub creates an empty stub provider.
func NewStub() *Stub {
	return &Stub{
		start:   time.Now(),
		inputs:  make(map[int]*stubInput),
		outputs: make(map[int]*stubOutput),
		levels:  make(map[int]bool),
		writes:  make(map[int]int),
	}
}

// ClaimInput claims the line at the given pin as an input.
func (s *Stub) ClaimInput(pin int, edge Edge, bias Bias) (InputLine, error) {
	if pin < 0 {
		return nil, errors.Wrapf(InvalidPinError, "pin %d", pin)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, found := s.inputs[pin]; found {
		return nil, errors.Wrapf(LineClaimError, "pin %d already claimed", pin)
	}
	if _, found := s.outputs[pin]; found {
		return nil, errors.Wrapf(LineClaimError, "pin %d already claimed", pin)
	}
	l := &stubInput{
		stub:   s,
		pin:    pin,
		edge:   edge,
		events: make(chan Event, eventQueueSize),
		closed: make(chan struct{}),
	}
	s.inputs[pin] = l
	return l, nil
}

// ClaimOutput claims the line at the given pin as an output.
func (s *Stub) ClaimOutput(pin int, initial bool) (OutputLine, error) {
	if pin < 0 {
		return nil, errors.Wrapf(InvalidPinError, "pin %d", pin)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, found := s.inputs[pin]; found {
		return nil, errors.Wrapf(LineClaimError, "pin %d already claimed", pin)
	}
	if _, found := s.outputs[pin]; found {
		return nil, errors.Wrapf(LineClaimError, "pin %d already claimed", pin)
	}
	l := &stubOutput{stub: s, pin: pin}
	s.outputs[pin] = l
	s.levels[pin] = initial
	return l, nil
}

// SetLevel sets the level observed by Read on an input pin.
func (s *Stub) SetLevel(pin int, on bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.levels[pin] = on
}

// Level returns the last level of the given pin.
// For output pins this is the last written level.
func (s *Stub) Level(pin int) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.levels[pin]
}

// Writes returns the number of writes to the given output pin.
func (s *Stub) Writes(pin int) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.writes[pin]
}

// IsClaimed returns true when the given pin has a live claim.
func (s *Stub) IsClaimed(pin int) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, foundIn := s.inputs[pin]
	_, foundOut := s.outputs[pin]
	return foundIn || foundOut
}

// TriggerEdge injects an edge event on a claimed input pin,
// timestamped on the stub's monotonic clock.
func (s *Stub) TriggerEdge(pin int, rising bool) bool {
	return s.TriggerEdgeAt(pin, rising, time.Since(s.start))
}

// TriggerEdgeAt injects an edge event with an explicit timestamp.
// Returns false when the pin has no claimed input or the edge does
// not match the claimed edge mode.
func (s *Stub) TriggerEdgeAt(pin int, rising bool, timestamp time.Duration) bool {
	s.mutex.Lock()
	l, found := s.inputs[pin]
	if found {
		s.levels[pin] = rising
	}
	s.mutex.Unlock()
	if !found {
		return false
	}
	switch l.edge {
	case EdgeRising:
		if !rising {
			return false
		}
	case EdgeFalling:
		if rising {
			return false
		}
	case EdgeNone:
		return false
	}
	l.seqno++
	evt := Event{
		Pin:       pin,
		Rising:    rising,
		Timestamp: timestamp,
		Seqno:     l.seqno,
	}
	select {
	case l.events <- evt:
		return true
	default:
		// Queue full, drop the event.
		return false
	}
}

func (s *Stub) release(pin int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.inputs, pin)
	delete(s.outputs, pin)
}

type stubInput struct {
	stub   *Stub
	pin    int
	edge   Edge
	seqno  uint32
	events chan Event
	closed chan struct{}
	once   sync.Once
}

// Read the current level of the line.
func (l *stubInput) Read() (bool, error) {
	select {
	case <-l.closed:
		return false, maskAny(LineClosedError)
	default:
	}
	return l.stub.Level(l.pin), nil
}

// WaitForEdge blocks until the next edge event, the given context
// is canceled or the line is released.
func (l *stubInput) WaitForEdge(ctx context.Context) (Event, error) {
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
func (l *stubInput) Release() error {
	l.once.Do(func() {
		close(l.closed)
		l.stub.release(l.pin)
	})
	return nil
}

type stubOutput struct {
	stub *Stub
	pin  int
	once sync.Once
}

// Write the given level to the line.
func (l *stubOutput) Write(on bool) error {
	l.stub.mutex.Lock()
	defer l.stub.mutex.Unlock()
	if _, found := l.stub.outputs[l.pin]; !found {
		return maskAny(LineClosedError)
	}
	l.stub.levels[l.pin] = on
	l.stub.writes[l.pin]++
	return nil
}

// Release the line.
func (l *stubOutput) Release() error {
	l.once.Do(func() {
		l.stub.release(l.pin)
	})
	return nil
}
