package service

import (
	"sync"

	"github.com/pinwheel-io/pinwheel/pkg/util"
	"github.com/pinwheel-io/pinwheel/service/lines"
	"github.com/pinwheel-io/pinwheel/service/pins"
)

// digital tracks plain input/output claims of the runtime, next to
// the interrupt and PWM drivers.
type digital struct {
	mutex   sync.Mutex
	inputs  map[int]lines.InputLine
	outputs map[int]lines.OutputLine
}

// SetOutput drives the given pin as a plain digital output.
// The first write claims the pin.
func (s *service) SetOutput(pin int, on bool) error {
	s.digital.mutex.Lock()
	line, found := s.digital.outputs[pin]
	s.digital.mutex.Unlock()
	if !found {
		if err := s.registry.Claim(pin, pins.OwnerDigital); err != nil {
			return maskAny(err)
		}
		var err error
		line, err = s.Provider.ClaimOutput(pin, on)
		if err != nil {
			s.registry.Release(pin)
			return maskAny(err)
		}
		s.digital.mutex.Lock()
		s.digital.outputs[pin] = line
		s.digital.mutex.Unlock()
		return nil
	}
	if err := line.Write(on); err != nil {
		return maskAny(err)
	}
	return nil
}

// GetInput reads the given pin as a plain digital input.
// The first read claims the pin with the given bias.
func (s *service) GetInput(pin int, bias lines.Bias) (bool, error) {
	s.digital.mutex.Lock()
	line, found := s.digital.inputs[pin]
	s.digital.mutex.Unlock()
	if !found {
		if err := s.registry.Claim(pin, pins.OwnerDigital); err != nil {
			return false, maskAny(err)
		}
		var err error
		line, err = s.Provider.ClaimInput(pin, lines.EdgeNone, bias)
		if err != nil {
			s.registry.Release(pin)
			return false, maskAny(err)
		}
		s.digital.mutex.Lock()
		s.digital.inputs[pin] = line
		s.digital.mutex.Unlock()
	}
	on, err := line.Read()
	if err != nil {
		return false, maskAny(err)
	}
	return on, nil
}

// ReleasePin releases a plain digital claim on the given pin.
// Releasing a pin without a digital claim is a no-op.
func (s *service) ReleasePin(pin int) error {
	s.digital.mutex.Lock()
	in, foundIn := s.digital.inputs[pin]
	out, foundOut := s.digital.outputs[pin]
	delete(s.digital.inputs, pin)
	delete(s.digital.outputs, pin)
	s.digital.mutex.Unlock()
	if !foundIn && !foundOut {
		return nil
	}
	var se util.SyncError
	if foundIn {
		se.Add(in.Release())
	}
	if foundOut {
		se.Add(out.Release())
	}
	s.registry.Release(pin)
	return se.AsError()
}

// closeDigital releases all digital claims.
func (s *service) closeDigital() error {
	s.digital.mutex.Lock()
	claimed := make([]int, 0, len(s.digital.inputs)+len(s.digital.outputs))
	for pin := range s.digital.inputs {
		claimed = append(claimed, pin)
	}
	for pin := range s.digital.outputs {
		claimed = append(claimed, pin)
	}
	s.digital.mutex.Unlock()

	var se util.SyncError
	for _, pin := range claimed {
		se.Add(s.ReleasePin(pin))
	}
	return se.AsError()
}
