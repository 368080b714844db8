package bridge

import (
	"sync"
	"time"
)

// stubBridge records LED state in memory.
// Used on hosts without status LEDs and in tests.
type stubBridge struct {
	mutex sync.Mutex
	green bool
	red   bool
}

// NewStubBridge implements the bridge for hosts without status LEDs.
func NewStubBridge() API {
	return &stubBridge{}
}

// Turn Green status led on/off
func (s *stubBridge) SetGreenLED(on bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.green = on
	return nil
}

// Turn Red status led on/off
func (s *stubBridge) SetRedLED(on bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.red = on
	return nil
}

// Blink Green status led with given duration between on/off
func (s *stubBridge) BlinkGreenLED(delay time.Duration) error {
	return s.SetGreenLED(true)
}

// Blink Red status led with given duration between on/off
func (s *stubBridge) BlinkRedLED(delay time.Duration) error {
	return s.SetRedLED(true)
}

func (s *stubBridge) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.green = false
	s.red = false
	return nil
}
