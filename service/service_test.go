package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinwheel-io/pinwheel/pkg/config"
	"github.com/pinwheel-io/pinwheel/service/intr"
	"github.com/pinwheel-io/pinwheel/service/lines"
	"github.com/pinwheel-io/pinwheel/service/pins"
	"github.com/pinwheel-io/pinwheel/service/pwm"
)

func newTestService(t *testing.T) (Service, *lines.Stub) {
	t.Helper()
	stub := lines.NewStub()
	s, err := NewService(Config{ProgramVersion: "test"}, Dependencies{
		Log:      zerolog.Nop(),
		Provider: stub,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, stub
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestCrossDriverExclusion(t *testing.T) {
	s, _ := newTestService(t)

	require.NoError(t, s.AttachInterrupt(17, nil, intr.Options{Edge: lines.EdgeBoth}))

	// The same pin cannot be driven by PWM while monitored.
	_, err := s.StartPWM(17, 100, 50, pwm.BackendSoftware)
	require.Error(t, err)
	assert.True(t, pins.IsPinBusy(err))

	// And the other way around.
	id, err := s.StartPWM(18, 100, 50, pwm.BackendSoftware)
	require.NoError(t, err)
	err = s.AttachInterrupt(18, nil, intr.Options{Edge: lines.EdgeBoth})
	require.Error(t, err)
	assert.True(t, pins.IsPinBusy(err))

	// Releasing frees the pin for the other driver.
	require.NoError(t, s.DetachInterrupt(17))
	_, err = s.StartPWM(17, 100, 50, pwm.BackendSoftware)
	require.NoError(t, err)

	require.NoError(t, s.StopPWM(id))
	require.NoError(t, s.AttachInterrupt(18, nil, intr.Options{Edge: lines.EdgeBoth}))
}

func TestIndependentPins(t *testing.T) {
	s, stub := newTestService(t)

	var count17, count27 atomic.Int64
	require.NoError(t, s.AttachInterrupt(17, intr.HandlerFunc(func(lines.Event) {
		count17.Add(1)
	}), intr.Options{Edge: lines.EdgeRising}))
	require.NoError(t, s.AttachInterrupt(27, intr.HandlerFunc(func(lines.Event) {
		count27.Add(1)
	}), intr.Options{Edge: lines.EdgeRising}))
	_, err := s.StartPWM(18, 200, 50, pwm.BackendSoftware)
	require.NoError(t, err)

	stub.TriggerEdge(17, true)
	stub.TriggerEdge(27, true)
	stub.TriggerEdge(27, true)

	require.True(t, waitFor(t, time.Second, func() bool {
		return count17.Load() == 1 && count27.Load() == 2
	}))
	assert.Len(t, s.InterruptStatus(), 2)
	assert.Len(t, s.PWMStatus(), 1)
}

func TestSubscribe(t *testing.T) {
	s, stub := newTestService(t)

	var events atomic.Int64
	var lastPin atomic.Int64
	cb := func(evt EdgeEvent) {
		lastPin.Store(int64(evt.Pin))
		events.Add(1)
	}
	require.NoError(t, s.Subscribe(cb))

	// Monitor without direct handler; subscribers still see events.
	require.NoError(t, s.AttachInterrupt(17, nil, intr.Options{Edge: lines.EdgeBoth}))
	stub.TriggerEdge(17, true)

	require.True(t, waitFor(t, time.Second, func() bool {
		return events.Load() == 1
	}))
	assert.Equal(t, int64(17), lastPin.Load())

	require.NoError(t, s.Unsubscribe(cb))
	stub.TriggerEdge(17, false)
	time.Sleep(time.Millisecond * 50)
	assert.Equal(t, int64(1), events.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := newTestService(t)
	require.NoError(t, s.AttachInterrupt(17, nil, intr.Options{Edge: lines.EdgeBoth}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Empty(t, s.InterruptStatus())
}

func TestApplyConfig(t *testing.T) {
	s, stub := newTestService(t)

	conf := config.New()
	conf.Monitors = []config.Monitor{
		{Pin: 17, Edge: "rising", Debounce: time.Millisecond * 5},
	}
	conf.Outputs = []config.Output{
		{Pin: 18, Duty: 50, Backend: "software"},
	}
	require.NoError(t, ApplyConfig(s, conf, zerolog.Nop()))

	assert.Len(t, s.InterruptStatus(), 1)
	status := s.PWMStatus()
	require.Len(t, status, 1)
	assert.Equal(t, pwm.DefaultFrequency, status[0].FrequencyHz)
	assert.True(t, stub.IsClaimed(17))
	assert.True(t, stub.IsClaimed(18))
}

func TestDigitalIO(t *testing.T) {
	s, stub := newTestService(t)

	require.NoError(t, s.SetOutput(22, true))
	assert.True(t, stub.Level(22))
	require.NoError(t, s.SetOutput(22, false))
	assert.False(t, stub.Level(22))

	// The digital claim blocks the other drivers.
	_, err := s.StartPWM(22, 100, 50, pwm.BackendSoftware)
	require.Error(t, err)
	assert.True(t, pins.IsPinBusy(err))

	stub.SetLevel(23, true)
	on, err := s.GetInput(23, lines.BiasPullDown)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, s.ReleasePin(22))
	require.NoError(t, s.ReleasePin(23))
	// Releasing again is a no-op.
	require.NoError(t, s.ReleasePin(22))
	assert.False(t, stub.IsClaimed(22))

	_, err = s.StartPWM(22, 100, 50, pwm.BackendSoftware)
	require.NoError(t, err)
}

func TestApplyConfigInvalid(t *testing.T) {
	s, _ := newTestService(t)

	conf := config.New()
	conf.Monitors = []config.Monitor{{Pin: 17, Edge: "sideways"}}
	err := ApplyConfig(s, conf, zerolog.Nop())
	require.Error(t, err)
}
