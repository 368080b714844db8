package arduino

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinwheel-io/pinwheel/service"
	"github.com/pinwheel-io/pinwheel/service/lines"
)

func newTestBoard(t *testing.T) (*Board, *lines.Stub) {
	t.Helper()
	stub := lines.NewStub()
	runtime, err := service.NewService(service.Config{}, service.Dependencies{
		Log:      zerolog.Nop(),
		Provider: stub,
	})
	require.NoError(t, err)
	t.Cleanup(func() { runtime.Close() })
	return NewBoard(runtime), stub
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

func TestDigital(t *testing.T) {
	b, stub := newTestBoard(t)

	require.NoError(t, b.PinMode(13, OUTPUT))
	assert.False(t, stub.Level(13))
	require.NoError(t, b.DigitalWrite(13, HIGH))
	assert.True(t, stub.Level(13))
	require.NoError(t, b.DigitalWrite(13, LOW))
	assert.False(t, stub.Level(13))

	require.NoError(t, b.PinMode(2, INPUT_PULLUP))
	stub.SetLevel(2, true)
	on, err := b.DigitalRead(2)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestPinModeChangeReleasesClaim(t *testing.T) {
	b, stub := newTestBoard(t)

	require.NoError(t, b.PinMode(13, OUTPUT))
	assert.True(t, stub.IsClaimed(13))
	require.NoError(t, b.PinMode(13, INPUT))
	assert.False(t, stub.IsClaimed(13))
}

func TestAnalogWrite(t *testing.T) {
	b, stub := newTestBoard(t)

	require.NoError(t, b.AnalogWrite(9, 128))
	assert.True(t, stub.IsClaimed(9))
	// Adjusting the duty reuses the channel.
	require.NoError(t, b.AnalogWrite(9, 255))
	require.True(t, waitFor(t, time.Second, func() bool {
		return stub.Level(9)
	}), "255 must drive the pin HIGH")

	require.NoError(t, b.NoAnalogWrite(9))
	assert.False(t, stub.IsClaimed(9))
	assert.False(t, stub.Level(9))
	// Stopping again is a no-op.
	require.NoError(t, b.NoAnalogWrite(9))
}

func TestInterrupts(t *testing.T) {
	b, stub := newTestBoard(t)

	var count atomic.Int64
	require.NoError(t, b.AttachInterrupt(2, func() { count.Add(1) }, RISING))
	stub.TriggerEdge(2, true)
	require.True(t, waitFor(t, time.Second, func() bool {
		return count.Load() == 1
	}))
	require.NoError(t, b.DetachInterrupt(2))
	// Detaching twice is a no-op.
	require.NoError(t, b.DetachInterrupt(2))
}

func TestClock(t *testing.T) {
	b, _ := newTestBoard(t)
	start := b.Millis()
	b.Delay(10)
	assert.GreaterOrEqual(t, b.Millis()-start, uint64(10))
	assert.Greater(t, b.Micros(), uint64(0))
}
