package lines

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubClaimExclusive(t *testing.T) {
	s := NewStub()
	l, err := s.ClaimInput(4, EdgeBoth, BiasAsIs)
	require.NoError(t, err)
	_, err = s.ClaimInput(4, EdgeBoth, BiasAsIs)
	assert.True(t, IsLineClaim(err))
	_, err = s.ClaimOutput(4, false)
	assert.True(t, IsLineClaim(err))

	require.NoError(t, l.Release())
	_, err = s.ClaimOutput(4, false)
	assert.NoError(t, err)
}

func TestStubEdgeDelivery(t *testing.T) {
	s := NewStub()
	l, err := s.ClaimInput(17, EdgeRising, BiasPullDown)
	require.NoError(t, err)

	require.True(t, s.TriggerEdgeAt(17, true, time.Millisecond*5))
	// Falling edge must be filtered on a rising-only claim.
	require.False(t, s.TriggerEdgeAt(17, false, time.Millisecond*6))

	evt, err := l.WaitForEdge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 17, evt.Pin)
	assert.True(t, evt.Rising)
	assert.Equal(t, time.Millisecond*5, evt.Timestamp)
}

func TestStubWaitForEdgeCancel(t *testing.T) {
	s := NewStub()
	l, err := s.ClaimInput(21, EdgeBoth, BiasAsIs)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.WaitForEdge(ctx)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitForEdge did not unblock on cancel")
	}
}

func TestStubWaitForEdgeRelease(t *testing.T) {
	s := NewStub()
	l, err := s.ClaimInput(21, EdgeBoth, BiasAsIs)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := l.WaitForEdge(context.Background())
		done <- err
	}()
	// Give the waiter a moment to block.
	time.Sleep(time.Millisecond * 10)
	require.NoError(t, l.Release())
	select {
	case err := <-done:
		assert.True(t, IsLineClosed(err))
	case <-time.After(time.Second):
		t.Fatal("WaitForEdge did not unblock on release")
	}
}

func TestStubOutputRecording(t *testing.T) {
	s := NewStub()
	l, err := s.ClaimOutput(22, false)
	require.NoError(t, err)
	require.NoError(t, l.Write(true))
	assert.True(t, s.Level(22))
	require.NoError(t, l.Write(false))
	assert.False(t, s.Level(22))
	assert.Equal(t, 2, s.Writes(22))

	require.NoError(t, l.Release())
	assert.True(t, IsLineClosed(l.Write(true)))
}

func TestParseEdge(t *testing.T) {
	tests := map[string]Edge{
		"rising":  EdgeRising,
		"falling": EdgeFalling,
		"both":    EdgeBoth,
		"change":  EdgeBoth,
		"":        EdgeBoth,
	}
	for input, expected := range tests {
		actual, err := ParseEdge(input)
		require.NoError(t, err)
		assert.Equal(t, expected, actual)
	}
	_, err := ParseEdge("sideways")
	assert.True(t, IsInvalidEdge(err))
}
