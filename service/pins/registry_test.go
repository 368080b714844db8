package pins

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryClaimRelease(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Claim(18, OwnerPWM))

	err := r.Claim(18, OwnerInterrupt)
	assert.True(t, IsPinBusy(err))

	owner, found := r.Owner(18)
	require.True(t, found)
	assert.Equal(t, OwnerPWM, owner)
	assert.Equal(t, 1, r.ActiveCount())

	r.Release(18)
	assert.Equal(t, 0, r.ActiveCount())
	require.NoError(t, r.Claim(18, OwnerInterrupt))
}

func TestRegistryReleaseUnclaimed(t *testing.T) {
	r := NewRegistry()
	// Must not panic or error.
	r.Release(7)
	assert.Equal(t, 0, r.ActiveCount())
}

func TestRegistryConcurrentClaims(t *testing.T) {
	r := NewRegistry()
	const workers = 32
	var wg sync.WaitGroup
	claimed := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := r.Claim(5, OwnerInterrupt); err == nil {
				claimed <- i
			}
		}(i)
	}
	wg.Wait()
	close(claimed)
	count := 0
	for range claimed {
		count++
	}
	assert.Equal(t, 1, count, "exactly one claim must win")
}
