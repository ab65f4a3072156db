package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepClock_AdvancesPerReading(t *testing.T) {
	clock := NewStepClock(Epoch, time.Second)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Peek())
}

func TestStepClock_AdvanceAndSet(t *testing.T) {
	clock := NewStepClock(Epoch, 0)

	clock.Advance(time.Hour)
	assert.Equal(t, Epoch.Add(time.Hour), clock.Now())
	assert.Equal(t, Epoch.Add(time.Hour), clock.Now())

	clock.Set(Epoch)
	assert.Equal(t, Epoch, clock.Peek())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(Epoch, time.Nanosecond)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[time.Time]bool)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				ts := clock.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, numGoroutines*callsPerGoroutine, "every reading must be distinct")
}

func TestSequenceIDs(t *testing.T) {
	g := NewSequenceIDs("user")
	assert.Equal(t, "user-0001", g.NewID())
	assert.Equal(t, "user-0002", g.NewID())
	assert.Equal(t, "id-0001", NewSequenceIDs("").NewID())
}

func TestFixedIDs(t *testing.T) {
	g := NewFixedIDs("a", "b")
	assert.Equal(t, "a", g.NewID())
	assert.Equal(t, "b", g.NewID())
	assert.Panics(t, func() { g.NewID() })
}
