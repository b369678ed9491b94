package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_ZeroStartUsesDefault(t *testing.T) {
	c := NewClock(time.Time{}, time.Second)
	assert.Equal(t, DefaultStart, c.Current())
}

func TestClock_NowAdvancesByStep(t *testing.T) {
	c := NewClock(DefaultStart, time.Second)

	assert.Equal(t, DefaultStart, c.Now())
	assert.Equal(t, DefaultStart.Add(time.Second), c.Now())
	assert.Equal(t, DefaultStart.Add(2*time.Second), c.Current())
}

func TestClock_AdvanceAndReset(t *testing.T) {
	c := NewClock(DefaultStart, 0)

	c.Advance(time.Hour)
	assert.Equal(t, DefaultStart.Add(time.Hour), c.Now())
	assert.Equal(t, DefaultStart.Add(time.Hour), c.Now(), "zero step never advances")

	c.Reset()
	assert.Equal(t, DefaultStart, c.Current())
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClock(DefaultStart, time.Millisecond)
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var mu sync.Mutex
	seen := make(map[time.Time]bool)

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				now := c.Now()
				mu.Lock()
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines*callsPerGoroutine, "every Now call returns a distinct instant")
}
