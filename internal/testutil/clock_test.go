package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFakeClock_FiresWhenDue(t *testing.T) {
	clock := NewFakeClock(epoch)
	fired := 0
	clock.AfterFunc(5*time.Second, func() { fired++ })

	clock.Advance(4 * time.Second)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 1, clock.Scheduled())

	clock.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, clock.Scheduled())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, fired, "timers fire once")
	assert.Equal(t, epoch.Add(time.Minute+5*time.Second), clock.Now())
}

func TestFakeClock_Stop(t *testing.T) {
	clock := NewFakeClock(epoch)
	fired := false
	stop := clock.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, stop())
	assert.False(t, stop(), "second stop reports already stopped")

	clock.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFakeClock_FiresInDueOrder(t *testing.T) {
	clock := NewFakeClock(epoch)
	var order []string
	clock.AfterFunc(3*time.Second, func() { order = append(order, "late") })
	clock.AfterFunc(1*time.Second, func() { order = append(order, "early") })

	clock.Advance(10 * time.Second)
	require.Len(t, order, 2)
	assert.Equal(t, []string{"early", "late"}, order)
}

func TestFakeClock_CallbackMayReschedule(t *testing.T) {
	clock := NewFakeClock(epoch)
	fired := 0
	clock.AfterFunc(time.Second, func() {
		fired++
		clock.AfterFunc(time.Second, func() { fired++ })
	})

	clock.Advance(time.Second)
	assert.Equal(t, 1, fired)
	clock.Advance(time.Second)
	assert.Equal(t, 2, fired)
}

func TestFakeClock_ThreadSafety(t *testing.T) {
	clock := NewFakeClock(epoch)
	var wg sync.WaitGroup
	var mu sync.Mutex
	fired := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.AfterFunc(time.Second, func() {
				mu.Lock()
				fired++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	clock.Advance(time.Second)
	assert.Equal(t, 50, fired)
}
