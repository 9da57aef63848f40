package pending

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgersync/internal/testutil"
)

func newTestTracker() (*Tracker, *testutil.FakeClock) {
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewTracker(WithClock(clock)), clock
}

func TestKey(t *testing.T) {
	assert.Equal(t, "sales:abc", Key("sales", "abc"))
	assert.Equal(t, "stock:MAIZE", Key("stock", "MAIZE"))
}

func TestTracker_AddContainsRemove(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Add("sales:1")
	assert.True(t, tr.Contains("sales:1"))
	assert.False(t, tr.Contains("sales:2"))
	assert.Equal(t, 1, tr.Len())

	tr.Remove("sales:1")
	assert.False(t, tr.Contains("sales:1"))

	// Removing an absent key is a no-op.
	tr.Remove("sales:1")
	tr.Remove("never-added")
	assert.Equal(t, 0, tr.Len())
}

func TestTracker_ExpiresAfterTTL(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Add("customers:c1")
	clock.Advance(TTL - time.Millisecond)
	assert.True(t, tr.Contains("customers:c1"))

	clock.Advance(time.Millisecond)
	assert.False(t, tr.Contains("customers:c1"))
}

func TestTracker_Consume(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Add("stock:RICE")
	assert.True(t, tr.Consume("stock:RICE"))
	assert.False(t, tr.Consume("stock:RICE"), "a marker is consumed once")
	assert.Equal(t, 0, clock.Scheduled(), "consuming cancels the expiry timer")
}

func TestTracker_ReAddSurvivesStaleTimer(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Add("sales:1")
	clock.Advance(3 * time.Second)
	tr.Add("sales:1")

	// The first marker's deadline passes; the re-added marker stays.
	clock.Advance(3 * time.Second)
	assert.True(t, tr.Contains("sales:1"))

	clock.Advance(2 * time.Second)
	assert.False(t, tr.Contains("sales:1"))
}

func TestTracker_RemoveThenReAdd(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Add("sales:1")
	tr.Remove("sales:1")
	clock.Advance(time.Second)
	tr.Add("sales:1")

	clock.Advance(TTL - time.Second)
	assert.True(t, tr.Contains("sales:1"), "old timer must not remove the new marker")
	clock.Advance(time.Second)
	assert.False(t, tr.Contains("sales:1"))
}

func TestTracker_Reset(t *testing.T) {
	tr, clock := newTestTracker()
	tr.Add("a:1")
	tr.Add("b:2")

	tr.Reset()
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 0, clock.Scheduled())
}

func TestTracker_WithTTL(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	tr := NewTracker(WithClock(clock), WithTTL(time.Second))

	tr.Add("x:1")
	clock.Advance(time.Second)
	assert.False(t, tr.Contains("x:1"))
}

func TestTracker_SystemClock(t *testing.T) {
	tr := NewTracker(WithTTL(10 * time.Millisecond))
	tr.Add("x:1")
	require.True(t, tr.Contains("x:1"))

	require.Eventually(t, func() bool { return !tr.Contains("x:1") }, time.Second, 5*time.Millisecond)
}

func TestTracker_ConcurrentUse(t *testing.T) {
	tr, clock := newTestTracker()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key("sales", fmt.Sprint(i))
			tr.Add(key)
			tr.Contains(key)
			if i%2 == 0 {
				tr.Consume(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, tr.Len())
	clock.Advance(TTL)
	assert.Equal(t, 0, tr.Len())
}
