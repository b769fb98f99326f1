package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_AfterFuncFiresWhenDue(t *testing.T) {
	c := NewFake(epoch)
	fired := 0
	c.AfterFunc(100*time.Millisecond, func() { fired++ })

	c.Advance(99 * time.Millisecond)
	assert.Equal(t, 0, fired)

	c.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)

	// one-shot timers do not fire again
	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFake_StopCancels(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second Stop reports already stopped")

	c.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFake_EveryKeepsCadence(t *testing.T) {
	c := NewFake(epoch)
	var ticks []time.Time
	timer := c.Every(100*time.Millisecond, func() { ticks = append(ticks, c.Now()) })

	c.Advance(350 * time.Millisecond)
	require.Len(t, ticks, 3)
	assert.Equal(t, epoch.Add(100*time.Millisecond), ticks[0])
	assert.Equal(t, epoch.Add(300*time.Millisecond), ticks[2])
	assert.Equal(t, epoch.Add(350*time.Millisecond), c.Now())

	assert.True(t, timer.Stop())
	c.Advance(time.Second)
	assert.Len(t, ticks, 3)
}

func TestFake_EveryPanicsOnNonPositive(t *testing.T) {
	c := NewFake(epoch)
	assert.Panics(t, func() { c.Every(0, func() {}) })
}

func TestFake_CallbacksScheduledWhileAdvancing(t *testing.T) {
	c := NewFake(epoch)
	var order []string

	c.AfterFunc(10*time.Millisecond, func() {
		order = append(order, "first")
		c.AfterFunc(0, func() { order = append(order, "nested") })
	})
	c.AfterFunc(20*time.Millisecond, func() { order = append(order, "second") })

	c.Advance(20 * time.Millisecond)
	assert.Equal(t, []string{"first", "nested", "second"}, order)
}

func TestFake_ZeroDelayFiresOnAdvanceZero(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	c.AfterFunc(0, func() { fired = true })

	assert.False(t, fired)
	c.Advance(0)
	assert.True(t, fired)
}

func TestReal_AfterFuncAndStop(t *testing.T) {
	c := Real()

	var fired atomic.Int32
	c.AfterFunc(5*time.Millisecond, func() { fired.Add(1) })
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)

	cancelled := c.AfterFunc(time.Hour, func() { fired.Add(1) })
	assert.True(t, cancelled.Stop())
}

func TestReal_EveryStops(t *testing.T) {
	c := Real()

	var ticks atomic.Int32
	timer := c.Every(2*time.Millisecond, func() { ticks.Add(1) })
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	// allow a tick that was already running to finish
	time.Sleep(10 * time.Millisecond)
	seen := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, seen, ticks.Load())
}
