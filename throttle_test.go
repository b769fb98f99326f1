package cadence

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/cadence/clock"
)

func TestThrottle_LeadingCommitIsImmediate(t *testing.T) {
	fc := clock.NewFake(epoch)
	th, err := NewThrottle(0, time.Second, WithClock(fc))
	require.NoError(t, err)

	th.Set(1)

	assert.Equal(t, 1, th.Throttled())
	assert.False(t, th.IsThrottled())
	assert.Zero(t, fc.Pending())
}

func TestThrottle_TrailingCommitUsesLatestValue(t *testing.T) {
	fc := clock.NewFake(epoch)
	var commits []int

	th, err := NewThrottle(0, time.Second,
		WithClock(fc),
		OnCommit(func(v int) { commits = append(commits, v) }),
	)
	require.NoError(t, err)

	th.Set(1)
	for _, v := range []int{2, 3, 4} {
		fc.Advance(100 * time.Millisecond)
		th.Set(v)
	}

	assert.Equal(t, 1, th.Throttled())
	assert.True(t, th.IsThrottled())
	assert.Equal(t, 1, fc.Pending(), "trailing timer is replaced, not accumulated")

	fc.Advance(699 * time.Millisecond)
	assert.Equal(t, 1, th.Throttled())

	fc.Advance(time.Millisecond)
	assert.Equal(t, 4, th.Throttled())
	assert.False(t, th.IsThrottled())
	assert.Equal(t, []int{1, 4}, commits)
}

func TestThrottle_WindowElapsedCommitsAtOnce(t *testing.T) {
	fc := clock.NewFake(epoch)
	th, err := NewThrottle(0, time.Second, WithClock(fc))
	require.NoError(t, err)

	th.Set(1)
	fc.Advance(time.Second)
	th.Set(2)

	assert.Equal(t, 2, th.Throttled())
	assert.False(t, th.IsThrottled())
}

func TestThrottle_NoTrailingDropsValues(t *testing.T) {
	fc := clock.NewFake(epoch)
	th, err := NewThrottle(0, time.Second, WithClock(fc), WithTrailing(false))
	require.NoError(t, err)

	th.Set(1)
	fc.Advance(100 * time.Millisecond)
	th.Set(2)
	assert.Zero(t, fc.Pending())

	fc.Advance(2 * time.Second)
	assert.Equal(t, 1, th.Throttled())
	assert.Equal(t, 2, th.Value())

	th.Set(3)
	assert.Equal(t, 3, th.Throttled())
}

func TestThrottle_NoLeadingWaitsForWindow(t *testing.T) {
	fc := clock.NewFake(epoch)
	th, err := NewThrottle(0, time.Second, WithClock(fc), WithLeading(false))
	require.NoError(t, err)

	th.Set(1)
	assert.Equal(t, 0, th.Throttled())
	assert.True(t, th.IsThrottled())

	fc.Advance(time.Second)
	assert.Equal(t, 1, th.Throttled())
}

func TestThrottle_RateCeiling(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		step     time.Duration
		sets     int
	}{
		{name: "dense input", interval: 100 * time.Millisecond, step: 10 * time.Millisecond, sets: 100},
		{name: "input near interval", interval: 100 * time.Millisecond, step: 90 * time.Millisecond, sets: 30},
		{name: "sparse input", interval: 100 * time.Millisecond, step: 250 * time.Millisecond, sets: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := clock.NewFake(epoch)
			var commits int
			th, err := NewThrottle(0, tt.interval,
				WithClock(fc),
				OnCommit(func(int) { commits++ }),
			)
			require.NoError(t, err)

			for i := 1; i <= tt.sets; i++ {
				th.Set(i)
				fc.Advance(tt.step)
			}
			span := time.Duration(tt.sets) * tt.step
			fc.Advance(tt.interval)

			limit := int(math.Ceil(float64(span)/float64(tt.interval))) + 1
			assert.LessOrEqual(t, commits, limit)
			assert.Equal(t, tt.sets, th.Throttled(), "last value is eventually committed")
		})
	}
}

func TestThrottle_CloseCancelsTrailing(t *testing.T) {
	fc := clock.NewFake(epoch)
	th, err := NewThrottle(0, time.Second, WithClock(fc))
	require.NoError(t, err)

	th.Set(1)
	th.Set(2)
	require.True(t, th.IsThrottled())

	th.Close()
	assert.False(t, th.IsThrottled())
	assert.Zero(t, fc.Pending())

	fc.Advance(2 * time.Second)
	assert.Equal(t, 1, th.Throttled())
}

func TestNewThrottle_MismatchedCallback(t *testing.T) {
	_, err := NewThrottle(0, time.Second, OnCommit(func(string) {}))
	assert.Error(t, err)
}
