package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/cadence"
	"github.com/jpalmerr/cadence/clock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func statusServer(t *testing.T, code int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

// closedURL returns the URL of a server that no longer accepts connections.
func closedURL(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}

func newTestScheduler(t *testing.T, targets []Target, opts ...SchedulerOption) (*Scheduler, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(epoch)
	opts = append([]SchedulerOption{WithClock(fc)}, opts...)
	s, err := NewScheduler(targets, time.Minute, zerolog.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s, fc
}

func receive(t *testing.T, s *Scheduler) Result {
	t.Helper()
	select {
	case r, ok := <-s.Results():
		require.True(t, ok, "results channel closed")
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a result")
		return Result{}
	}
}

func TestScheduler_PollsImmediateTargetsOnStart(t *testing.T) {
	up := statusServer(t, http.StatusOK, `{"status":"ok"}`)
	degraded := statusServer(t, http.StatusOK, `{"status":"warning"}`)

	s, _ := newTestScheduler(t, []Target{
		mustTarget(t, "api", up.URL, WithLabels("env", "prod")),
		mustTarget(t, "worker", degraded.URL),
	})
	require.NoError(t, s.Start(context.Background()))

	got := map[string]Result{}
	for i := 0; i < 2; i++ {
		r := receive(t, s)
		got[r.Target] = r
	}

	assert.Equal(t, StatusUp, got["api"].Status)
	assert.Equal(t, map[string]string{"env": "prod"}, got["api"].Labels)
	assert.Equal(t, http.StatusOK, got["api"].StatusCode)
	assert.Equal(t, epoch, got["api"].CheckedAt)
	assert.NotEmpty(t, got["api"].SessionID)
	assert.NoError(t, got["api"].Error)

	assert.Equal(t, StatusDegraded, got["worker"].Status)
}

func TestScheduler_PollsAgainEachInterval(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	s, fc := newTestScheduler(t, []Target{
		mustTarget(t, "fast", server.URL, WithInterval(5*time.Second)),
		mustTarget(t, "default", server.URL),
	})
	require.NoError(t, s.Start(context.Background()))
	receive(t, s)
	receive(t, s)

	fc.Advance(5 * time.Second)
	r := receive(t, s)
	assert.Equal(t, "fast", r.Target)
	assert.Equal(t, int32(3), hits.Load())
}

func TestScheduler_FailureCountsRetries(t *testing.T) {
	s, fc := newTestScheduler(t, []Target{
		mustTarget(t, "gone", closedURL(t), WithInterval(time.Second), WithMaxRetries(2)),
	})
	require.NoError(t, s.Start(context.Background()))

	first := receive(t, s)
	assert.Equal(t, StatusDown, first.Status)
	assert.Equal(t, 1, first.RetryCount)
	var fetchErr *FetchError
	assert.True(t, errors.As(first.Error, &fetchErr))

	fc.Advance(time.Second)
	second := receive(t, s)
	assert.Equal(t, 2, second.RetryCount)

	require.Eventually(t, func() bool {
		return !s.Sessions()[0].Active
	}, 5*time.Second, 10*time.Millisecond, "retry ceiling stops the target")

	session := s.Sessions()[0]
	assert.Equal(t, 2, session.RetryCount)
	assert.NotEmpty(t, session.LastError)
}

func TestScheduler_ExtractorPanicReportsDown(t *testing.T) {
	server := statusServer(t, http.StatusOK, "ok")
	healthy := statusServer(t, http.StatusOK, "ok")

	s, _ := newTestScheduler(t, []Target{
		mustTarget(t, "broken", server.URL, WithExtractor(func([]byte, int) Status {
			panic("extractor exploded")
		})),
		mustTarget(t, "healthy", healthy.URL),
	})
	require.NoError(t, s.Start(context.Background()))

	got := map[string]Result{}
	for i := 0; i < 2; i++ {
		r := receive(t, s)
		got[r.Target] = r
	}

	assert.Equal(t, StatusDown, got["broken"].Status)
	assert.ErrorIs(t, got["broken"].Error, cadence.ErrOperationPanic)
	assert.Contains(t, got["broken"].Error.Error(), "correlation_id")
	assert.Equal(t, StatusUp, got["healthy"].Status)
}

func TestScheduler_DeferredTargetWaitsForRestart(t *testing.T) {
	server := statusServer(t, http.StatusOK, "")

	s, fc := newTestScheduler(t, []Target{
		mustTarget(t, "manual", server.URL, WithImmediate(false)),
		mustTarget(t, "off", server.URL, WithEnabled(false)),
	})
	require.NoError(t, s.Start(context.Background()))

	for _, session := range s.Sessions() {
		assert.False(t, session.Active, session.Target)
	}

	require.NoError(t, s.Restart("manual"))
	fc.Advance(0)

	r := receive(t, s)
	assert.Equal(t, "manual", r.Target)
	assert.True(t, s.Sessions()[0].Active)
	assert.False(t, s.Sessions()[1].Active)

	require.NoError(t, s.Pause("manual"))
	assert.False(t, s.Sessions()[0].Active)

	assert.ErrorIs(t, s.Restart("missing"), ErrUnknownTarget)
	assert.ErrorIs(t, s.Pause("missing"), ErrUnknownTarget)
}

func TestScheduler_SummaryIsDebounced(t *testing.T) {
	up := statusServer(t, http.StatusOK, "")
	down := statusServer(t, http.StatusServiceUnavailable, "")

	s, fc := newTestScheduler(t, []Target{
		mustTarget(t, "a", up.URL),
		mustTarget(t, "b", up.URL),
		mustTarget(t, "c", down.URL),
	}, WithSummaryDelay(time.Second))
	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < 3; i++ {
		receive(t, s)
	}
	assert.Equal(t, Summary{}, s.Summary(), "summary waits for health to settle")

	fc.Advance(time.Second)
	assert.Equal(t, Summary{Up: 2, Down: 1}, s.Summary())
}

func TestScheduler_ObserverSeesTicks(t *testing.T) {
	server := statusServer(t, http.StatusOK, "")
	obs := &countingObserver{}

	s, _ := newTestScheduler(t, []Target{mustTarget(t, "api", server.URL)}, WithObserver(obs))
	require.NoError(t, s.Start(context.Background()))
	receive(t, s)
	s.Stop()

	assert.Equal(t, int32(1), obs.finished.Load())
	assert.Equal(t, int32(2), obs.sessions.Load(), "started then stopped")
}

func TestScheduler_Lifecycle(t *testing.T) {
	target := mustTarget(t, "api", closedURL(t))

	t.Run("stop before start", func(t *testing.T) {
		s, err := NewScheduler([]Target{target}, time.Minute, zerolog.Nop())
		require.NoError(t, err)
		s.Stop()
		s.Stop()

		require.NoError(t, s.Start(context.Background()))
		_, ok := <-s.Results()
		assert.False(t, ok)
		assert.Error(t, s.Restart("api"), "stopped scheduler rejects control")
	})

	t.Run("start twice", func(t *testing.T) {
		s, _ := newTestScheduler(t, []Target{target})
		require.NoError(t, s.Start(context.Background()))
		session := s.Sessions()[0].SessionID
		require.NoError(t, s.Start(context.Background()))
		assert.Equal(t, session, s.Sessions()[0].SessionID)
	})

	t.Run("stop closes results", func(t *testing.T) {
		s, _ := newTestScheduler(t, []Target{target})
		require.NoError(t, s.Start(context.Background()))
		s.Stop()

		for range s.Results() {
		}
	})

	t.Run("concurrent start and stop", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			s, err := NewScheduler([]Target{target}, time.Minute, zerolog.Nop(), WithClock(clock.NewFake(epoch)))
			require.NoError(t, err)

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = s.Start(context.Background())
			}()
			go func() {
				defer wg.Done()
				s.Stop()
			}()
			wg.Wait()

			for range s.Results() {
			}
		}
	})
}

func TestNewScheduler_DuplicateNames(t *testing.T) {
	a := mustTarget(t, "api", "http://a.example")
	b := mustTarget(t, "api", "http://b.example")

	_, err := NewScheduler([]Target{a, b}, time.Minute, zerolog.Nop())
	assert.ErrorContains(t, err, "duplicate target name")
}

type countingObserver struct {
	finished atomic.Int32
	sessions atomic.Int32
}

func (o *countingObserver) TickStarted(string)                        {}
func (o *countingObserver) TickFinished(string, error, time.Duration) { o.finished.Add(1) }
func (o *countingObserver) TickSkipped(string)                        {}
func (o *countingObserver) SessionChanged(string, bool, int)          { o.sessions.Add(1) }
