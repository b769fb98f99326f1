// Package cadence provides small temporal state controllers: values that are
// debounced or throttled before they become visible, and pollers that invoke
// an operation on a fixed cadence with a retry ceiling.
//
// Every controller is driven by a [clock.Clock]. Production code uses the real
// clock; tests inject [clock.Fake] and advance virtual time explicitly, which
// makes every schedule in this package deterministic.
//
// # Debounce
//
// A [Debounced] value commits only after its input has been quiet for a delay:
//
//	query, _ := cadence.NewDebounce("", cadence.WithDelay(300*time.Millisecond),
//	    cadence.OnCommit(func(q string) { search(q) }),
//	)
//	defer query.Close()
//
//	query.Set("g")
//	query.Set("go") // only "go" is committed, 300ms after this call
//
// # Throttle
//
// A [Throttled] value commits at most once per interval, with optional leading
// and trailing edge commits:
//
//	pos, _ := cadence.NewThrottle(0, 100*time.Millisecond)
//	pos.Set(10) // committed immediately (leading edge)
//	pos.Set(20) // committed 100ms after the leading commit (trailing edge)
//
// # Polling
//
// A [Poller] invokes an [Operation] immediately on [Poller.Start] and then once
// per interval. Failures are counted; with a positive retry ceiling the poller
// stops itself after that many consecutive failures:
//
//	p, _ := cadence.NewPoller(fetchStatus,
//	    cadence.WithInterval(5*time.Second),
//	    cadence.WithMaxRetries(3),
//	    cadence.OnSuccess(func(s Status) { render(s) }),
//	    cadence.OnError(func(err error) { log.Print(err) }),
//	)
//	p.Start()
//	defer p.Close()
//
// # Other controllers
//
// [Queue] is a FIFO with an optional size bound and overflow strategy.
// [TimeAgo] keeps a relative-time rendering ("3 minutes ago") fresh on a
// repeating timer; [FormatTimeAgo] is its pure formatting core.
package cadence
