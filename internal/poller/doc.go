// Package poller polls HTTP targets on behalf of the cadence binary.
//
// Each [Target] is driven by its own [cadence.Poller], so a target keeps its
// own interval, session and retry ceiling. The main components are:
//
//   - [Client]: pooled HTTP client with per-target timeouts and a body limit
//   - [Target]: an endpoint to poll, built with [NewTarget] and options
//   - [Extractor]: maps a response to a [Status]
//   - [Scheduler]: owns the pollers and emits a [Result] per poll
package poller
