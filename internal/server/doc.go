// Package server exposes the cadence monitor over HTTP.
//
// It serves a JSON API over the [store.Store], a Server-Sent Events stream
// that is throttled per client, scheduler control routes and a Prometheus
// /metrics endpoint. Cancelling the context passed to [Server.Start] shuts
// the server down gracefully, with a 5-second timeout for in-flight requests.
package server
