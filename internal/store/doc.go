// Package store keeps poll outcomes in memory and publishes them to
// subscribers.
//
// [MemoryStore] holds the latest [Record] per target and a bounded history
// per target. Subscribers receive updates on buffered channels; a slow
// subscriber misses updates instead of blocking the writer.
package store
