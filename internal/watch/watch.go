// Package watch provides VersionWatch, the push channel that tells the
// engine when a followed document's edition slot moved. Backends: an
// in-memory fake for tests and a websocket client for a node gateway.
package watch

// Callback is invoked for every edition notification. confirmed
// distinguishes "the slot advanced" from "the content was actually
// fetched and verified". The fetch scheduler reacts to both, but only
// once per (edition, confidence) step forward.
//
// Callbacks may be invoked concurrently for different addresses and must
// not block for long.
type Callback func(edition int64, confirmed bool)

// VersionWatch subscribes to edition notifications for document
// addresses. Subscribing an already-watched address replaces the previous
// subscription; implementations never deliver to a replaced callback.
// Unsubscribing on stop or delete is mandatory: a leaked subscription
// causes duplicate merges.
type VersionWatch interface {
	Subscribe(address string, highPriority bool, fn Callback) error
	Unsubscribe(address string)
}
