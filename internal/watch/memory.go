package watch

import "sync"

// MemoryWatch is an in-process VersionWatch for tests and single-node
// setups: notifications are injected manually with Notify.
type MemoryWatch struct {
	mu   sync.Mutex
	subs map[string]Callback
}

// NewMemoryWatch creates an empty watch.
func NewMemoryWatch() *MemoryWatch {
	return &MemoryWatch{subs: make(map[string]Callback)}
}

// Subscribe registers (or replaces) the callback for an address.
func (w *MemoryWatch) Subscribe(address string, highPriority bool, fn Callback) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs[address] = fn
	return nil
}

// Unsubscribe removes the callback for an address.
func (w *MemoryWatch) Unsubscribe(address string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.subs, address)
}

// Notify delivers a notification to the current subscriber, if any.
func (w *MemoryWatch) Notify(address string, edition int64, confirmed bool) {
	w.mu.Lock()
	fn := w.subs[address]
	w.mu.Unlock()
	if fn != nil {
		fn(edition, confirmed)
	}
}

// Watched reports whether an address currently has a subscriber.
func (w *MemoryWatch) Watched(address string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.subs[address]
	return ok
}
