package feed

import (
	"sync"
	"time"
)

// DefaultInsertionDelay is how long content must stay unchanged before a
// document becomes eligible for publishing.
const DefaultInsertionDelay = 60 * time.Second

// Settings holds runtime tunables shared by every scheduler. Values are
// read fresh on each poll, so SetInsertionDelay takes effect on the next
// detector cycle without restarting any loop.
type Settings struct {
	mu             sync.RWMutex
	insertionDelay time.Duration
}

// NewSettings returns settings with defaults applied.
func NewSettings() *Settings {
	return &Settings{insertionDelay: DefaultInsertionDelay}
}

// InsertionDelay returns the current settle window.
func (s *Settings) InsertionDelay() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.insertionDelay
}

// SetInsertionDelay changes the settle window for all documents.
// Non-positive values are ignored.
func (s *Settings) SetInsertionDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertionDelay = d
}
