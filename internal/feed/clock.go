package feed

import "time"

// Clock abstracts the monotonic time source so debounce and merge timing
// are testable with a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
