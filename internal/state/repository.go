// Package state persists the engine's durable per-document record: the
// last published fingerprint and edition (so schedulers resume after a
// restart without a spurious republish), the follow registry and local
// per-document options.
package state

import "context"

// DocumentState is one row of the follow registry.
type DocumentState struct {
	Address           string
	Local             bool
	Edition           int64
	Time              int64
	Fingerprint       string
	FollowTime        int64
	MuteNotifications bool
	RescueError       string
}

// Repository stores document state. Get returns common.ErrNotFound for
// unknown addresses.
type Repository interface {
	Upsert(ctx context.Context, s *DocumentState) error
	Get(ctx context.Context, address string) (*DocumentState, error)
	List(ctx context.Context) ([]*DocumentState, error)
	Delete(ctx context.Context, address string) error

	// SetBaseline records a successful publish: the fingerprint the
	// change detector should treat as clean, plus the resulting
	// edition and logical time.
	SetBaseline(ctx context.Context, address, fingerprint string, edition, time int64) error

	// SetVersion records the post-merge edition and logical time
	// without touching the publish baseline or the rescue status.
	SetVersion(ctx context.Context, address string, edition, time int64) error

	// SetRescueError stores the sticky outcome of the last rescue
	// fetch ("" clears it).
	SetRescueError(ctx context.Context, address, message string) error
}
