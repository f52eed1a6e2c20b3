// Package merge reconciles fetched snapshots with held replicas. A merge
// either rejects an incoming snapshot (stale logical time) or replaces
// the stored content wholesale and derives the notification-worthy
// deltas. Per document, merges are serialized by the document lock.
package merge

import (
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/feedsync/internal/common"
	"github.com/dmitrijs2005/feedsync/internal/feed"
	"github.com/dmitrijs2005/feedsync/internal/feed/events"
)

// IsLocalFunc reports whether an author id belongs to a locally-owned
// document. Content authored locally never produces "new content"
// notifications, no matter which replica it arrives through.
type IsLocalFunc func(authorID string) bool

// Limits bounds what a remote replica retains. Owned documents always
// retain everything.
type Limits struct {
	MaxRemotePosts   int
	MaxRemoteReplies int
	RemoteExpiry     time.Duration
}

// DefaultLimits keeps the 50 most recent posts and replies of a remote
// document, dropping anything older than 30 days.
func DefaultLimits() Limits {
	return Limits{
		MaxRemotePosts:   50,
		MaxRemoteReplies: 50,
		RemoteExpiry:     30 * 24 * time.Hour,
	}
}

// Incoming is a parsed remote snapshot plus the edition it was fetched at.
type Incoming struct {
	Time    int64
	Edition int64
	Content *feed.Content
}

// Engine merges incoming snapshots into stored documents.
type Engine struct {
	isLocal IsLocalFunc
	limits  Limits
	clock   feed.Clock
}

// NewEngine creates a merge engine. isLocal may be nil when no local
// identities exist.
func NewEngine(isLocal IsLocalFunc, limits Limits, clock feed.Clock) *Engine {
	if isLocal == nil {
		isLocal = func(string) bool { return false }
	}
	if clock == nil {
		clock = feed.SystemClock{}
	}
	return &Engine{isLocal: isLocal, limits: limits, clock: clock}
}

// Merge applies the incoming snapshot to the stored document. Unless
// rescue is set, an incoming logical time that does not advance the
// stored one rejects the merge with common.ErrStale, no state change and
// no events: that is the normal outcome of a redundant watch
// notification, matched with errors.Is rather than treated as a failure.
//
// On accept the stored content is replaced wholesale. Document-local
// state survives: the document known flag, per-document options, per-item
// known flags of items present on both sides, and the edition (which only
// moves forward, even when a rescue accepts an older edition).
//
// The returned events are ordered removals-then-new, posts before
// replies. A new item is suppressed (created pre-known, no event) when it
// is authored by a local identity or its time does not exceed the moment
// the local user began following this document. Both rules apply to posts
// and replies alike.
func (e *Engine) Merge(stored *feed.Document, in Incoming, rescue bool) ([]events.Event, error) {
	address := stored.Address()
	followTime := stored.FollowTime()
	muted := stored.Options().MuteNotifications

	var out []events.Event

	accepted := stored.ApplyUpdate(in.Time, in.Edition, rescue, func(old *feed.Content) *feed.Content {
		next := in.Content

		for _, id := range sortedIDs(old.Posts) {
			if _, kept := next.Posts[id]; !kept {
				out = append(out, events.PostRemoved{Address: address, Post: old.Posts[id].Copy()})
			}
		}
		for _, id := range sortedIDs(next.Posts) {
			p := next.Posts[id]
			if prev, existed := old.Posts[id]; existed {
				p.Known = p.Known || prev.Known
				continue
			}
			if muted || e.isLocal(p.AuthorID) || p.Time <= followTime {
				p.Known = true
				continue
			}
			out = append(out, events.NewPost{Address: address, Post: p.Copy()})
		}

		for _, id := range sortedIDs(old.Replies) {
			if _, kept := next.Replies[id]; !kept {
				out = append(out, events.ReplyRemoved{Address: address, Reply: old.Replies[id].Copy()})
			}
		}
		for _, id := range sortedIDs(next.Replies) {
			r := next.Replies[id]
			if prev, existed := old.Replies[id]; existed {
				r.Known = r.Known || prev.Known
				continue
			}
			if muted || e.isLocal(r.AuthorID) || r.Time <= followTime {
				r.Known = true
				continue
			}
			out = append(out, events.NewReply{Address: address, Reply: r.Copy()})
		}

		if !stored.IsLocal() {
			e.trim(next)
		}
		return next
	})

	if !accepted {
		return nil, fmt.Errorf("snapshot at time %d: %w", in.Time, common.ErrStale)
	}
	return out, nil
}

// trim bounds a remote replica to the most recent non-expired items.
// Dropping here is storage pressure relief, not content removal, so no
// events are emitted for trimmed items.
func (e *Engine) trim(c *feed.Content) {
	cutoff := int64(0)
	if e.limits.RemoteExpiry > 0 {
		cutoff = e.clock.Now().Add(-e.limits.RemoteExpiry).UnixMilli()
	}
	trimPosts(c.Posts, e.limits.MaxRemotePosts, cutoff)
	trimReplies(c.Replies, e.limits.MaxRemoteReplies, cutoff)
}

func trimPosts(m map[string]*feed.Post, max int, cutoff int64) {
	if max <= 0 {
		return
	}
	type item struct {
		id   string
		time int64
	}
	kept := make([]item, 0, len(m))
	for id, p := range m {
		if p.Time < cutoff {
			delete(m, id)
			continue
		}
		kept = append(kept, item{id, p.Time})
	}
	if len(kept) <= max {
		return
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].time > kept[j].time })
	for _, it := range kept[max:] {
		delete(m, it.id)
	}
}

func trimReplies(m map[string]*feed.Reply, max int, cutoff int64) {
	if max <= 0 {
		return
	}
	type item struct {
		id   string
		time int64
	}
	kept := make([]item, 0, len(m))
	for id, r := range m {
		if r.Time < cutoff {
			delete(m, id)
			continue
		}
		kept = append(kept, item{id, r.Time})
	}
	if len(kept) <= max {
		return
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].time > kept[j].time })
	for _, it := range kept[max:] {
		delete(m, it.id)
	}
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
