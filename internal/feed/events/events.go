// Package events defines the closed set of engine events and the sinks
// that consume them. Emitting is always fire-and-forget: a slow or absent
// consumer must never block a scheduler loop.
package events

import "github.com/dmitrijs2005/feedsync/internal/feed"

// Event is one of the variants below. The set is closed on purpose:
// consumers switch on the concrete type.
type Event interface {
	event()
}

// NewPost reports a post first seen in a merged snapshot.
type NewPost struct {
	Address string
	Post    feed.Post
}

// PostRemoved reports a post present locally but absent from a merged
// snapshot.
type PostRemoved struct {
	Address string
	Post    feed.Post
}

// NewReply reports a reply first seen in a merged snapshot.
type NewReply struct {
	Address string
	Reply   feed.Reply
}

// ReplyRemoved reports a reply present locally but absent from a merged
// snapshot.
type ReplyRemoved struct {
	Address string
	Reply   feed.Reply
}

// PublishStarted reports that a snapshot is being published.
type PublishStarted struct {
	Address string
	Edition int64
}

// PublishFinished reports a successful publish.
type PublishFinished struct {
	Address    string
	Edition    int64
	InsertTime int64
}

// PublishAborted reports a failed publish. The document is unchanged and
// the scheduler keeps running.
type PublishAborted struct {
	Address string
	Err     error
}

func (NewPost) event()         {}
func (PostRemoved) event()     {}
func (NewReply) event()        {}
func (ReplyRemoved) event()    {}
func (PublishStarted) event()  {}
func (PublishFinished) event() {}
func (PublishAborted) event()  {}
