// Package feed defines the replicated social-feed document model: a
// versioned Document owning a profile, posts, replies, like sets and an
// album tree, together with the deterministic content fingerprint used
// for change detection.
package feed

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyText      = errors.New("text must not be empty")
	ErrEmptyTitle     = errors.New("title must not be empty")
	ErrMissingID      = errors.New("id must not be empty")
	ErrMissingParent  = errors.New("parent must not be empty")
	ErrInvalidSize    = errors.New("width and height must be positive")
	ErrUnknownAlbum   = errors.New("album does not belong to this document")
	ErrUnknownPost    = errors.New("post does not belong to this document")
	ErrAlbumNotEmpty  = errors.New("album still has children")
	ErrRootAlbum      = errors.New("operation not allowed on the root album")
	ErrMissingTime    = errors.New("time must be set")
	ErrMissingAuthor  = errors.New("author must not be empty")
	ErrMissingPostRef = errors.New("reply must reference a post")
	ErrMissingKey     = errors.New("image key must not be empty")
)

// Profile is the public description of a document owner.
type Profile struct {
	FirstName  string
	MiddleName string
	LastName   string
	BirthDay   int
	BirthMonth int
	BirthYear  int
	AvatarID   string
}

// Post is a top-level feed item. Known is local-only state and is never
// transmitted; it suppresses "new content" notifications for items the
// local user has already seen.
type Post struct {
	ID          string
	AuthorID    string
	Time        int64
	Text        string
	RecipientID string
	Known       bool
}

// NewPost creates a post authored by the given identity at the given time.
func NewPost(authorID string, t time.Time, text string, recipientID string) *Post {
	return &Post{
		ID:          uuid.NewString(),
		AuthorID:    authorID,
		Time:        t.UnixMilli(),
		Text:        text,
		RecipientID: recipientID,
	}
}

// ValidatePost checks the fields every post must carry.
func ValidatePost(p *Post) error {
	switch {
	case p.ID == "":
		return ErrMissingID
	case p.AuthorID == "":
		return ErrMissingAuthor
	case p.Time == 0:
		return ErrMissingTime
	case p.Text == "":
		return ErrEmptyText
	}
	return nil
}

// Reply is a comment on a post, possibly a post of another document.
type Reply struct {
	ID       string
	AuthorID string
	PostID   string
	Time     int64
	Text     string
	Known    bool
}

// NewReply creates a reply to the given post.
func NewReply(authorID string, postID string, t time.Time, text string) *Reply {
	return &Reply{
		ID:       uuid.NewString(),
		AuthorID: authorID,
		PostID:   postID,
		Time:     t.UnixMilli(),
		Text:     text,
	}
}

// ValidateReply checks the fields every reply must carry.
func ValidateReply(r *Reply) error {
	switch {
	case r.ID == "":
		return ErrMissingID
	case r.AuthorID == "":
		return ErrMissingAuthor
	case r.PostID == "":
		return ErrMissingPostRef
	case r.Time == 0:
		return ErrMissingTime
	case r.Text == "":
		return ErrEmptyText
	}
	return nil
}

// Copy returns a value copy of the post.
func (p *Post) Copy() Post { return *p }

// Copy returns a value copy of the reply.
func (r *Reply) Copy() Reply { return *r }
