package feed

// Content groups the publishable, replaceable part of a document: profile,
// posts, replies, like sets and the album tree. A merge replaces a
// document's Content wholesale; document-local state (known flag, options,
// edition) lives on Document instead.
type Content struct {
	Profile       Profile
	Posts         map[string]*Post
	Replies       map[string]*Reply
	LikedPostIDs  map[string]struct{}
	LikedReplyIDs map[string]struct{}
	RootAlbum     *Album
}

// NewContent returns empty content with all collections initialized and a
// fresh root album.
func NewContent() *Content {
	return &Content{
		Posts:         make(map[string]*Post),
		Replies:       make(map[string]*Reply),
		LikedPostIDs:  make(map[string]struct{}),
		LikedReplyIDs: make(map[string]struct{}),
		RootAlbum:     &Album{ID: "root", Title: "root"},
	}
}

// Copy deep-copies the content. Known flags are carried along; the caller
// decides whether they matter (snapshots drop them at serialization time).
func (c *Content) Copy() *Content {
	out := NewContent()
	out.Profile = c.Profile
	for id, p := range c.Posts {
		cp := *p
		out.Posts[id] = &cp
	}
	for id, r := range c.Replies {
		cr := *r
		out.Replies[id] = &cr
	}
	for id := range c.LikedPostIDs {
		out.LikedPostIDs[id] = struct{}{}
	}
	for id := range c.LikedReplyIDs {
		out.LikedReplyIDs[id] = struct{}{}
	}
	if c.RootAlbum != nil {
		out.RootAlbum = c.RootAlbum.Copy(false)
	}
	return out
}
