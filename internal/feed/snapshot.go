package feed

// Snapshot is an immutable copy of a document's publishable state, taken
// under the document lock. Posts and replies are ordered newest first,
// empty albums are pruned, and the fingerprint is computed over the same
// content in the same critical section, so a snapshot can be published
// without holding the lock.
type Snapshot struct {
	Address       string
	Time          int64
	Profile       Profile
	Posts         []Post
	Replies       []Reply
	LikedPostIDs  []string
	LikedReplyIDs []string
	RootAlbum     *Album
	Fingerprint   string
}

// Snapshot copies the publishable fields and computes the content
// fingerprint in one critical section.
func (d *Document) Snapshot() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := &Snapshot{
		Address: d.address,
		Time:    d.time,
		Profile: d.content.Profile,
	}

	s.Posts = make([]Post, 0, len(d.content.Posts))
	for _, p := range d.content.Posts {
		s.Posts = append(s.Posts, *p)
	}
	sortPostsNewestFirst(s.Posts)

	s.Replies = make([]Reply, 0, len(d.content.Replies))
	for _, r := range d.content.Replies {
		s.Replies = append(s.Replies, *r)
	}
	sortRepliesNewestFirst(s.Replies)

	s.LikedPostIDs = sortedSet(d.content.LikedPostIDs)
	s.LikedReplyIDs = sortedSet(d.content.LikedReplyIDs)
	if d.content.RootAlbum != nil {
		s.RootAlbum = d.content.RootAlbum.Copy(true)
	}

	s.Fingerprint = fingerprintContent(d.content)
	return s
}
