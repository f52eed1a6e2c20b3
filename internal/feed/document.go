package feed

import (
	"sort"
	"sync"
	"time"
)

// Options holds locally configured, never-transmitted per-document
// settings. They survive merges.
type Options struct {
	MuteNotifications bool
}

// Document is one participant's versioned feed record. All mutable content
// is serialized through a single per-document mutex: user mutations,
// fingerprint computation, snapshotting and merge replacement all take it.
// Network calls never run under the lock.
type Document struct {
	address string
	local   bool

	mu          sync.Mutex
	edition     int64
	time        int64
	known       bool
	followTime  int64
	options     Options
	content     *Content
	rescueLocks int
}

// NewLocalDocument creates an empty locally-owned document for the given
// address.
func NewLocalDocument(address string) *Document {
	return &Document{address: address, local: true, content: NewContent()}
}

// NewRemoteDocument creates an empty replica of a followed remote
// document.
func NewRemoteDocument(address string) *Document {
	return &Document{address: address, content: NewContent()}
}

// Address returns the immutable public-key-derived address.
func (d *Document) Address() string { return d.address }

// IsLocal reports whether this replica is locally owned (and therefore
// published by this node).
func (d *Document) IsLocal() bool { return d.local }

// LatestEdition returns the last known published edition. It only ever
// increases.
func (d *Document) LatestEdition() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.edition
}

// SetLatestEdition restores the edition from persisted state at startup.
func (d *Document) SetLatestEdition(edition int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if edition > d.edition {
		d.edition = edition
	}
}

// Time returns the logical publish timestamp (unix milliseconds).
func (d *Document) Time() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.time
}

// SetTime restores the logical time from persisted state at startup.
func (d *Document) SetTime(t int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.time = t
}

// Known reports the document-level known flag (local-only).
func (d *Document) Known() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.known
}

// SetKnown sets the document-level known flag.
func (d *Document) SetKnown(known bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.known = known
}

// FollowTime returns the unix-milli moment the local user began following
// this document, or 0 for locally-owned documents.
func (d *Document) FollowTime() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.followTime
}

// SetFollowTime records when the local user started following.
func (d *Document) SetFollowTime(t int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.followTime = t
}

// Options returns the local per-document options.
func (d *Document) Options() Options {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.options
}

// SetOptions replaces the local per-document options.
func (d *Document) SetOptions(o Options) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.options = o
}

// LockForRescue marks the document locked so the change detector reports
// it ineligible for publishing while a rescue fetch is running. Locks
// nest: every LockForRescue must be paired with an UnlockRescue.
func (d *Document) LockForRescue() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rescueLocks++
}

// UnlockRescue releases one rescue lock.
func (d *Document) UnlockRescue() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rescueLocks > 0 {
		d.rescueLocks--
	}
}

// IsRescueLocked reports whether a rescue fetch currently holds the
// document.
func (d *Document) IsRescueLocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rescueLocks > 0
}

// Fingerprint computes the deterministic content digest under the
// document lock. Unchanged content always hashes to the same value.
func (d *Document) Fingerprint() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fingerprintContent(d.content)
}

// View runs fn with read access to the content under the document lock.
// fn must not retain references past its return.
func (d *Document) View(fn func(c *Content)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.content)
}

// ApplyUpdate atomically replaces the document content. Unless rescue is
// set, the update is rejected when newTime does not advance the stored
// logical time. fn receives the old content and returns its replacement;
// it runs under the document lock, so it must not block. The edition only
// moves forward, even for rescue accepts of older editions.
func (d *Document) ApplyUpdate(newTime int64, edition int64, rescue bool, fn func(old *Content) *Content) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !rescue && newTime <= d.time {
		return false
	}
	d.content = fn(d.content)
	d.time = newTime
	if edition > d.edition {
		d.edition = edition
	}
	return true
}

// CommitPublish records a successful publish: the returned edition and
// the insert time become the document's version.
func (d *Document) CommitPublish(edition int64, insertTime int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.time = insertTime
	if edition > d.edition {
		d.edition = edition
	}
}

// CreatePost appends a post authored by this document's owner.
func (d *Document) CreatePost(t time.Time, text string, recipientID string) (*Post, error) {
	p := NewPost(d.address, t, text, recipientID)
	if err := ValidatePost(p); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content.Posts[p.ID] = p
	return p, nil
}

// DeletePost removes a post by id.
func (d *Document) DeletePost(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.content.Posts[id]; !ok {
		return ErrUnknownPost
	}
	delete(d.content.Posts, id)
	return nil
}

// CreateReply appends a reply authored by this document's owner. The
// referenced post may belong to any document.
func (d *Document) CreateReply(t time.Time, postID string, text string) (*Reply, error) {
	r := NewReply(d.address, postID, t, text)
	if err := ValidateReply(r); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content.Replies[r.ID] = r
	return r, nil
}

// DeleteReply removes a reply by id.
func (d *Document) DeleteReply(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.content.Replies[id]; !ok {
		return ErrUnknownPost
	}
	delete(d.content.Replies, id)
	return nil
}

// LikePost adds a post id to the liked set.
func (d *Document) LikePost(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content.LikedPostIDs[id] = struct{}{}
}

// UnlikePost removes a post id from the liked set.
func (d *Document) UnlikePost(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.content.LikedPostIDs, id)
}

// LikeReply adds a reply id to the liked set.
func (d *Document) LikeReply(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content.LikedReplyIDs[id] = struct{}{}
}

// UnlikeReply removes a reply id from the liked set.
func (d *Document) UnlikeReply(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.content.LikedReplyIDs, id)
}

// UpdateProfile replaces the profile.
func (d *Document) UpdateProfile(p Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content.Profile = p
}

// Profile returns a copy of the profile.
func (d *Document) Profile() Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content.Profile
}

// CreateAlbum attaches a new album under the given parent. The parent
// must already exist in this document's tree.
func (d *Document) CreateAlbum(parentID, title, description string) (*Album, error) {
	a := NewAlbum(title, description)
	if err := ValidateAlbum(a); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	parent := d.content.RootAlbum.Find(parentID)
	if parent == nil {
		return nil, ErrUnknownAlbum
	}
	a.Parent = parent
	parent.Albums = append(parent.Albums, a)
	return a, nil
}

// DeleteAlbum removes an empty, non-root album.
func (d *Document) DeleteAlbum(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := d.content.RootAlbum.Find(id)
	if a == nil {
		return ErrUnknownAlbum
	}
	if a.Parent == nil {
		return ErrRootAlbum
	}
	if len(a.Albums) > 0 || len(a.Images) > 0 {
		return ErrAlbumNotEmpty
	}
	siblings := a.Parent.Albums
	for i, s := range siblings {
		if s.ID == id {
			a.Parent.Albums = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	return nil
}

// AddImage appends an image to an existing album.
func (d *Document) AddImage(albumID string, img *Image) error {
	if img.Width <= 0 || img.Height <= 0 {
		return ErrInvalidSize
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	a := d.content.RootAlbum.Find(albumID)
	if a == nil {
		return ErrUnknownAlbum
	}
	a.Images = append(a.Images, img)
	return nil
}

// SetImageKey records the content key assigned to an image by its first
// successful publish.
func (d *Document) SetImageKey(imageID, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	var walk func(a *Album) *Image
	walk = func(a *Album) *Image {
		for _, img := range a.Images {
			if img.ID == imageID {
				return img
			}
		}
		for _, child := range a.Albums {
			if img := walk(child); img != nil {
				return img
			}
		}
		return nil
	}
	img := walk(d.content.RootAlbum)
	if img == nil {
		return false
	}
	img.Key = key
	return true
}

// MarkPostKnown flags a post as seen by the local user.
func (d *Document) MarkPostKnown(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.content.Posts[id]; ok {
		p.Known = true
	}
}

// MarkReplyKnown flags a reply as seen by the local user.
func (d *Document) MarkReplyKnown(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.content.Replies[id]; ok {
		r.Known = true
	}
}

// Posts returns value copies of all posts, newest first.
func (d *Document) Posts() []Post {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Post, 0, len(d.content.Posts))
	for _, p := range d.content.Posts {
		out = append(out, *p)
	}
	sortPostsNewestFirst(out)
	return out
}

// Replies returns value copies of all replies, newest first.
func (d *Document) Replies() []Reply {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Reply, 0, len(d.content.Replies))
	for _, r := range d.content.Replies {
		out = append(out, *r)
	}
	sortRepliesNewestFirst(out)
	return out
}

func sortPostsNewestFirst(posts []Post) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].Time != posts[j].Time {
			return posts[i].Time > posts[j].Time
		}
		return posts[i].ID < posts[j].ID
	})
}

func sortRepliesNewestFirst(replies []Reply) {
	sort.Slice(replies, func(i, j int) bool {
		if replies[i].Time != replies[j].Time {
			return replies[i].Time > replies[j].Time
		}
		return replies[i].ID < replies[j].ID
	})
}
