package merge

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/feedsync/internal/common"
	"github.com/dmitrijs2005/feedsync/internal/feed"
	"github.com/dmitrijs2005/feedsync/internal/feed/events"
)

const remoteAddr = "remote-address"

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newEngine(isLocal IsLocalFunc) *Engine {
	return NewEngine(isLocal, DefaultLimits(), &fakeClock{now: time.UnixMilli(1_000_000)})
}

func post(id string, tm int64) *feed.Post {
	return &feed.Post{ID: id, AuthorID: remoteAddr, Time: tm, Text: "text " + id}
}

func reply(id string, tm int64) *feed.Reply {
	return &feed.Reply{ID: id, AuthorID: remoteAddr, PostID: "p", Time: tm, Text: "re " + id}
}

func contentWithPosts(posts ...*feed.Post) *feed.Content {
	c := feed.NewContent()
	for _, p := range posts {
		c.Posts[p.ID] = p
	}
	return c
}

func storedDoc(tm int64, posts ...*feed.Post) *feed.Document {
	d := feed.NewRemoteDocument(remoteAddr)
	d.SetTime(tm)
	d.ApplyUpdate(tm, 0, true, func(*feed.Content) *feed.Content { return contentWithPosts(posts...) })
	return d
}

func TestMerge_RejectsStaleTime(t *testing.T) {
	e := newEngine(nil)
	d := storedDoc(500, post("a", 100))
	before := d.Fingerprint()

	evs, err := e.Merge(d, Incoming{Time: 500, Content: feed.NewContent()}, false)
	require.ErrorIs(t, err, common.ErrStale)
	require.Empty(t, evs)
	require.Equal(t, before, d.Fingerprint(), "stored state must be untouched")
	require.Equal(t, int64(500), d.Time())
}

func TestMerge_DiffCorrectness(t *testing.T) {
	e := newEngine(nil)
	d := storedDoc(500, post("a", 600), post("b", 610))
	d.SetFollowTime(1) // everything after follow

	in := Incoming{Time: 700, Content: contentWithPosts(post("b", 610), post("c", 650))}
	evs, err := e.Merge(d, in, false)
	require.NoError(t, err)
	require.Len(t, evs, 2)

	removed := evs[0].(events.PostRemoved)
	require.Equal(t, "a", removed.Post.ID)
	added := evs[1].(events.NewPost)
	require.Equal(t, "c", added.Post.ID)

	d.View(func(c *feed.Content) {
		require.Len(t, c.Posts, 2)
		require.Contains(t, c.Posts, "b")
		require.Contains(t, c.Posts, "c")
	})
}

func TestMerge_SelfAuthorSuppression(t *testing.T) {
	e := newEngine(func(author string) bool { return author == "my-own-identity" })
	d := storedDoc(500)
	d.SetFollowTime(1)

	mine := post("mine", 600)
	mine.AuthorID = "my-own-identity"
	in := Incoming{Time: 700, Content: contentWithPosts(mine)}

	evs, err := e.Merge(d, in, false)
	require.NoError(t, err)
	require.Empty(t, evs, "self-authored posts never notify")
	d.View(func(c *feed.Content) {
		require.True(t, c.Posts["mine"].Known)
	})
}

func TestMerge_FollowTimeBoundary(t *testing.T) {
	e := newEngine(nil)

	d := storedDoc(500)
	d.SetFollowTime(600)
	in := Incoming{Time: 700, Content: contentWithPosts(post("after", 650))}
	evs, err := e.Merge(d, in, false)
	require.NoError(t, err)
	require.Len(t, evs, 1, "650 > 600 means not suppressed")

	d = storedDoc(500)
	d.SetFollowTime(600)
	in = Incoming{Time: 700, Content: contentWithPosts(post("boundary", 600))}
	evs, err = e.Merge(d, in, false)
	require.NoError(t, err)
	require.Empty(t, evs, "exactly the follow time is suppressed")
	d.View(func(c *feed.Content) {
		require.True(t, c.Posts["boundary"].Known)
	})
}

func TestMerge_ReplySuppressionSetsKnownFlag(t *testing.T) {
	e := newEngine(nil)
	d := storedDoc(500)
	d.SetFollowTime(600)

	c := feed.NewContent()
	c.Replies["early"] = reply("early", 550)
	c.Replies["late"] = reply("late", 700)

	evs, err := e.Merge(d, Incoming{Time: 700, Content: c}, false)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, "late", evs[0].(events.NewReply).Reply.ID)
	d.View(func(c *feed.Content) {
		require.True(t, c.Replies["early"].Known)
		require.False(t, c.Replies["late"].Known)
	})
}

func TestMerge_RemovalsAlwaysEmit(t *testing.T) {
	e := newEngine(nil)
	d := storedDoc(500, post("gone", 100))
	d.ApplyUpdate(500, 0, true, func(old *feed.Content) *feed.Content {
		old.Replies["gone-reply"] = reply("gone-reply", 100)
		return old
	})

	evs, err := e.Merge(d, Incoming{Time: 700, Content: feed.NewContent()}, false)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	require.IsType(t, events.PostRemoved{}, evs[0])
	require.IsType(t, events.ReplyRemoved{}, evs[1])
}

func TestMerge_PreservesLocalOnlyState(t *testing.T) {
	e := newEngine(nil)
	d := storedDoc(500, post("keep", 100))
	d.SetKnown(true)
	d.SetOptions(feed.Options{MuteNotifications: true})
	d.SetLatestEdition(9)
	d.MarkPostKnown("keep")

	in := Incoming{Time: 700, Edition: 3, Content: contentWithPosts(post("keep", 100))}
	_, err := e.Merge(d, in, false)
	require.NoError(t, err)

	require.True(t, d.Known())
	require.True(t, d.Options().MuteNotifications)
	require.Equal(t, int64(9), d.LatestEdition(), "edition never decreases")
	d.View(func(c *feed.Content) {
		require.True(t, c.Posts["keep"].Known, "per-item known flag survives the replace")
	})
}

func TestMerge_MutedDocumentSuppressesEverything(t *testing.T) {
	e := newEngine(nil)
	d := storedDoc(500)
	d.SetFollowTime(1)
	d.SetOptions(feed.Options{MuteNotifications: true})

	evs, err := e.Merge(d, Incoming{Time: 700, Content: contentWithPosts(post("p", 600))}, false)
	require.NoError(t, err)
	require.Empty(t, evs)
}

func TestMerge_RescueBypassesMonotonicity(t *testing.T) {
	e := newEngine(nil)
	d := storedDoc(500)
	d.SetLatestEdition(5)

	_, err := e.Merge(d, Incoming{Time: 400, Edition: 4, Content: feed.NewContent()}, true)
	require.NoError(t, err)
	require.Equal(t, int64(400), d.Time())
	require.Equal(t, int64(5), d.LatestEdition())
}

func TestMerge_RemoteRetentionBound(t *testing.T) {
	limits := Limits{MaxRemotePosts: 3, MaxRemoteReplies: 3, RemoteExpiry: 30 * 24 * time.Hour}
	clock := &fakeClock{now: time.UnixMilli(0).Add(365 * 24 * time.Hour)}
	e := NewEngine(nil, limits, clock)

	d := storedDoc(500)
	d.SetFollowTime(1)

	c := feed.NewContent()
	recent := clock.now.UnixMilli()
	for i := 0; i < 5; i++ {
		p := post(fmt.Sprintf("recent-%d", i), recent-int64(i))
		c.Posts[p.ID] = p
	}
	expired := post("ancient", time.UnixMilli(0).Add(24*time.Hour).UnixMilli())
	c.Posts[expired.ID] = expired

	_, err := e.Merge(d, Incoming{Time: 700, Content: c}, false)
	require.NoError(t, err)
	d.View(func(c *feed.Content) {
		require.Len(t, c.Posts, 3, "bounded to the 3 most recent")
		require.NotContains(t, c.Posts, "ancient")
		require.Contains(t, c.Posts, "recent-0")
	})
}

func TestMerge_OwnedDocumentRetainsEverything(t *testing.T) {
	limits := Limits{MaxRemotePosts: 1, MaxRemoteReplies: 1, RemoteExpiry: time.Hour}
	e := NewEngine(nil, limits, &fakeClock{now: time.UnixMilli(1_000_000_000)})

	d := feed.NewLocalDocument("local-address")
	d.SetTime(500)

	c := feed.NewContent()
	for i := 0; i < 5; i++ {
		p := post(fmt.Sprintf("p%d", i), int64(i+1))
		c.Posts[p.ID] = p
	}

	_, err := e.Merge(d, Incoming{Time: 700, Content: c}, false)
	require.NoError(t, err)
	d.View(func(c *feed.Content) {
		require.Len(t, c.Posts, 5)
	})
}
