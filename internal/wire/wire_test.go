package wire

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/feedsync/internal/common"
	"github.com/dmitrijs2005/feedsync/internal/feed"
)

var (
	owner     = "A" + strings.Repeat("x", common.AddressLength-1)
	recipient = "B" + strings.Repeat("y", common.AddressLength-1)
)

func buildDocument(t *testing.T) *feed.Document {
	t.Helper()
	d := feed.NewLocalDocument(owner)
	d.UpdateProfile(feed.Profile{FirstName: "Ada", LastName: "L", BirthYear: 1815})
	_, err := d.CreatePost(time.UnixMilli(1000), "first post", recipient)
	require.NoError(t, err)
	_, err = d.CreatePost(time.UnixMilli(2000), "second post", "")
	require.NoError(t, err)
	_, err = d.CreateReply(time.UnixMilli(3000), "foreign-post", "a reply")
	require.NoError(t, err)
	d.LikePost("liked-1")
	d.LikeReply("liked-2")

	album, err := d.CreateAlbum("root", "holidays", "2024")
	require.NoError(t, err)
	inner, err := d.CreateAlbum(album.ID, "beach", "")
	require.NoError(t, err)
	img := feed.NewImage(time.UnixMilli(4000), "sunset", "", 800, 600)
	img.Key = "CHK@sunset"
	require.NoError(t, d.AddImage(inner.ID, img))
	return d
}

func TestBuildParse_RoundTrip(t *testing.T) {
	d := buildDocument(t)
	d.SetTime(12345)

	data, err := Build(d.Snapshot())
	require.NoError(t, err)

	parsed, err := Parse(data, owner)
	require.NoError(t, err)
	require.Equal(t, ProtocolVersion, parsed.Version)
	require.Equal(t, int64(12345), parsed.Time)
	require.Len(t, parsed.Content.Posts, 2)
	require.Len(t, parsed.Content.Replies, 1)
	require.Contains(t, parsed.Content.LikedPostIDs, "liked-1")
	require.Contains(t, parsed.Content.LikedReplyIDs, "liked-2")

	// the round-tripped content hashes identically to the original
	incoming := feed.NewRemoteDocument(owner)
	incoming.ApplyUpdate(parsed.Time, 0, true, func(old *feed.Content) *feed.Content { return parsed.Content })
	require.Equal(t, d.Fingerprint(), incoming.Fingerprint())
}

func TestBuild_SkipsUnpublishedImages(t *testing.T) {
	d := feed.NewLocalDocument(owner)
	album, err := d.CreateAlbum("root", "drafts", "")
	require.NoError(t, err)
	require.NoError(t, d.AddImage(album.ID, feed.NewImage(time.UnixMilli(1), "pending", "", 10, 10)))

	data, err := Build(d.Snapshot())
	require.NoError(t, err)

	parsed, err := Parse(data, owner)
	require.NoError(t, err)
	// the album carried only an unpublished image, so it was pruned as empty
	require.Empty(t, parsed.Content.RootAlbum.Albums)
}

func TestBuild_DropsKnownFlag(t *testing.T) {
	d := feed.NewLocalDocument(owner)
	p, err := d.CreatePost(time.UnixMilli(1000), "seen", "")
	require.NoError(t, err)
	d.MarkPostKnown(p.ID)

	data, err := Build(d.Snapshot())
	require.NoError(t, err)
	require.NotContains(t, string(data), "known")

	parsed, err := Parse(data, owner)
	require.NoError(t, err)
	require.False(t, parsed.Content.Posts[p.ID].Known)
}

func TestParse_MissingDocumentTime(t *testing.T) {
	_, err := Parse([]byte(`{"version":1}`), owner)
	require.ErrorIs(t, err, common.ErrMalformedPayload)
}

func TestParse_VersionHandling(t *testing.T) {
	parsed, err := Parse([]byte(`{"time":1}`), owner)
	require.NoError(t, err)
	require.Equal(t, 0, parsed.Version, "absent version means version 0")

	_, err = Parse([]byte(`{"version":99,"time":1}`), owner)
	require.ErrorIs(t, err, common.ErrUnsupportedVersion)
}

func TestParse_FailsClosedOnOneBadReply(t *testing.T) {
	dto := payloadDTO{}
	now := int64(10)
	dto.Time = &now
	for i := 0; i < 9; i++ {
		id := string(rune('a' + i))
		post := "p"
		text := "fine"
		tm := int64(i + 1)
		dto.Replies = append(dto.Replies, replyDTO{ID: &id, PostID: &post, Time: &tm, Text: &text})
	}
	// the tenth reply misses its parent post id
	id, text, tm := "broken", "oops", int64(99)
	dto.Replies = append(dto.Replies, replyDTO{ID: &id, Time: &tm, Text: &text})

	data, err := json.Marshal(dto)
	require.NoError(t, err)

	_, err = Parse(data, owner)
	require.ErrorIs(t, err, common.ErrMalformedPayload, "one bad reply rejects the whole payload")
}

func TestParse_ForwardAlbumReference(t *testing.T) {
	payload := `{
		"time": 5,
		"albums": [
			{"id": "child", "title": "child", "parent": "parent"},
			{"id": "parent", "title": "parent"}
		]
	}`
	_, err := Parse([]byte(payload), owner)
	require.ErrorIs(t, err, common.ErrMalformedPayload)
}

func TestParse_ImageMustReferenceParsedAlbum(t *testing.T) {
	payload := `{
		"time": 5,
		"images": [
			{"id": "i", "album": "missing", "key": "CHK@x", "title": "t",
			 "creation-time": 1, "width": 10, "height": 10}
		]
	}`
	_, err := Parse([]byte(payload), owner)
	require.ErrorIs(t, err, common.ErrMalformedPayload)
}

func TestParse_ImageDimensionsMustBePositive(t *testing.T) {
	payload := `{
		"time": 5,
		"albums": [{"id": "a", "title": "a"}],
		"images": [
			{"id": "i", "album": "a", "key": "CHK@x", "title": "t",
			 "creation-time": 1, "width": 0, "height": 10}
		]
	}`
	_, err := Parse([]byte(payload), owner)
	require.ErrorIs(t, err, common.ErrMalformedPayload)
}

func TestParse_RecipientLengthRule(t *testing.T) {
	payload := `{
		"time": 5,
		"posts": [
			{"id": "p1", "time": 1, "text": "to you", "recipient": "` + recipient + `"},
			{"id": "p2", "time": 2, "text": "bad recipient", "recipient": "short"}
		]
	}`
	parsed, err := Parse([]byte(payload), owner)
	require.NoError(t, err, "a malformed recipient is dropped, not fatal")
	require.Equal(t, recipient, parsed.Content.Posts["p1"].RecipientID)
	require.Empty(t, parsed.Content.Posts["p2"].RecipientID)
}

func TestParse_GarbageInput(t *testing.T) {
	_, err := Parse([]byte(`{"time": "not a number"}`), owner)
	require.ErrorIs(t, err, common.ErrMalformedPayload)

	_, err = Parse([]byte(`not json at all`), owner)
	require.ErrorIs(t, err, common.ErrMalformedPayload)
}

func TestParse_SetsAuthorToOwner(t *testing.T) {
	payload := `{"time": 5, "posts": [{"id": "p", "time": 1, "text": "hi"}],
		"replies": [{"id": "r", "post": "p", "time": 2, "text": "re"}]}`
	parsed, err := Parse([]byte(payload), owner)
	require.NoError(t, err)
	require.Equal(t, owner, parsed.Content.Posts["p"].AuthorID)
	require.Equal(t, owner, parsed.Content.Replies["r"].AuthorID)
}
