package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testAddress = "USK@test-address-0000000000000000000000000"

func TestFingerprint_StableForUnchangedContent(t *testing.T) {
	d := NewLocalDocument(testAddress)
	_, err := d.CreatePost(time.UnixMilli(1000), "hello", "")
	require.NoError(t, err)
	_, err = d.CreateReply(time.UnixMilli(2000), "some-post", "re")
	require.NoError(t, err)
	d.LikePost("p1")

	first := d.Fingerprint()
	for i := 0; i < 10; i++ {
		require.Equal(t, first, d.Fingerprint())
	}
}

func TestFingerprint_ChangesOnEdit(t *testing.T) {
	d := NewLocalDocument(testAddress)
	before := d.Fingerprint()

	_, err := d.CreatePost(time.UnixMilli(1000), "hello", "")
	require.NoError(t, err)
	require.NotEqual(t, before, d.Fingerprint())
}

func TestFingerprint_IgnoresKnownFlag(t *testing.T) {
	d := NewLocalDocument(testAddress)
	p, err := d.CreatePost(time.UnixMilli(1000), "hello", "")
	require.NoError(t, err)

	before := d.Fingerprint()
	d.MarkPostKnown(p.ID)
	require.Equal(t, before, d.Fingerprint(), "known is local-only and must not affect the digest")
}

func TestFingerprint_IgnoresVersionFields(t *testing.T) {
	d := NewLocalDocument(testAddress)
	before := d.Fingerprint()
	d.CommitPublish(5, 12345)
	require.Equal(t, before, d.Fingerprint())
}

func TestLatestEdition_OnlyIncreases(t *testing.T) {
	d := NewRemoteDocument(testAddress)
	d.SetLatestEdition(7)
	d.SetLatestEdition(3)
	require.Equal(t, int64(7), d.LatestEdition())

	accepted := d.ApplyUpdate(100, 2, true, func(old *Content) *Content { return NewContent() })
	require.True(t, accepted)
	require.Equal(t, int64(7), d.LatestEdition(), "rescue accept at an older edition must not decrease it")
}

func TestApplyUpdate_RejectsStaleTime(t *testing.T) {
	d := NewRemoteDocument(testAddress)
	d.SetTime(500)

	called := false
	accepted := d.ApplyUpdate(500, 1, false, func(old *Content) *Content {
		called = true
		return NewContent()
	})
	require.False(t, accepted)
	require.False(t, called)
	require.Equal(t, int64(500), d.Time())
}

func TestApplyUpdate_RescueBypassesTimeCheck(t *testing.T) {
	d := NewRemoteDocument(testAddress)
	d.SetTime(500)

	accepted := d.ApplyUpdate(400, 1, true, func(old *Content) *Content { return NewContent() })
	require.True(t, accepted)
	require.Equal(t, int64(400), d.Time())
}

func TestSnapshot_SortsNewestFirstAndPrunesEmptyAlbums(t *testing.T) {
	d := NewLocalDocument(testAddress)
	_, err := d.CreatePost(time.UnixMilli(1000), "old", "")
	require.NoError(t, err)
	_, err = d.CreatePost(time.UnixMilli(3000), "new", "")
	require.NoError(t, err)

	empty, err := d.CreateAlbum("root", "empty", "")
	require.NoError(t, err)
	full, err := d.CreateAlbum("root", "pics", "")
	require.NoError(t, err)
	img := NewImage(time.UnixMilli(1), "a cat", "", 640, 480)
	img.Key = "CHK@img"
	require.NoError(t, d.AddImage(full.ID, img))

	s := d.Snapshot()
	require.Equal(t, "new", s.Posts[0].Text)
	require.Equal(t, "old", s.Posts[1].Text)
	require.Nil(t, s.RootAlbum.Find(empty.ID))
	require.NotNil(t, s.RootAlbum.Find(full.ID))
	require.Equal(t, d.Fingerprint(), s.Fingerprint)
}

func TestSnapshot_IsDetachedFromLiveDocument(t *testing.T) {
	d := NewLocalDocument(testAddress)
	_, err := d.CreatePost(time.UnixMilli(1000), "hello", "")
	require.NoError(t, err)

	s := d.Snapshot()
	_, err = d.CreatePost(time.UnixMilli(2000), "later", "")
	require.NoError(t, err)

	require.Len(t, s.Posts, 1)
	require.NotEqual(t, s.Fingerprint, d.Fingerprint())
}

func TestCreateAlbum_RequiresResolvableParent(t *testing.T) {
	d := NewLocalDocument(testAddress)
	_, err := d.CreateAlbum("nope", "title", "")
	require.ErrorIs(t, err, ErrUnknownAlbum)
}

func TestDeleteAlbum_Rules(t *testing.T) {
	d := NewLocalDocument(testAddress)
	a, err := d.CreateAlbum("root", "outer", "")
	require.NoError(t, err)
	b, err := d.CreateAlbum(a.ID, "inner", "")
	require.NoError(t, err)

	require.ErrorIs(t, d.DeleteAlbum("root"), ErrRootAlbum)
	require.ErrorIs(t, d.DeleteAlbum(a.ID), ErrAlbumNotEmpty)
	require.NoError(t, d.DeleteAlbum(b.ID))
	require.NoError(t, d.DeleteAlbum(a.ID))
}

func TestValidateImage_FailsClosed(t *testing.T) {
	img := NewImage(time.UnixMilli(1), "title", "", 10, 10)
	require.ErrorIs(t, ValidateImage(img), ErrMissingKey)

	img.Key = "CHK@x"
	require.NoError(t, ValidateImage(img))

	img.Width = 0
	require.ErrorIs(t, ValidateImage(img), ErrInvalidSize)
}

func TestRescueLock(t *testing.T) {
	d := NewLocalDocument(testAddress)
	require.False(t, d.IsRescueLocked())
	d.LockForRescue()
	require.True(t, d.IsRescueLocked())
	d.UnlockRescue()
	require.False(t, d.IsRescueLocked())
}

func TestSettings_InsertionDelay(t *testing.T) {
	s := NewSettings()
	require.Equal(t, DefaultInsertionDelay, s.InsertionDelay())
	s.SetInsertionDelay(5 * time.Second)
	require.Equal(t, 5*time.Second, s.InsertionDelay())
	s.SetInsertionDelay(0)
	require.Equal(t, 5*time.Second, s.InsertionDelay(), "non-positive values are ignored")
}
