package wire

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/feedsync/internal/common"
	"github.com/dmitrijs2005/feedsync/internal/feed"
)

// Parsed is the outcome of a successful parse: the payload's logical time
// plus a complete content tree attributable to the owning document.
type Parsed struct {
	Version int
	Time    int64
	Content *feed.Content
}

// Parse validates the payload and builds document content owned by the
// given address. Any missing required field, unparsable value or dangling
// reference rejects the whole payload with common.ErrMalformedPayload; a
// protocol version above MaxSupportedVersion rejects it with
// common.ErrUnsupportedVersion.
func Parse(data []byte, ownerAddress string) (*Parsed, error) {
	var dto payloadDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedPayload, err)
	}

	version := 0
	if dto.Version != nil {
		version = *dto.Version
	}
	if version > MaxSupportedVersion {
		return nil, fmt.Errorf("%w: %d (max %d)", common.ErrUnsupportedVersion, version, MaxSupportedVersion)
	}

	if dto.Time == nil {
		return nil, malformed("document: missing time")
	}

	c := feed.NewContent()
	c.Profile = feed.Profile{
		FirstName:  dto.Profile.FirstName,
		MiddleName: dto.Profile.MiddleName,
		LastName:   dto.Profile.LastName,
		BirthDay:   dto.Profile.BirthDay,
		BirthMonth: dto.Profile.BirthMonth,
		BirthYear:  dto.Profile.BirthYear,
		AvatarID:   dto.Profile.AvatarID,
	}

	for i, p := range dto.Posts {
		if p.ID == nil || p.Time == nil || p.Text == nil {
			return nil, malformed("post %d: missing required field", i)
		}
		if _, dup := c.Posts[*p.ID]; dup {
			return nil, malformed("post %d: duplicate id %s", i, *p.ID)
		}
		post := &feed.Post{
			ID:       *p.ID,
			AuthorID: ownerAddress,
			Time:     *p.Time,
			Text:     *p.Text,
		}
		// A recipient of the wrong shape is dropped, not fatal: old
		// clients used to write malformed recipient ids here.
		if p.Recipient != nil && len(*p.Recipient) == common.AddressLength {
			post.RecipientID = *p.Recipient
		}
		if err := feed.ValidatePost(post); err != nil {
			return nil, malformed("post %s: %v", *p.ID, err)
		}
		c.Posts[post.ID] = post
	}

	for i, r := range dto.Replies {
		if r.ID == nil || r.PostID == nil || r.Time == nil || r.Text == nil {
			return nil, malformed("reply %d: missing required field", i)
		}
		if _, dup := c.Replies[*r.ID]; dup {
			return nil, malformed("reply %d: duplicate id %s", i, *r.ID)
		}
		reply := &feed.Reply{
			ID:       *r.ID,
			AuthorID: ownerAddress,
			PostID:   *r.PostID,
			Time:     *r.Time,
			Text:     *r.Text,
		}
		if err := feed.ValidateReply(reply); err != nil {
			return nil, malformed("reply %s: %v", *r.ID, err)
		}
		c.Replies[reply.ID] = reply
	}

	for _, id := range dto.LikedPostIDs {
		if id == "" {
			return nil, malformed("empty liked post id")
		}
		c.LikedPostIDs[id] = struct{}{}
	}
	for _, id := range dto.LikedReplyIDs {
		if id == "" {
			return nil, malformed("empty liked reply id")
		}
		c.LikedReplyIDs[id] = struct{}{}
	}

	// Albums are transmitted parent-before-child, so a single pass
	// resolves every parent or the payload is structurally invalid.
	albums := map[string]*feed.Album{}
	for i, a := range dto.Albums {
		if a.ID == nil || a.Title == nil {
			return nil, malformed("album %d: missing required field", i)
		}
		if _, dup := albums[*a.ID]; dup {
			return nil, malformed("album %d: duplicate id %s", i, *a.ID)
		}
		album := &feed.Album{ID: *a.ID, Title: *a.Title, Description: a.Description}
		if err := feed.ValidateAlbum(album); err != nil {
			return nil, malformed("album %s: %v", *a.ID, err)
		}
		parent := c.RootAlbum
		if a.Parent != nil {
			parent = albums[*a.Parent]
			if parent == nil {
				return nil, malformed("album %s: unresolved parent %s", *a.ID, *a.Parent)
			}
		}
		album.Parent = parent
		parent.Albums = append(parent.Albums, album)
		albums[album.ID] = album
	}

	seenImages := map[string]bool{}
	for i, img := range dto.Images {
		if img.ID == nil || img.AlbumID == nil || img.Key == nil || img.Title == nil ||
			img.CreationTime == nil || img.Width == nil || img.Height == nil {
			return nil, malformed("image %d: missing required field", i)
		}
		if seenImages[*img.ID] {
			return nil, malformed("image %d: duplicate id %s", i, *img.ID)
		}
		album := albums[*img.AlbumID]
		if album == nil {
			return nil, malformed("image %s: unresolved album %s", *img.ID, *img.AlbumID)
		}
		image := &feed.Image{
			ID:           *img.ID,
			Key:          *img.Key,
			Title:        *img.Title,
			Description:  img.Description,
			CreationTime: *img.CreationTime,
			Width:        *img.Width,
			Height:       *img.Height,
		}
		if err := feed.ValidateImage(image); err != nil {
			return nil, malformed("image %s: %v", *img.ID, err)
		}
		album.Images = append(album.Images, image)
		seenImages[image.ID] = true
	}

	return &Parsed{Version: version, Time: *dto.Time, Content: c}, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrMalformedPayload, fmt.Sprintf(format, args...))
}
