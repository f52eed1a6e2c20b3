package wire

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/feedsync/internal/feed"
)

// Build serializes a snapshot into the published payload format. Local-only
// state (known flags) is never written. Images without a key have not been
// published yet and are skipped; empty albums were already pruned when the
// snapshot was taken.
func Build(s *feed.Snapshot) ([]byte, error) {
	version := ProtocolVersion
	dto := payloadDTO{
		Version: &version,
		Time:    &s.Time,
		Profile: profileDTO{
			FirstName:  s.Profile.FirstName,
			MiddleName: s.Profile.MiddleName,
			LastName:   s.Profile.LastName,
			BirthDay:   s.Profile.BirthDay,
			BirthMonth: s.Profile.BirthMonth,
			BirthYear:  s.Profile.BirthYear,
			AvatarID:   s.Profile.AvatarID,
		},
		LikedPostIDs:  s.LikedPostIDs,
		LikedReplyIDs: s.LikedReplyIDs,
	}

	for i := range s.Posts {
		p := &s.Posts[i]
		if err := feed.ValidatePost(p); err != nil {
			return nil, fmt.Errorf("post %s: %w", p.ID, err)
		}
		d := postDTO{ID: &p.ID, Time: &p.Time, Text: &p.Text}
		if p.RecipientID != "" {
			d.Recipient = &p.RecipientID
		}
		dto.Posts = append(dto.Posts, d)
	}

	for i := range s.Replies {
		r := &s.Replies[i]
		if err := feed.ValidateReply(r); err != nil {
			return nil, fmt.Errorf("reply %s: %w", r.ID, err)
		}
		dto.Replies = append(dto.Replies, replyDTO{ID: &r.ID, PostID: &r.PostID, Time: &r.Time, Text: &r.Text})
	}

	if s.RootAlbum != nil {
		if err := appendAlbums(&dto, s.RootAlbum, nil); err != nil {
			return nil, err
		}
	}

	return json.Marshal(dto)
}

// appendAlbums walks the tree pre-order so every album precedes its
// children and every image follows its album.
func appendAlbums(dto *payloadDTO, a *feed.Album, parentID *string) error {
	for _, child := range a.Albums {
		if err := feed.ValidateAlbum(child); err != nil {
			return fmt.Errorf("album %s: %w", child.ID, err)
		}
		d := albumDTO{ID: &child.ID, Title: &child.Title, Description: child.Description, Parent: parentID}
		dto.Albums = append(dto.Albums, d)

		for _, img := range child.Images {
			if img.Key == "" {
				// not published yet, nothing to reference
				continue
			}
			if err := feed.ValidateImage(img); err != nil {
				return fmt.Errorf("image %s: %w", img.ID, err)
			}
			dto.Images = append(dto.Images, imageDTO{
				ID:           &img.ID,
				AlbumID:      &child.ID,
				Key:          &img.Key,
				Title:        &img.Title,
				Description:  img.Description,
				CreationTime: &img.CreationTime,
				Width:        &img.Width,
				Height:       &img.Height,
			})
		}
		if err := appendAlbums(dto, child, &child.ID); err != nil {
			return err
		}
	}
	return nil
}
