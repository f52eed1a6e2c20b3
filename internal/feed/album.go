package feed

import (
	"time"

	"github.com/google/uuid"
)

// Album is a node in a document's album tree. Every non-root album has a
// parent in the same tree; children keep insertion order.
type Album struct {
	ID          string
	Title       string
	Description string
	Parent      *Album
	Albums      []*Album
	Images      []*Image
}

// NewAlbum creates an empty album. The caller attaches it to a parent via
// Document.CreateAlbum or Album.attach.
func NewAlbum(title, description string) *Album {
	return &Album{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
	}
}

// ValidateAlbum checks the fields every album must carry.
func ValidateAlbum(a *Album) error {
	switch {
	case a.ID == "":
		return ErrMissingID
	case a.Title == "":
		return ErrEmptyTitle
	}
	return nil
}

// IsEmpty reports whether the album holds no published images and no
// non-empty child albums. Images without a key have never been published
// and do not count. Empty albums are pruned from published snapshots.
func (a *Album) IsEmpty() bool {
	for _, img := range a.Images {
		if img.Key != "" {
			return false
		}
	}
	for _, child := range a.Albums {
		if !child.IsEmpty() {
			return false
		}
	}
	return true
}

// Find returns the album with the given id in the subtree rooted at a,
// or nil.
func (a *Album) Find(id string) *Album {
	if a.ID == id {
		return a
	}
	for _, child := range a.Albums {
		if found := child.Find(id); found != nil {
			return found
		}
	}
	return nil
}

// Copy deep-copies the subtree rooted at a. When pruneEmpty is set, empty
// albums are dropped (the root is always kept).
func (a *Album) Copy(pruneEmpty bool) *Album {
	out := &Album{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
	}
	for _, img := range a.Images {
		c := *img
		out.Images = append(out.Images, &c)
	}
	for _, child := range a.Albums {
		if pruneEmpty && child.IsEmpty() {
			continue
		}
		cc := child.Copy(pruneEmpty)
		cc.Parent = out
		out.Albums = append(out.Albums, cc)
	}
	return out
}

// Image is a published picture inside an album. Key is the content address
// assigned on first successful publish and stays empty until then.
type Image struct {
	ID           string
	Key          string
	Title        string
	Description  string
	CreationTime int64
	Width        int
	Height       int
}

// NewImage creates an image record for an upload that has not been
// published yet (empty key).
func NewImage(t time.Time, title, description string, width, height int) *Image {
	return &Image{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		CreationTime: t.UnixMilli(),
		Width:        width,
		Height:       height,
	}
}

// ValidateImage checks the fields every published image must carry.
func ValidateImage(img *Image) error {
	switch {
	case img.ID == "":
		return ErrMissingID
	case img.Key == "":
		return ErrMissingKey
	case img.Title == "":
		return ErrEmptyTitle
	case img.CreationTime == 0:
		return ErrMissingTime
	case img.Width <= 0 || img.Height <= 0:
		return ErrInvalidSize
	}
	return nil
}
