package feed

import (
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// fingerprintContent digests the publishable content into a hex string.
// The stream is canonical: map entries are visited in sorted id order,
// every field is length-prefixed, and local-only state (known flags) is
// excluded, so recomputing over unchanged content always yields the same
// value regardless of map iteration order.
func fingerprintContent(c *Content) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only possible with an oversized key, and we pass none
		panic(err)
	}

	w := func(parts ...string) {
		for _, s := range parts {
			var l [8]byte
			binary.BigEndian.PutUint64(l[:], uint64(len(s)))
			h.Write(l[:])
			h.Write([]byte(s))
		}
	}
	wi := func(v int64) { w(strconv.FormatInt(v, 10)) }

	p := c.Profile
	w("profile", p.FirstName, p.MiddleName, p.LastName, p.AvatarID)
	wi(int64(p.BirthDay))
	wi(int64(p.BirthMonth))
	wi(int64(p.BirthYear))

	for _, id := range sortedKeys(c.Posts) {
		post := c.Posts[id]
		w("post", post.ID, post.Text, post.RecipientID)
		wi(post.Time)
	}
	for _, id := range sortedKeys(c.Replies) {
		reply := c.Replies[id]
		w("reply", reply.ID, reply.PostID, reply.Text)
		wi(reply.Time)
	}
	for _, id := range sortedSet(c.LikedPostIDs) {
		w("like-post", id)
	}
	for _, id := range sortedSet(c.LikedReplyIDs) {
		w("like-reply", id)
	}
	if c.RootAlbum != nil {
		fingerprintAlbum(c.RootAlbum, w, wi)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func fingerprintAlbum(a *Album, w func(...string), wi func(int64)) {
	w("album", a.ID, a.Title, a.Description)
	for _, img := range a.Images {
		w("image", img.ID, img.Key, img.Title, img.Description)
		wi(img.CreationTime)
		wi(int64(img.Width))
		wi(int64(img.Height))
	}
	for _, child := range a.Albums {
		fingerprintAlbum(child, w, wi)
	}
	w("end-album")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(s map[string]struct{}) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
