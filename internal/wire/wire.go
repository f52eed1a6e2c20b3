// Package wire encodes document snapshots into the published payload
// format and parses untrusted payloads back into document content.
//
// Parsing fails closed: a payload either yields a complete, valid content
// tree or an error; nothing partial is ever produced. The serializer
// writes albums parent-before-child, and the parser enforces the same
// ordering, so a forward reference is a structural error, not a fixup
// case.
package wire

// ProtocolVersion is the version written into new payloads.
const ProtocolVersion = 1

// MaxSupportedVersion is the highest protocol version this parser
// accepts. An absent version field means version 0.
const MaxSupportedVersion = ProtocolVersion

type payloadDTO struct {
	Version       *int       `json:"version,omitempty"`
	Time          *int64     `json:"time"`
	Profile       profileDTO `json:"profile"`
	Posts         []postDTO  `json:"posts,omitempty"`
	Replies       []replyDTO `json:"replies,omitempty"`
	LikedPostIDs  []string   `json:"liked-post-ids,omitempty"`
	LikedReplyIDs []string   `json:"liked-reply-ids,omitempty"`
	Albums        []albumDTO `json:"albums,omitempty"`
	Images        []imageDTO `json:"images,omitempty"`
}

type profileDTO struct {
	FirstName  string `json:"first-name,omitempty"`
	MiddleName string `json:"middle-name,omitempty"`
	LastName   string `json:"last-name,omitempty"`
	BirthDay   int    `json:"birth-day,omitempty"`
	BirthMonth int    `json:"birth-month,omitempty"`
	BirthYear  int    `json:"birth-year,omitempty"`
	AvatarID   string `json:"avatar,omitempty"`
}

type postDTO struct {
	ID        *string `json:"id"`
	Time      *int64  `json:"time"`
	Text      *string `json:"text"`
	Recipient *string `json:"recipient,omitempty"`
}

type replyDTO struct {
	ID     *string `json:"id"`
	PostID *string `json:"post"`
	Time   *int64  `json:"time"`
	Text   *string `json:"text"`
}

type albumDTO struct {
	ID          *string `json:"id"`
	Title       *string `json:"title"`
	Description string  `json:"description,omitempty"`
	Parent      *string `json:"parent,omitempty"`
}

type imageDTO struct {
	ID           *string `json:"id"`
	AlbumID      *string `json:"album"`
	Key          *string `json:"key"`
	Title        *string `json:"title"`
	Description  string  `json:"description,omitempty"`
	CreationTime *int64  `json:"creation-time"`
	Width        *int    `json:"width"`
	Height       *int    `json:"height"`
}
