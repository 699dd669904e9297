package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// canonicalNamespace seeds the UUIDv5 canonical post IDs.
var canonicalNamespace = uuid.MustParse("6f1c54b2-3a0e-4c7e-9d0a-2f8b1e6c4a57")

// NativePostKey identifies a post on its own network. On Bluesky the ID is the
// AT-URI; on Mastodon it is the status ID.
type NativePostKey struct {
	Platform Platform `json:"platform"`
	ID       string   `json:"id"`
}

func (k NativePostKey) String() string {
	return string(k.Platform) + ":" + k.ID
}

// IsZero reports whether the key is unset.
func (k NativePostKey) IsZero() bool {
	return k.ID == ""
}

// Author is the account that wrote (or boosted) a post.
type Author struct {
	ID          CanonicalUserID `json:"id"`
	DisplayName string          `json:"displayName,omitempty"`
}

// Account is one of the viewer's own accounts, used when calling a network.
type Account struct {
	Platform Platform `json:"platform"`
	ID       string   `json:"id"`
	Handle   string   `json:"handle,omitempty"`
}

// Destination returns the "<platform>:<accountId>" identifier of the account.
func (a Account) Destination() string {
	return string(a.Platform) + ":" + a.ID
}

// Post is a single native post as delivered by a network. Relations to other
// posts are stored as keys into the post arena, never as pointers.
type Post struct {
	Key NativePostKey `json:"key"`

	// URI is the AT-URI on Bluesky or the ActivityPub URI on Mastodon.
	URI string `json:"uri,omitempty"`

	// CID is the content identifier of a Bluesky record.
	CID string `json:"cid,omitempty"`

	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	Langs     []string  `json:"langs,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	// InReplyToID is the native ID of the parent post, if this is a reply.
	InReplyToID string `json:"inReplyToId,omitempty"`

	// Parent references an already-known parent in the arena.
	Parent *NativePostKey `json:"parent,omitempty"`

	// BoostedBy is set when this post reached the timeline through a boost or
	// repost. BoostedAt is when that happened.
	BoostedBy *Author   `json:"boostedBy,omitempty"`
	BoostedAt time.Time `json:"boostedAt,omitzero"`

	// Original references the boosted post in the arena.
	Original *NativePostKey `json:"original,omitempty"`
}

// IsReply reports whether the post answers another post.
func (p *Post) IsReply() bool {
	return p.InReplyToID != "" || p.Parent != nil
}

// IsBoost reports whether the post is a boost or repost of another post.
func (p *Post) IsBoost() bool {
	return p.BoostedBy != nil || p.Original != nil
}

// PostLookup reads posts out of the arena.
type PostLookup interface {
	Post(key NativePostKey) (*Post, bool)
}

// CanonicalPostID derives the canonical ID for a post first seen under key.
func CanonicalPostID(key NativePostKey) string {
	return uuid.NewSHA1(canonicalNamespace, []byte(key.String())).String()
}

// CanonicalPost is the network-agnostic record of one post plus the social
// signals merged into it.
type CanonicalPost struct {
	ID            string   `json:"id"`
	OriginNetwork Platform `json:"originNetwork"`

	// NativeKeys holds every native key that refers to this post: the post
	// itself plus the boost or repost records pointing at it.
	NativeKeys map[NativePostKey]struct{} `json:"-"`

	CreatedAt            time.Time     `json:"createdAt"`
	LastSocialActivityAt time.Time     `json:"lastSocialActivityAt"`
	Post                 Post          `json:"post"`
	SocialContext        SocialContext `json:"socialContext"`
}

// NewCanonicalPost wraps post in a fresh CanonicalPost.
func NewCanonicalPost(post Post) *CanonicalPost {
	return &CanonicalPost{
		ID:                   CanonicalPostID(post.Key),
		OriginNetwork:        post.Key.Platform,
		NativeKeys:           map[NativePostKey]struct{}{post.Key: {}},
		CreatedAt:            post.CreatedAt,
		LastSocialActivityAt: post.CreatedAt,
		Post:                 post,
	}
}

// AddNativeKey records another native key for the post. It returns false if
// the key was already known.
func (c *CanonicalPost) AddNativeKey(key NativePostKey) bool {
	if key.IsZero() {
		return false
	}
	if c.NativeKeys == nil {
		c.NativeKeys = make(map[NativePostKey]struct{})
	}
	if _, ok := c.NativeKeys[key]; ok {
		return false
	}
	c.NativeKeys[key] = struct{}{}
	return true
}

// Keys returns the native keys sorted by their string form.
func (c *CanonicalPost) Keys() []NativePostKey {
	keys := make([]NativePostKey, 0, len(c.NativeKeys))
	for k := range c.NativeKeys {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b NativePostKey) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

// ApplySocialEvent merges event into the post. Only reposts change anything.
func (c *CanonicalPost) ApplySocialEvent(event SocialEvent) bool {
	if !c.SocialContext.Apply(event) {
		return false
	}
	if event.OccurredAt.After(c.LastSocialActivityAt) {
		c.LastSocialActivityAt = event.OccurredAt
	}
	c.AddNativeKey(event.Source)
	return true
}

// Clone returns a deep copy of the post.
func (c *CanonicalPost) Clone() *CanonicalPost {
	cp := *c
	cp.NativeKeys = make(map[NativePostKey]struct{}, len(c.NativeKeys))
	for k := range c.NativeKeys {
		cp.NativeKeys[k] = struct{}{}
	}
	cp.SocialContext.RepostActors = append([]SocialActor(nil), c.SocialContext.RepostActors...)
	return &cp
}
