package richtext

import (
	"slices"
	"strings"

	"github.com/blackmichael/crossfeed/internal/domain"
)

// EntityKind is the kind of span an entity marks.
type EntityKind string

const (
	KindMention EntityKind = "mention"
	KindHashtag EntityKind = "hashtag"
	KindLink    EntityKind = "link"
	KindEmoji   EntityKind = "emoji"
)

// EntityData is the kind-specific content of an entity. The set of
// implementations is closed.
type EntityData interface {
	Kind() EntityKind
	isEntityData()
}

// MentionData is a mention of @Handle or @Handle@Domain.
type MentionData struct {
	Handle string `json:"handle"`
	Domain string `json:"domain,omitempty"`
}

// HashtagData is a #Tag, stored without the leading '#'.
type HashtagData struct {
	Tag string `json:"tag"`
}

// LinkData is a bare URL.
type LinkData struct {
	URL string `json:"url"`
}

// EmojiData is a custom emoji inserted from the picker.
type EmojiData struct {
	Shortcode string `json:"shortcode"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

func (MentionData) Kind() EntityKind { return KindMention }
func (HashtagData) Kind() EntityKind { return KindHashtag }
func (LinkData) Kind() EntityKind    { return KindLink }
func (EmojiData) Kind() EntityKind   { return KindEmoji }

func (MentionData) isEntityData() {}
func (HashtagData) isEntityData() {}
func (LinkData) isEntityData()    {}
func (EmojiData) isEntityData()   {}

// Acct returns the mention as user or user@domain.
func (m MentionData) Acct() string {
	if m.Domain != "" {
		return m.Handle + "@" + m.Domain
	}
	return m.Handle
}

// EntityPayload is the per-destination data an entity carries. The set of
// implementations is closed; payloads compare with ==.
type EntityPayload interface {
	Platform() domain.Platform
	isEntityPayload()
}

// MastodonPayload addresses a Mastodon account.
type MastodonPayload struct {
	Acct     string `json:"acct,omitempty"`
	Username string `json:"username,omitempty"`
}

// BlueskyPayload addresses a Bluesky account. DID stays empty until the
// handle is resolved.
type BlueskyPayload struct {
	Handle string `json:"handle,omitempty"`
	DID    string `json:"did,omitempty"`
}

func (MastodonPayload) Platform() domain.Platform { return domain.PlatformMastodon }
func (BlueskyPayload) Platform() domain.Platform  { return domain.PlatformBluesky }

func (MastodonPayload) isEntityPayload() {}
func (BlueskyPayload) isEntityPayload()  {}

// TextEntity marks a span of the composer text.
type TextEntity struct {
	ID          string                        `json:"id"`
	Kind        EntityKind                    `json:"kind"`
	Range       Range                         `json:"range"`
	DisplayText string                        `json:"displayText"`
	Payloads    map[Destination]EntityPayload `json:"payloads,omitempty"`
	Data        EntityData                    `json:"data,omitempty"`
}

// Clone returns a copy with its own payload map.
func (e TextEntity) Clone() TextEntity {
	if e.Payloads != nil {
		payloads := make(map[Destination]EntityPayload, len(e.Payloads))
		for d, p := range e.Payloads {
			payloads[d] = p
		}
		e.Payloads = payloads
	}
	return e
}

// PayloadFor returns the payload for the first destination on platform,
// ordering destinations by their string form.
func (e TextEntity) PayloadFor(platform domain.Platform) (EntityPayload, bool) {
	var dests []Destination
	for d := range e.Payloads {
		if d.Platform == platform {
			dests = append(dests, d)
		}
	}
	if len(dests) == 0 {
		return nil, false
	}
	slices.SortFunc(dests, func(a, b Destination) int {
		return strings.Compare(a.String(), b.String())
	})
	return e.Payloads[dests[0]], true
}

// buildPayload creates the payload one destination gets for data.
func buildPayload(dest Destination, data EntityData) EntityPayload {
	mention, isMention := data.(MentionData)
	switch dest.Platform {
	case domain.PlatformMastodon:
		if isMention {
			return MastodonPayload{Acct: mention.Acct(), Username: mention.Handle}
		}
		return MastodonPayload{}
	case domain.PlatformBluesky:
		if isMention {
			return BlueskyPayload{Handle: strings.ToLower(mention.Acct())}
		}
		return BlueskyPayload{}
	default:
		return nil
	}
}

func payloadsFor(dests []Destination, data EntityData) map[Destination]EntityPayload {
	payloads := make(map[Destination]EntityPayload, len(dests))
	for _, d := range dests {
		if p := buildPayload(d, data); p != nil {
			payloads[d] = p
		}
	}
	return payloads
}

func sortEntities(entities []TextEntity) {
	slices.SortStableFunc(entities, func(a, b TextEntity) int {
		if a.Range.Location != b.Range.Location {
			return a.Range.Location - b.Range.Location
		}
		return a.Range.Length - b.Range.Length
	})
}
