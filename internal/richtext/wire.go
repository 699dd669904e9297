package richtext

import "github.com/blackmichael/crossfeed/internal/domain"

// Bluesky rich text facet feature types.
const (
	FacetMention = "app.bsky.richtext.facet#mention"
	FacetLink    = "app.bsky.richtext.facet#link"
	FacetTag     = "app.bsky.richtext.facet#tag"
)

// MastodonEntity is an entity as sent to Mastodon: kind, byte range and the
// Mastodon payload.
type MastodonEntity struct {
	Type    EntityKind      `json:"type"`
	Range   ByteRange       `json:"range"`
	Payload MastodonPayload `json:"payload"`
}

// BlueskyFacet is an app.bsky.richtext.facet.
type BlueskyFacet struct {
	Index    FacetIndex     `json:"index"`
	Features []FacetFeature `json:"features"`
}

// FacetIndex is the UTF-8 byte slice a facet covers.
type FacetIndex struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// FacetFeature is one facet feature. Exactly one of DID, URI and Tag is set,
// matching Type.
type FacetFeature struct {
	Type string `json:"$type"`
	DID  string `json:"did,omitempty"`
	URI  string `json:"uri,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// MastodonEntities projects the entities onto Mastodon. Entities without a
// Mastodon payload, or whose range cannot be mapped to bytes, are left out.
func (c *Composer) MastodonEntities() []MastodonEntity {
	snap := c.Snapshot()
	out := make([]MastodonEntity, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		p, ok := e.PayloadFor(domain.PlatformMastodon)
		if !ok {
			continue
		}
		payload, ok := p.(MastodonPayload)
		if !ok {
			continue
		}
		br, ok := ToByteRange(snap.Text, e.Range)
		if !ok {
			continue
		}
		out = append(out, MastodonEntity{Type: e.Kind, Range: br, Payload: payload})
	}
	return out
}

// BlueskyFacets projects the entities onto Bluesky facets. Entities without
// a Bluesky payload, mentions whose DID is still unknown, emoji, and
// entities whose range cannot be mapped to bytes are left out.
func (c *Composer) BlueskyFacets() []BlueskyFacet {
	snap := c.Snapshot()
	out := make([]BlueskyFacet, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		p, ok := e.PayloadFor(domain.PlatformBluesky)
		if !ok {
			continue
		}
		payload, ok := p.(BlueskyPayload)
		if !ok {
			continue
		}
		feature, ok := facetFeature(e, payload)
		if !ok {
			continue
		}
		br, ok := ToByteRange(snap.Text, e.Range)
		if !ok {
			continue
		}
		out = append(out, BlueskyFacet{
			Index:    FacetIndex{ByteStart: br.Start, ByteEnd: br.End},
			Features: []FacetFeature{feature},
		})
	}
	return out
}

func facetFeature(e TextEntity, payload BlueskyPayload) (FacetFeature, bool) {
	switch data := e.Data.(type) {
	case MentionData:
		if payload.DID == "" {
			return FacetFeature{}, false
		}
		return FacetFeature{Type: FacetMention, DID: payload.DID}, true
	case LinkData:
		return FacetFeature{Type: FacetLink, URI: data.URL}, true
	case HashtagData:
		return FacetFeature{Type: FacetTag, Tag: data.Tag}, true
	default:
		return FacetFeature{}, false
	}
}
