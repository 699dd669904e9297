package richtext

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMastodonEntities(t *testing.T) {
	c := NewComposerWithText("hi @alice #go https://x.io")
	require.Equal(t, 3, c.ParseEntitiesFromText(testDestinations))

	got := c.MastodonEntities()
	want := []MastodonEntity{
		{Type: KindMention, Range: ByteRange{Start: 3, End: 9}, Payload: MastodonPayload{Acct: "alice", Username: "alice"}},
		{Type: KindHashtag, Range: ByteRange{Start: 10, End: 13}},
		{Type: KindLink, Range: ByteRange{Start: 14, End: 26}},
	}
	assert.Equal(t, want, got)
}

func TestMastodonEntitiesUseByteOffsets(t *testing.T) {
	c := NewComposerWithText("😀 café @bob")
	require.Equal(t, 1, c.ParseEntitiesFromText([]string{"mastodon:1"}))

	got := c.MastodonEntities()
	require.Len(t, got, 1)
	assert.Equal(t, ByteRange{Start: 11, End: 15}, got[0].Range)
}

func TestBlueskyFacets(t *testing.T) {
	t.Run("mentions wait for a did", func(t *testing.T) {
		c := NewComposerWithText("hi @alice.bsky.social #go https://x.io")
		require.Equal(t, 3, c.ParseEntitiesFromText(testDestinations))

		facets := c.BlueskyFacets()
		require.Len(t, facets, 2)
		assert.Equal(t, FacetTag, facets[0].Features[0].Type)
		assert.Equal(t, "go", facets[0].Features[0].Tag)
		assert.Equal(t, FacetLink, facets[1].Features[0].Type)
		assert.Equal(t, "https://x.io", facets[1].Features[0].URI)

		_, err := c.ResolveMentionDIDs(context.Background(), staticResolver{"alice.bsky.social": "did:plc:alice"})
		require.NoError(t, err)

		facets = c.BlueskyFacets()
		require.Len(t, facets, 3)
		assert.Equal(t, BlueskyFacet{
			Index:    FacetIndex{ByteStart: 3, ByteEnd: 21},
			Features: []FacetFeature{{Type: FacetMention, DID: "did:plc:alice"}},
		}, facets[0])
	})

	t.Run("no bluesky destination", func(t *testing.T) {
		c := NewComposerWithText("#go")
		require.Equal(t, 1, c.ParseEntitiesFromText([]string{"mastodon:1"}))
		assert.Empty(t, c.BlueskyFacets())
	})

	t.Run("emoji have no facet", func(t *testing.T) {
		c := NewComposerWithText(":x")
		require.NoError(t, c.Replace(Range{Location: 0, Length: 2}, "😀", TextEntity{
			Data:     EmojiData{Shortcode: "grin"},
			Payloads: map[Destination]EntityPayload{{Platform: "bluesky", AccountID: "did:plc:me"}: BlueskyPayload{}},
		}))
		assert.Empty(t, c.BlueskyFacets())
	})

	t.Run("json shape", func(t *testing.T) {
		c := NewComposerWithText("#go")
		require.Equal(t, 1, c.ParseEntitiesFromText(testDestinations))

		raw, err := json.Marshal(c.BlueskyFacets())
		require.NoError(t, err)
		assert.JSONEq(t, `[{"index":{"byteStart":0,"byteEnd":3},"features":[{"$type":"app.bsky.richtext.facet#tag","tag":"go"}]}]`, string(raw))
	})
}

func TestWireProjectionSkipsUnmappableRanges(t *testing.T) {
	// the first tag starts on the low half of the emoji
	c := RestoreDraft(Draft{
		Text: "😀x #go",
		Entities: []DraftEntity{
			{ID: "split", Kind: KindHashtag, Range: Range{Location: 1, Length: 2}, DisplayText: "?x", Tag: "x"},
			{ID: "go", Kind: KindHashtag, Range: Range{Location: 4, Length: 3}, DisplayText: "#go", Tag: "go"},
		},
	}, testDestinations)
	require.Len(t, c.Entities(), 2)

	masto := c.MastodonEntities()
	require.Len(t, masto, 1)
	assert.Equal(t, ByteRange{Start: 6, End: 9}, masto[0].Range)

	facets := c.BlueskyFacets()
	require.Len(t, facets, 1)
	assert.Equal(t, FacetIndex{ByteStart: 6, ByteEnd: 9}, facets[0].Index)
	assert.Equal(t, "go", facets[0].Features[0].Tag)
}
