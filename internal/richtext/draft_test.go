package richtext

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftRestore(t *testing.T) {
	c := NewComposerWithText("hi @alice #go ")
	require.Equal(t, 2, c.ParseEntitiesFromText(testDestinations))
	require.NoError(t, c.Replace(Range{Location: 14, Length: 0}, "😀", TextEntity{
		Data: EmojiData{Shortcode: "grin", ImageURL: "https://cdn.example/grin.png"},
	}))

	raw, err := json.Marshal(c.Draft())
	require.NoError(t, err)

	var d Draft
	require.NoError(t, json.Unmarshal(raw, &d))

	restored := RestoreDraft(d, []string{"mastodon:1"})
	assert.Equal(t, c.Text(), restored.Text())
	assert.Equal(t, uint64(0), restored.Revision())

	orig, got := c.Entities(), restored.Entities()
	require.Len(t, got, len(orig))
	for i := range orig {
		assert.Equal(t, orig[i].ID, got[i].ID)
		assert.Equal(t, orig[i].Range, got[i].Range)
		assert.Equal(t, orig[i].Data, got[i].Data)
		assert.Equal(t, orig[i].DisplayText, got[i].DisplayText)
	}

	p, ok := got[0].PayloadFor("mastodon")
	require.True(t, ok)
	assert.Equal(t, MastodonPayload{Acct: "alice", Username: "alice"}, p)
	_, ok = got[0].PayloadFor("bluesky")
	assert.False(t, ok, "payloads follow the destinations given at restore")
}

func TestRestoreDraftDropsBadEntities(t *testing.T) {
	d := Draft{
		Text: "hello #go",
		Entities: []DraftEntity{
			{ID: "a", Kind: KindHashtag, Range: Range{Location: 6, Length: 3}, Tag: "go"},
			{ID: "b", Kind: KindHashtag, Range: Range{Location: 7, Length: 2}, Tag: "o"},
			{ID: "c", Kind: KindLink, Range: Range{Location: 5, Length: 10}, URL: "x"},
			{ID: "d", Kind: "sticker", Range: Range{Location: 0, Length: 5}},
			{ID: "e", Kind: KindMention, Range: Range{Location: 0, Length: 0}, Handle: "x"},
		},
	}

	c := RestoreDraft(d, testDestinations)

	entities := c.Entities()
	require.Len(t, entities, 1)
	assert.Equal(t, "a", entities[0].ID)
	assert.Equal(t, HashtagData{Tag: "go"}, entities[0].Data)
}
