package richtext

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnknownHandle = errors.New("unknown handle")

type staticResolver map[string]string

func (r staticResolver) ResolveHandle(_ context.Context, handle string) (string, error) {
	if did, ok := r[handle]; ok {
		return did, nil
	}
	return "", errUnknownHandle
}

// editingResolver edits the composer while a lookup is in flight.
type editingResolver struct {
	c *Composer
}

func (r editingResolver) ResolveHandle(context.Context, string) (string, error) {
	_, err := r.c.ApplyEdit(Range{Location: 0, Length: 0}, "> ")
	return "did:plc:late", err
}

func TestResolveMentionDIDs(t *testing.T) {
	t.Run("fills dids without bumping revision", func(t *testing.T) {
		c := NewComposerWithText("@alice.bsky.social and @bob.bsky.social")
		require.Equal(t, 2, c.ParseEntitiesFromText(testDestinations))
		rev := c.Revision()

		n, err := c.ResolveMentionDIDs(context.Background(), staticResolver{
			"alice.bsky.social": "did:plc:alice",
			"bob.bsky.social":   "did:plc:bob",
		})
		require.NoError(t, err)

		assert.Equal(t, 2, n)
		assert.Equal(t, rev, c.Revision())
		p, ok := c.Entities()[1].PayloadFor("bluesky")
		require.True(t, ok)
		assert.Equal(t, BlueskyPayload{Handle: "bob.bsky.social", DID: "did:plc:bob"}, p)
	})

	t.Run("stale result is discarded", func(t *testing.T) {
		c := NewComposerWithText("@alice.bsky.social")
		require.Equal(t, 1, c.ParseEntitiesFromText(testDestinations))

		n, err := c.ResolveMentionDIDs(context.Background(), editingResolver{c: c})
		require.ErrorIs(t, err, ErrStaleRevision)

		assert.Equal(t, 0, n)
		p, ok := c.Entities()[0].PayloadFor("bluesky")
		require.True(t, ok)
		assert.Empty(t, p.(BlueskyPayload).DID)
	})

	t.Run("partial failure", func(t *testing.T) {
		c := NewComposerWithText("@alice.bsky.social @ghost.bsky.social")
		require.Equal(t, 2, c.ParseEntitiesFromText(testDestinations))

		n, err := c.ResolveMentionDIDs(context.Background(), staticResolver{"alice.bsky.social": "did:plc:alice"})
		require.ErrorIs(t, err, errUnknownHandle)
		assert.Contains(t, err.Error(), "ghost.bsky.social")
		assert.Equal(t, 1, n)
		assert.Len(t, c.BlueskyFacets(), 1)
	})

	t.Run("nothing pending", func(t *testing.T) {
		c := NewComposerWithText("#go")
		require.Equal(t, 1, c.ParseEntitiesFromText(testDestinations))

		n, err := c.ResolveMentionDIDs(context.Background(), staticResolver{})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("cancelled context", func(t *testing.T) {
		c := NewComposerWithText("@alice.bsky.social")
		require.Equal(t, 1, c.ParseEntitiesFromText(testDestinations))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.ResolveMentionDIDs(ctx, staticResolver{"alice.bsky.social": "did:plc:alice"})
		require.ErrorIs(t, err, context.Canceled)
	})
}
