package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/crossfeed/internal/domain"
	"github.com/blackmichael/crossfeed/internal/logger"
)

// newTestClient connects to the Redis named by CROSSFEED_TEST_REDIS_ADDR,
// skipping the test when it is unset.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CROSSFEED_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CROSSFEED_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func mastodonKey(id string) domain.NativePostKey {
	return domain.NativePostKey{Platform: domain.PlatformMastodon, ID: id}
}

func TestParentKey(t *testing.T) {
	assert.Equal(t, "crossfeed:parent:mastodon:109876", ParentKey(mastodonKey("109876")))
	assert.NotEqual(t,
		ParentKey(mastodonKey("109876")),
		ParentKey(domain.NativePostKey{Platform: domain.PlatformBluesky, ID: "109876"}),
	)
}

func TestRedisParentCache(t *testing.T) {
	client := newTestClient(t)
	c := NewRedisParentCache(client, time.Minute)
	ctx := context.Background()

	miss, err := c.Get(ctx, mastodonKey("100"))
	require.NoError(t, err)
	assert.Nil(t, miss)

	parent := &domain.Post{
		Key:       domain.NativePostKey{Platform: domain.PlatformMastodon, ID: "100"},
		Author:    domain.Author{ID: domain.NewCanonicalUserID(domain.PlatformMastodon, "7", "p@mastodon.social")},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.Put(ctx, mastodonKey("100"), parent))
	require.NoError(t, c.Put(ctx, mastodonKey("101"), parent))
	require.NoError(t, c.Put(ctx, mastodonKey("102"), nil))

	got, err := c.Get(ctx, mastodonKey("100"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, parent.Author.ID, got.Author.ID)
	assert.True(t, parent.CreatedAt.Equal(got.CreatedAt))

	ttl, err := client.TTL(ctx, ParentKey(mastodonKey("100"))).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, client.Set(ctx, "unrelated", "x", 0).Err())
	require.NoError(t, c.Clear(ctx))

	got, err = c.Get(ctx, mastodonKey("101"))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(1), client.Exists(ctx, "unrelated").Val())
}

func TestRedisParentCacheSeparatesPlatforms(t *testing.T) {
	client := newTestClient(t)
	c := NewRedisParentCache(client, time.Minute)
	ctx := context.Background()

	mastoAuthor := domain.NewCanonicalUserID(domain.PlatformMastodon, "7", "p@mastodon.social")
	require.NoError(t, c.Put(ctx, mastodonKey("100"), &domain.Post{Author: domain.Author{ID: mastoAuthor}}))

	got, err := c.Get(ctx, domain.NativePostKey{Platform: domain.PlatformBluesky, ID: "100"})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = c.Get(ctx, mastodonKey("100"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, mastoAuthor, got.Author.ID)
}

func TestRedisParentCacheWithResolver(t *testing.T) {
	client := newTestClient(t)
	c := NewRedisParentCache(client, time.Minute)
	ctx := context.Background()

	author := domain.NewCanonicalUserID(domain.PlatformMastodon, "7", "p@mastodon.social")
	require.NoError(t, c.Put(ctx, mastodonKey("100"), &domain.Post{Author: domain.Author{ID: author}}))

	r := domain.NewParentResolver(nil, c, logger.Nop())
	got, err := r.ResolveReplyTarget(ctx, &domain.Post{
		Key:         domain.NativePostKey{Platform: domain.PlatformMastodon, ID: "200"},
		InReplyToID: "100",
	})
	require.NoError(t, err)
	assert.Equal(t, author, got)
}
