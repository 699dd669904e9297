package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/crossfeed/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FEEDGEN_PUBLISHER_DID", "did:plc:publisher")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "localhost", cfg.Hostname)
	assert.Equal(t, "did:web:localhost", cfg.ServiceDID())
	assert.Equal(t, []string{"crossfeed"}, cfg.FeedNames)
	assert.Equal(t, []string{"at://did:plc:publisher/app.bsky.feed.generator/crossfeed"}, cfg.FeedURIs())
	assert.Equal(t, "home", cfg.TimelineID)
	assert.Equal(t, domain.DefaultOrdering(), cfg.Ordering)
	assert.Equal(t, time.Minute, cfg.MastodonPollInterval)
	assert.False(t, cfg.BlueskyEnabled())
	assert.False(t, cfg.MastodonEnabled())
}

func TestLoadRequiresPublisherDID(t *testing.T) {
	t.Setenv("FEEDGEN_PUBLISHER_DID", "")

	_, err := Load()
	assert.ErrorContains(t, err, "FEEDGEN_PUBLISHER_DID")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FEEDGEN_PUBLISHER_DID", "did:plc:publisher")
	t.Setenv("PORT", "8080")
	t.Setenv("FEEDGEN_FEED_NAMES", "home, mutuals ,")
	t.Setenv("MASTODON_SERVER", "https://mastodon.social/")
	t.Setenv("MASTODON_ACCESS_TOKEN", "token")
	t.Setenv("MASTODON_POLL_INTERVAL", "30s")
	t.Setenv("PRETTY_LOG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"home", "mutuals"}, cfg.FeedNames)
	assert.Equal(t, "https://mastodon.social", cfg.MastodonServer)
	assert.Equal(t, 30*time.Second, cfg.MastodonPollInterval)
	assert.True(t, cfg.PrettyLog)
	assert.True(t, cfg.MastodonEnabled())
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "port not a number", key: "PORT", val: "abc"},
		{name: "port out of range", key: "PORT", val: "70000"},
		{name: "bad duration", key: "MASTODON_POLL_INTERVAL", val: "soon"},
		{name: "bad bool", key: "PRETTY_LOG", val: "maybe"},
		{name: "half of mastodon credentials", key: "MASTODON_SERVER", val: "https://mastodon.social"},
		{name: "half of bluesky credentials", key: "BLUESKY_HANDLE", val: "me.bsky.social"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FEEDGEN_PUBLISHER_DID", "did:plc:publisher")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadFiltersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
filters:
  keywordFilterEnabled: true
  blockedKeywords:
    - spoilers
    - crypto
ordering:
  strategy: lastSocialActivity
  bumpOnRepost: false
`), 0o600))

	t.Setenv("FEEDGEN_PUBLISHER_DID", "did:plc:publisher")
	t.Setenv("CROSSFEED_FILTERS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Filters.KeywordFilterEnabled)
	assert.Equal(t, []string{"spoilers", "crypto"}, cfg.Filters.BlockedKeywords)
	assert.Equal(t, domain.TimelineOrderingConfiguration{Strategy: domain.OrderByLastSocialActivity}, cfg.Ordering)
}

func TestLoadFiltersFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("FEEDGEN_PUBLISHER_DID", "did:plc:publisher")
		t.Setenv("CROSSFEED_FILTERS_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

		_, err := Load()
		assert.ErrorContains(t, err, "read filters file")
	})

	t.Run("unknown strategy", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "filters.yaml")
		require.NoError(t, os.WriteFile(path, []byte("ordering:\n  strategy: random\n"), 0o600))
		t.Setenv("FEEDGEN_PUBLISHER_DID", "did:plc:publisher")
		t.Setenv("CROSSFEED_FILTERS_FILE", path)

		_, err := Load()
		assert.ErrorContains(t, err, "unknown ordering strategy")
	})
}
