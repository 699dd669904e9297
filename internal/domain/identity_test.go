package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "alice.bsky.social", want: "alice.bsky.social"},
		{name: "leading at", input: "@Alice.bsky.social", want: "alice.bsky.social"},
		{name: "federated", input: " @Bob@Mastodon.Social ", want: "bob@mastodon.social"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHandle(tt.input))
		})
	}
}

func TestCanonicalUserIDMatches(t *testing.T) {
	tests := []struct {
		name string
		a, b CanonicalUserID
		want bool
	}{
		{
			name: "same stable id after handle rename",
			a:    NewCanonicalUserID(PlatformBluesky, "did:plc:alice", "alice.bsky.social"),
			b:    NewCanonicalUserID(PlatformBluesky, "did:plc:alice", "alice.example.com"),
			want: true,
		},
		{
			name: "different stable ids with same handle",
			a:    NewCanonicalUserID(PlatformBluesky, "did:plc:old", "alice.bsky.social"),
			b:    NewCanonicalUserID(PlatformBluesky, "did:plc:new", "alice.bsky.social"),
			want: false,
		},
		{
			name: "handle fallback ignores case",
			a:    NewCanonicalUserID(PlatformMastodon, "", "@Bob@Mastodon.Social"),
			b:    NewCanonicalUserID(PlatformMastodon, "1091", "bob@mastodon.social"),
			want: true,
		},
		{
			name: "different platforms",
			a:    NewCanonicalUserID(PlatformMastodon, "1", "alice"),
			b:    NewCanonicalUserID(PlatformBluesky, "1", "alice"),
			want: false,
		},
		{
			name: "empty handles never match",
			a:    NewCanonicalUserID(PlatformMastodon, "", ""),
			b:    NewCanonicalUserID(PlatformMastodon, "", ""),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Matches(tt.b))
			assert.Equal(t, tt.want, tt.b.Matches(tt.a))
		})
	}
}

func TestActorID(t *testing.T) {
	withDID := NewCanonicalUserID(PlatformBluesky, "did:plc:alice", "alice.bsky.social")
	renamed := NewCanonicalUserID(PlatformBluesky, "did:plc:alice", "alice.example.com")
	handleOnly := NewCanonicalUserID(PlatformMastodon, "", "@Bob@Mastodon.Social")

	assert.Equal(t, ActorID("bluesky:did:plc:alice"), withDID.ActorID())
	assert.Equal(t, withDID.ActorID(), renamed.ActorID())
	assert.Equal(t, ActorID("mastodon:@bob@mastodon.social"), handleOnly.ActorID())
}

func TestFollowSet(t *testing.T) {
	alice := NewCanonicalUserID(PlatformBluesky, "did:plc:alice", "alice.bsky.social")
	bob := NewCanonicalUserID(PlatformMastodon, "109", "bob@mastodon.social")
	carol := NewCanonicalUserID(PlatformMastodon, "", "carol@hachyderm.io")

	follows := NewFollowSet(alice, bob)

	assert.True(t, follows.Contains(NewCanonicalUserID(PlatformBluesky, "did:plc:alice", "renamed.example")))
	assert.True(t, follows.Contains(NewCanonicalUserID(PlatformMastodon, "", "@Bob@mastodon.social")))
	assert.False(t, follows.Contains(carol))
	assert.Equal(t, 2, follows.Len())
	assert.Equal(t, []string{"did:plc:alice"}, follows.StableIDs(PlatformBluesky))

	merged := follows.Merge(NewFollowSet(carol))
	assert.Equal(t, 3, merged.Len())
	assert.True(t, merged.Contains(carol))
	assert.Equal(t, 2, follows.Len(), "merge leaves the receiver alone")

	var empty FollowSet
	assert.False(t, empty.Contains(alice))
}
