package domain

import "strings"

// Platform identifies one of the supported social networks.
type Platform string

const (
	PlatformMastodon Platform = "mastodon"
	PlatformBluesky  Platform = "bluesky"
)

// ParsePlatform returns the Platform named by s. Unknown names return false.
func ParsePlatform(s string) (Platform, bool) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformMastodon, PlatformBluesky:
		return p, true
	default:
		return "", false
	}
}

// CanonicalUserID identifies an account across the lifetime of its handle.
type CanonicalUserID struct {
	Platform Platform `json:"platform"`

	// StableID is the DID on Bluesky or the account ID on Mastodon. It may be
	// empty when only a handle is known.
	StableID string `json:"stableId,omitempty"`

	// NormalizedHandle is the handle after NormalizeHandle.
	NormalizedHandle string `json:"normalizedHandle"`
}

// NewCanonicalUserID builds an ID, normalizing the handle.
func NewCanonicalUserID(platform Platform, stableID, handle string) CanonicalUserID {
	return CanonicalUserID{
		Platform:         platform,
		StableID:         strings.TrimSpace(stableID),
		NormalizedHandle: NormalizeHandle(handle),
	}
}

// NormalizeHandle trims whitespace, strips one leading "@" and lowercases the
// handle. For federated handles of the form user@host both parts end up
// lowercased.
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	if user, host, ok := strings.Cut(h, "@"); ok {
		return strings.ToLower(user) + "@" + strings.ToLower(host)
	}
	return strings.ToLower(h)
}

// IsZero reports whether the ID carries no identity at all.
func (id CanonicalUserID) IsZero() bool {
	return id.StableID == "" && id.NormalizedHandle == ""
}

// Matches reports whether id and other refer to the same account. IDs on
// different platforms never match. When both carry a stable ID only the stable
// IDs are compared, so a handle rename does not break identity; otherwise the
// normalized handles are compared.
func (id CanonicalUserID) Matches(other CanonicalUserID) bool {
	if id.Platform != other.Platform {
		return false
	}
	if id.StableID != "" && other.StableID != "" {
		return id.StableID == other.StableID
	}
	return id.NormalizedHandle != "" && id.NormalizedHandle == other.NormalizedHandle
}

// ActorID returns a map key for the account.
func (id CanonicalUserID) ActorID() ActorID {
	if id.StableID != "" {
		return ActorID(string(id.Platform) + ":" + id.StableID)
	}
	return ActorID(string(id.Platform) + ":@" + id.NormalizedHandle)
}

func (id CanonicalUserID) String() string {
	if id.NormalizedHandle != "" {
		return string(id.Platform) + ":@" + id.NormalizedHandle
	}
	return string(id.Platform) + ":" + id.StableID
}

// ActorID is the key SocialContext uses to dedupe actors.
type ActorID string

// FollowSet is the set of accounts the viewer follows.
type FollowSet struct {
	ids []CanonicalUserID
}

// NewFollowSet returns a FollowSet holding ids.
func NewFollowSet(ids ...CanonicalUserID) FollowSet {
	cp := make([]CanonicalUserID, len(ids))
	copy(cp, ids)
	return FollowSet{ids: cp}
}

// Contains reports whether any followed account matches id.
func (f FollowSet) Contains(id CanonicalUserID) bool {
	for _, followed := range f.ids {
		if followed.Matches(id) {
			return true
		}
	}
	return false
}

// Len returns the number of followed accounts.
func (f FollowSet) Len() int {
	return len(f.ids)
}

// IDs returns a copy of the followed accounts.
func (f FollowSet) IDs() []CanonicalUserID {
	cp := make([]CanonicalUserID, len(f.ids))
	copy(cp, f.ids)
	return cp
}

// StableIDs returns the stable IDs of followed accounts on platform.
func (f FollowSet) StableIDs(platform Platform) []string {
	var out []string
	for _, id := range f.ids {
		if id.Platform == platform && id.StableID != "" {
			out = append(out, id.StableID)
		}
	}
	return out
}

// Merge returns a FollowSet holding the accounts of both sets.
func (f FollowSet) Merge(other FollowSet) FollowSet {
	ids := make([]CanonicalUserID, 0, len(f.ids)+len(other.ids))
	ids = append(ids, f.ids...)
	ids = append(ids, other.ids...)
	return FollowSet{ids: ids}
}
