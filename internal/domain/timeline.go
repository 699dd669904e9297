package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// OrderingStrategy selects which timestamp drives a timeline's sort key.
type OrderingStrategy string

const (
	OrderByCreatedAt          OrderingStrategy = "createdAt"
	OrderByLastSocialActivity OrderingStrategy = "lastSocialActivity"
)

// TimelineOrderingConfiguration controls how timeline entries are keyed.
type TimelineOrderingConfiguration struct {
	Strategy OrderingStrategy `yaml:"strategy" json:"strategy"`

	// BumpOnRepost moves a post up when it is reposted, even under the
	// createdAt strategy.
	BumpOnRepost bool `yaml:"bumpOnRepost" json:"bumpOnRepost"`
}

// DefaultOrdering orders by creation time and bumps reposted posts.
func DefaultOrdering() TimelineOrderingConfiguration {
	return TimelineOrderingConfiguration{
		Strategy:     OrderByCreatedAt,
		BumpOnRepost: true,
	}
}

// Validate rejects unknown strategies.
func (c TimelineOrderingConfiguration) Validate() error {
	switch c.Strategy {
	case OrderByCreatedAt, OrderByLastSocialActivity:
		return nil
	default:
		return fmt.Errorf("unknown ordering strategy %q", c.Strategy)
	}
}

// SortKey returns the timestamp the post is ordered by.
func (c TimelineOrderingConfiguration) SortKey(post *CanonicalPost) time.Time {
	key := post.CreatedAt
	if c.Strategy == OrderByLastSocialActivity && !post.LastSocialActivityAt.IsZero() {
		key = post.LastSocialActivityAt
	}
	if c.BumpOnRepost && post.SocialContext.LatestRepostAt.After(key) {
		key = post.SocialContext.LatestRepostAt
	}
	return key
}

// Source contexts recorded on timeline entries.
const (
	SourceAuthored = "authored"
	SourceRepost   = "repost"
)

// CanonicalTimelineEntry places one canonical post on one timeline.
type CanonicalTimelineEntry struct {
	ID              string    `json:"id"`
	TimelineID      string    `json:"timelineId"`
	CanonicalPostID string    `json:"canonicalPostId"`
	SortKey         time.Time `json:"sortKey"`
	SourceContext   string    `json:"sourceContext"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TimelineEntryID joins a timeline and a canonical post into an entry ID.
func TimelineEntryID(timelineID, canonicalPostID string) string {
	return timelineID + "|" + canonicalPostID
}

// NewTimelineEntry builds the entry for post on timelineID.
func NewTimelineEntry(timelineID string, post *CanonicalPost, ordering TimelineOrderingConfiguration, source string, now time.Time) CanonicalTimelineEntry {
	return CanonicalTimelineEntry{
		ID:              TimelineEntryID(timelineID, post.ID),
		TimelineID:      timelineID,
		CanonicalPostID: post.ID,
		SortKey:         ordering.SortKey(post),
		SourceContext:   source,
		UpdatedAt:       now,
	}
}

// SortTimelineEntries orders entries newest first. Ties are broken by
// descending canonical post ID so the order is stable across calls.
func SortTimelineEntries(entries []CanonicalTimelineEntry) {
	slices.SortStableFunc(entries, func(a, b CanonicalTimelineEntry) int {
		if c := b.SortKey.Compare(a.SortKey); c != 0 {
			return c
		}
		return strings.Compare(b.CanonicalPostID, a.CanonicalPostID)
	})
}
