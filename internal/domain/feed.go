package domain

import "fmt"

// FeedSkeleton is the response body for getFeedSkeleton.
type FeedSkeleton struct {
	Cursor string
	Posts  []SkeletonPost
}

// SkeletonPost is a single entry in a feed skeleton.
type SkeletonPost struct {
	// Post is the AT-URI of the post.
	Post string
}

// FeedDescription describes a single feed served by this generator.
type FeedDescription struct {
	// URI is the AT-URI of the feed generator record.
	URI string
}

// GeneratorDescription is the response body for describeFeedGenerator.
type GeneratorDescription struct {
	DID   string
	Feeds []FeedDescription
}

// NewFeedURI returns the AT-URI of a feed generator record.
func NewFeedURI(publisherDID, feedName string) string {
	return fmt.Sprintf("at://%s/app.bsky.feed.generator/%s", publisherDID, feedName)
}

// TimelineItem is one hydrated timeline entry.
type TimelineItem struct {
	Entry CanonicalTimelineEntry `json:"entry"`
	Post  *CanonicalPost         `json:"post"`
}

// TimelinePage is one page of a merged timeline.
type TimelinePage struct {
	Cursor string         `json:"cursor,omitempty"`
	Items  []TimelineItem `json:"items"`
}
