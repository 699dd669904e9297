package domain

import (
	"context"
	"time"
)

// PostStore is the in-memory arena of native and canonical posts. Canonical
// posts are handed out as copies; callers write changes back with
// PutCanonical.
type PostStore interface {
	PostLookup

	// PutPost stores or replaces a native post.
	PutPost(post Post)

	// DeletePost removes a native post.
	DeletePost(key NativePostKey)

	// Canonical finds the canonical post reachable through any native key.
	Canonical(key NativePostKey) (*CanonicalPost, bool)

	// CanonicalByID finds a canonical post by its canonical ID.
	CanonicalByID(id string) (*CanonicalPost, bool)

	// PutCanonical stores a canonical post and indexes all its native keys.
	PutCanonical(post *CanonicalPost)

	// DeleteCanonical removes a canonical post and its native key index.
	DeleteCanonical(id string)

	// EvictOlderThan drops canonical and native posts whose latest activity
	// is before cutoff. Returns the number of canonical posts evicted.
	EvictOlderThan(cutoff time.Time) int
}

// TimelineRepository persists canonical posts and timeline entries.
type TimelineRepository interface {
	// SaveCanonicalPost inserts or updates a canonical post and its native
	// keys.
	SaveCanonicalPost(ctx context.Context, post *CanonicalPost) error

	// GetCanonicalPost returns (nil, nil) when no post has the ID.
	GetCanonicalPost(ctx context.Context, id string) (*CanonicalPost, error)

	// GetCanonicalPostByNativeKey returns (nil, nil) when the key is unknown.
	GetCanonicalPostByNativeKey(ctx context.Context, key NativePostKey) (*CanonicalPost, error)

	// DeleteCanonicalPost removes a canonical post with its native keys and
	// timeline entries.
	DeleteCanonicalPost(ctx context.Context, id string) error

	// UpsertTimelineEntry inserts an entry or updates its sort key.
	UpsertTimelineEntry(ctx context.Context, entry CanonicalTimelineEntry) error

	// GetTimelineEntries retrieves entries ordered by sort key descending.
	// The cursor is opaque and implementation-defined. Returns entries and
	// the next cursor (empty string if no more results).
	GetTimelineEntries(ctx context.Context, timelineID string, limit int, cursor string) ([]CanonicalTimelineEntry, string, error)

	// DeleteOldPosts removes entries older than maxAge and any excess rows
	// beyond maxRows, keeping the most recent, then drops canonical posts no
	// entry refers to. Returns the number of entries deleted.
	DeleteOldPosts(ctx context.Context, maxAge time.Duration, maxRows int) (int64, error)
}

// CursorRepository defines persistence operations for firehose cursors.
type CursorRepository interface {
	// GetCursor retrieves the last-processed cursor for the given service
	// name. Returns 0 if no cursor has been saved.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor persists the cursor so we can resume on restart.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// EntryNotifier is told about every timeline entry written.
type EntryNotifier interface {
	TimelineEntryUpserted(ctx context.Context, entry CanonicalTimelineEntry, post *CanonicalPost) error
}

// CacheClearer is implemented by resolvers with a clearable cache.
type CacheClearer interface {
	ClearCache(ctx context.Context) error
}
