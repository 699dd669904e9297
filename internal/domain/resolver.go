package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/blackmichael/crossfeed/internal/logger"
)

var (
	// ErrNoReplyTarget means the post names no parent to resolve.
	ErrNoReplyTarget = errors.New("post has no reply target")

	// ErrParentNotFound means the network returned no parent post.
	ErrParentNotFound = errors.New("parent post not found")

	// ErrNoFetcher means no fetcher is configured for the post's platform.
	ErrNoFetcher = errors.New("no fetcher configured for platform")

	// ErrMissingAuthor means the parent post carries no author identity.
	ErrMissingAuthor = errors.New("parent post has no author")
)

// ReplyTargetResolver finds the account a reply answers.
type ReplyTargetResolver interface {
	ResolveReplyTarget(ctx context.Context, post *Post) (CanonicalUserID, error)
}

// PostFetcher loads a single post by its native ID.
type PostFetcher interface {
	FetchPostByID(ctx context.Context, id string, account Account) (*Post, error)
}

// StatusFetcher is the Mastodon-specific fallback fetch.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, id string, account Account) (*Post, error)
}

// ParentCache stores resolved parent posts keyed by the native key of the
// parent, so IDs from different networks never collide. Get returns
// (nil, nil) on a miss.
type ParentCache interface {
	Get(ctx context.Context, key NativePostKey) (*Post, error)
	Put(ctx context.Context, key NativePostKey, post *Post) error
	Clear(ctx context.Context) error
}

// MemoryParentCache is a mutex-guarded ParentCache that lives as long as the
// resolver that owns it.
type MemoryParentCache struct {
	mu    sync.RWMutex
	posts map[NativePostKey]Post
}

// NewMemoryParentCache returns an empty cache.
func NewMemoryParentCache() *MemoryParentCache {
	return &MemoryParentCache{posts: make(map[NativePostKey]Post)}
}

func (c *MemoryParentCache) Get(_ context.Context, key NativePostKey) (*Post, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.posts[key]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *MemoryParentCache) Put(_ context.Context, key NativePostKey, post *Post) error {
	if post == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts[key] = *post
	return nil
}

func (c *MemoryParentCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = make(map[NativePostKey]Post)
	return nil
}

// Len returns the number of cached parents.
func (c *MemoryParentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.posts)
}

type accountFetcher struct {
	account Account
	fetcher PostFetcher
}

type statusFallback struct {
	account Account
	fetcher StatusFetcher
}

// ParentResolver resolves reply targets from the arena, then the cache, then
// the network. Concurrent lookups of the same parent share one fetch.
type ParentResolver struct {
	posts    PostLookup
	cache    ParentCache
	fetchers map[Platform]accountFetcher
	statuses *statusFallback
	group    singleflight.Group
	metrics  Metrics
	logger   logger.Logger
}

// ResolverOption configures a ParentResolver.
type ResolverOption func(*ParentResolver)

// WithPostFetcher registers the fetcher used for account's platform.
func WithPostFetcher(account Account, fetcher PostFetcher) ResolverOption {
	return func(r *ParentResolver) {
		r.fetchers[account.Platform] = accountFetcher{account: account, fetcher: fetcher}
	}
}

// WithStatusFetcher registers the Mastodon status fallback.
func WithStatusFetcher(account Account, fetcher StatusFetcher) ResolverOption {
	return func(r *ParentResolver) {
		r.statuses = &statusFallback{account: account, fetcher: fetcher}
	}
}

// WithResolverMetrics records cache hits and misses.
func WithResolverMetrics(m Metrics) ResolverOption {
	return func(r *ParentResolver) {
		r.metrics = m
	}
}

// NewParentResolver creates a resolver. A nil cache gets a fresh
// MemoryParentCache.
func NewParentResolver(posts PostLookup, cache ParentCache, log logger.Logger, opts ...ResolverOption) *ParentResolver {
	if cache == nil {
		cache = NewMemoryParentCache()
	}
	r := &ParentResolver{
		posts:    posts,
		cache:    cache,
		fetchers: make(map[Platform]accountFetcher),
		metrics:  nopMetrics{},
		logger:   log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveReplyTarget returns the author of the post's parent. Any failure is
// returned as an error; callers must treat it as "do not show".
func (r *ParentResolver) ResolveReplyTarget(ctx context.Context, post *Post) (CanonicalUserID, error) {
	if post.Parent != nil && r.posts != nil {
		if parent, ok := r.posts.Post(*post.Parent); ok {
			return authorOf(parent)
		}
	}

	id := post.InReplyToID
	if id == "" && post.Parent != nil {
		id = post.Parent.ID
	}
	if id == "" {
		return CanonicalUserID{}, ErrNoReplyTarget
	}

	parent, err := r.parent(ctx, post.Key.Platform, id)
	if err != nil {
		return CanonicalUserID{}, err
	}
	return authorOf(parent)
}

// ClearCache drops every cached parent.
func (r *ParentResolver) ClearCache(ctx context.Context) error {
	return r.cache.Clear(ctx)
}

func (r *ParentResolver) parent(ctx context.Context, platform Platform, id string) (*Post, error) {
	key := NativePostKey{Platform: platform, ID: id}
	cached, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("parent cache read failed", logger.String("in_reply_to_id", id), logger.Error(err))
	} else if cached != nil {
		r.metrics.ObserveResolverCache(true)
		return cached, nil
	}
	r.metrics.ObserveResolverCache(false)

	v, err, _ := r.group.Do(key.String(), func() (interface{}, error) {
		parent, err := r.fetch(ctx, platform, id)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Put(ctx, key, parent); err != nil {
			r.logger.Warn("parent cache write failed", logger.String("in_reply_to_id", id), logger.Error(err))
		}
		return parent, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Post), nil
}

func (r *ParentResolver) fetch(ctx context.Context, platform Platform, id string) (*Post, error) {
	var errs []error

	if f, ok := r.fetchers[platform]; ok {
		parent, err := f.fetcher.FetchPostByID(ctx, id, f.account)
		if err == nil && parent != nil {
			return parent, nil
		}
		if err == nil {
			err = ErrParentNotFound
		}
		errs = append(errs, err)
	}

	if platform == PlatformMastodon && r.statuses != nil {
		parent, err := r.statuses.fetcher.FetchStatus(ctx, id, r.statuses.account)
		if err == nil && parent != nil {
			return parent, nil
		}
		if err == nil {
			err = ErrParentNotFound
		}
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFetcher, platform)
	}
	return nil, fmt.Errorf("fetch parent %s: %w", id, errors.Join(errs...))
}

func authorOf(parent *Post) (CanonicalUserID, error) {
	if parent.Author.ID.IsZero() {
		return CanonicalUserID{}, ErrMissingAuthor
	}
	return parent.Author.ID, nil
}
