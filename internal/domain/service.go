package domain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/blackmichael/crossfeed/internal/logger"
)

var (
	// ErrPostNotFound means a fetcher returned no post for a key.
	ErrPostNotFound = errors.New("post not found")

	// ErrUnknownFeed means a skeleton was requested for a feed this service
	// does not serve.
	ErrUnknownFeed = errors.New("unknown feed")
)

// TimelineConfig describes the merged timeline a TimelineService maintains.
type TimelineConfig struct {
	// TimelineID names the timeline entries are written to.
	TimelineID string

	// FeedURIs are the feed generator records served from this timeline.
	FeedURIs []string

	Ordering TimelineOrderingConfiguration
}

// TimelineService is the core domain service. It owns filtering incoming
// posts, merging them into canonical posts, ordering the merged timeline and
// serving it back out.
type TimelineService struct {
	timelineID string
	feedURIs   []string
	ordering   TimelineOrderingConfiguration
	filter     *PostFeedFilter
	store      PostStore
	repo       TimelineRepository
	cursors    CursorRepository
	fetchers   map[Platform]accountFetcher
	clearer    CacheClearer
	notifier   EntryNotifier
	metrics    Metrics
	logger     logger.Logger
	now        func() time.Time

	// mu serializes read-modify-write cycles on canonical posts.
	mu sync.Mutex

	followsMu sync.RWMutex
	follows   FollowSet
}

// ServiceOption configures a TimelineService.
type ServiceOption func(*TimelineService)

// WithFetcher lets the service load unknown repost targets for account's
// platform.
func WithFetcher(account Account, fetcher PostFetcher) ServiceOption {
	return func(s *TimelineService) {
		s.fetchers[account.Platform] = accountFetcher{account: account, fetcher: fetcher}
	}
}

// WithNotifier publishes every timeline entry write.
func WithNotifier(n EntryNotifier) ServiceOption {
	return func(s *TimelineService) { s.notifier = n }
}

// WithMetrics records pipeline counters.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *TimelineService) { s.metrics = m }
}

// WithCacheClearer clears the given cache on every cleanup run.
func WithCacheClearer(c CacheClearer) ServiceOption {
	return func(s *TimelineService) { s.clearer = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *TimelineService) { s.now = now }
}

// NewTimelineService creates a TimelineService for cfg.
func NewTimelineService(
	cfg TimelineConfig,
	filter *PostFeedFilter,
	store PostStore,
	repo TimelineRepository,
	cursors CursorRepository,
	log logger.Logger,
	opts ...ServiceOption,
) (*TimelineService, error) {
	if cfg.TimelineID == "" {
		return nil, fmt.Errorf("timeline id is required")
	}
	if err := cfg.Ordering.Validate(); err != nil {
		return nil, fmt.Errorf("timeline %s: %w", cfg.TimelineID, err)
	}
	if filter == nil {
		return nil, fmt.Errorf("timeline %s: filter is required", cfg.TimelineID)
	}

	s := &TimelineService{
		timelineID: cfg.TimelineID,
		feedURIs:   slices.Clone(cfg.FeedURIs),
		ordering:   cfg.Ordering,
		filter:     filter,
		store:      store,
		repo:       repo,
		cursors:    cursors,
		fetchers:   make(map[Platform]accountFetcher),
		metrics:    nopMetrics{},
		logger:     log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TimelineID returns the timeline this service writes to.
func (s *TimelineService) TimelineID() string {
	return s.timelineID
}

// FeedURIs returns the AT-URIs of all served feeds.
func (s *TimelineService) FeedURIs() []string {
	return slices.Clone(s.feedURIs)
}

// SetFollows replaces the viewer's follow set.
func (s *TimelineService) SetFollows(follows FollowSet) {
	s.followsMu.Lock()
	defer s.followsMu.Unlock()
	s.follows = follows
}

// Follows returns the viewer's current follow set.
func (s *TimelineService) Follows() FollowSet {
	s.followsMu.RLock()
	defer s.followsMu.RUnlock()
	return s.follows
}

// IngestPost runs an incoming post through the filter and, if it is kept,
// merges it into the timeline. Embedded posts (a boost's original, a known
// parent) are stored in the arena first so relations resolve without I/O.
// Returns true if the timeline changed.
func (s *TimelineService) IngestPost(ctx context.Context, post Post, embedded ...Post) (bool, error) {
	for _, e := range embedded {
		s.store.PutPost(e)
	}
	s.store.PutPost(post)
	s.metrics.ObservePostIngested(post.Key.Platform)

	decision := s.filter.Evaluate(ctx, &post, s.Follows())
	s.metrics.ObserveFilterDecision(post.Key.Platform, decision)
	if !decision.Include {
		s.logger.Debug("post filtered out",
			logger.String("post", post.Key.String()),
			logger.String("reason", string(decision.Reason)),
		)
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		cp     *CanonicalPost
		source string
		err    error
	)
	if post.IsBoost() {
		cp, err = s.applyBoost(ctx, post)
		source = SourceRepost
	} else {
		cp, err = s.canonicalFor(ctx, post)
		source = SourceAuthored
	}
	if err != nil {
		return false, err
	}

	if err := s.publish(ctx, cp, source); err != nil {
		return false, err
	}
	return true, nil
}

// IngestSocialEvent applies a repost coming from a network that reports
// reposts separately from posts. Targets not yet in the arena are fetched;
// other event types are ignored.
func (s *TimelineService) IngestSocialEvent(ctx context.Context, event SocialEvent) (bool, error) {
	if event.Type != SocialEventRepost {
		return false, nil
	}

	original, ok := s.store.Post(event.Target)
	if !ok {
		fetched, err := s.fetchPost(ctx, event.Target)
		if err != nil {
			return false, fmt.Errorf("fetch repost target %s: %w", event.Target, err)
		}
		original = fetched
	}

	source := event.Source
	if source.IsZero() {
		source = NativePostKey{
			Platform: event.Target.Platform,
			ID:       "repost:" + string(event.Actor.ID) + ":" + event.Target.ID,
		}
	}

	target := event.Target
	wrapper := *original
	wrapper.Key = source
	wrapper.BoostedBy = &Author{ID: event.Actor.UserID, DisplayName: event.Actor.DisplayName}
	wrapper.BoostedAt = event.OccurredAt
	wrapper.Original = &target

	return s.IngestPost(ctx, wrapper, *original)
}

// ProcessDeletePost removes a post by native key. Deleting the record of a
// repost leaves the reposted post alone.
func (s *TimelineService) ProcessDeletePost(ctx context.Context, key NativePostKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.store.Canonical(key)
	if !ok {
		var err error
		cp, err = s.repo.GetCanonicalPostByNativeKey(ctx, key)
		if err != nil {
			return fmt.Errorf("get canonical post: %w", err)
		}
	}
	s.store.DeletePost(key)
	if cp == nil || cp.Post.Key != key {
		return nil
	}

	s.store.DeleteCanonical(cp.ID)
	if err := s.repo.DeleteCanonicalPost(ctx, cp.ID); err != nil {
		return fmt.Errorf("delete canonical post: %w", err)
	}
	return nil
}

// GetTimeline returns one page of the merged timeline with its posts.
func (s *TimelineService) GetTimeline(ctx context.Context, limit int, cursor string) (*TimelinePage, error) {
	entries, nextCursor, err := s.repo.GetTimelineEntries(ctx, s.timelineID, limit, cursor)
	if err != nil {
		return nil, fmt.Errorf("get timeline entries: %w", err)
	}

	page := &TimelinePage{
		Cursor: nextCursor,
		Items:  make([]TimelineItem, 0, len(entries)),
	}
	for _, entry := range entries {
		cp, ok := s.store.CanonicalByID(entry.CanonicalPostID)
		if !ok {
			cp, err = s.repo.GetCanonicalPost(ctx, entry.CanonicalPostID)
			if err != nil {
				return nil, fmt.Errorf("get canonical post %s: %w", entry.CanonicalPostID, err)
			}
			if cp == nil {
				s.logger.Warn("timeline entry without canonical post", logger.String("entry", entry.ID))
				continue
			}
			s.store.PutCanonical(cp)
		}
		page.Items = append(page.Items, TimelineItem{Entry: entry, Post: cp})
	}
	return page, nil
}

// GetFeedSkeleton returns a page of the feed skeleton for the given feed URI.
// Only posts that live on Bluesky can appear in a skeleton.
func (s *TimelineService) GetFeedSkeleton(ctx context.Context, feedURI string, limit int, cursor string) (*FeedSkeleton, error) {
	s.logger.Debug("GetFeedSkeleton called",
		logger.String("feedURI", feedURI),
		logger.Int("limit", limit),
		logger.String("cursor", cursor),
	)

	if !slices.Contains(s.feedURIs, feedURI) {
		s.logger.Error("unknown feed requested",
			logger.String("feedURI", feedURI),
			logger.Strings("registered_feeds", s.feedURIs),
		)
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, feedURI)
	}

	page, err := s.GetTimeline(ctx, limit, cursor)
	if err != nil {
		return nil, err
	}

	skeleton := &FeedSkeleton{
		Cursor: page.Cursor,
		Posts:  make([]SkeletonPost, 0, len(page.Items)),
	}
	for _, item := range page.Items {
		if item.Post.OriginNetwork != PlatformBluesky || item.Post.Post.URI == "" {
			continue
		}
		skeleton.Posts = append(skeleton.Posts, SkeletonPost{Post: item.Post.Post.URI})
	}
	return skeleton, nil
}

// GetCursor retrieves the last-processed cursor for the given service.
func (s *TimelineService) GetCursor(ctx context.Context, service string) (int64, error) {
	return s.cursors.GetCursor(ctx, service)
}

// UpdateCursor persists the cursor for the given service.
func (s *TimelineService) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	return s.cursors.UpdateCursor(ctx, service, cursor)
}

// StartCleanupJob runs a background loop that removes timeline entries older
// than maxAge, caps the total at maxRows, evicts the arena and clears the
// reply target cache. It runs immediately on start and then repeats at the
// given interval. It blocks until ctx is cancelled.
func (s *TimelineService) StartCleanupJob(ctx context.Context, interval time.Duration, maxAge time.Duration, maxRows int) {
	s.runCleanup(ctx, maxAge, maxRows)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup(ctx, maxAge, maxRows)
		}
	}
}

func (s *TimelineService) runCleanup(ctx context.Context, maxAge time.Duration, maxRows int) {
	deleted, err := s.repo.DeleteOldPosts(ctx, maxAge, maxRows)
	if err != nil {
		s.logger.Error("post cleanup failed", logger.Error(err))
	} else if deleted > 0 {
		s.logger.Info("post cleanup complete", logger.Int64("deleted", deleted))
	}

	if evicted := s.store.EvictOlderThan(s.now().Add(-maxAge)); evicted > 0 {
		s.logger.Debug("arena eviction complete", logger.Int("evicted", evicted))
	}

	if s.clearer != nil {
		if err := s.clearer.ClearCache(ctx); err != nil {
			s.logger.Warn("reply target cache clear failed", logger.Error(err))
		}
	}
}

func (s *TimelineService) canonicalFor(ctx context.Context, post Post) (*CanonicalPost, error) {
	if cp, ok := s.store.Canonical(post.Key); ok {
		return cp, nil
	}
	cp, err := s.repo.GetCanonicalPostByNativeKey(ctx, post.Key)
	if err != nil {
		return nil, fmt.Errorf("get canonical post: %w", err)
	}
	if cp == nil {
		cp = NewCanonicalPost(post)
	}
	return cp, nil
}

func (s *TimelineService) applyBoost(ctx context.Context, wrapper Post) (*CanonicalPost, error) {
	target := wrapper.Key
	if wrapper.Original != nil {
		target = *wrapper.Original
	}

	original, ok := s.store.Post(target)
	if !ok {
		o := wrapper
		o.Key = target
		o.BoostedBy = nil
		o.BoostedAt = time.Time{}
		o.Original = nil
		s.store.PutPost(o)
		original = &o
	}

	cp, err := s.canonicalFor(ctx, *original)
	if err != nil {
		return nil, err
	}

	if wrapper.BoostedBy != nil {
		occurredAt := wrapper.BoostedAt
		if occurredAt.IsZero() {
			occurredAt = s.now()
		}
		var source NativePostKey
		if wrapper.Original != nil {
			source = wrapper.Key
		}
		cp.ApplySocialEvent(SocialEvent{
			Type:       SocialEventRepost,
			Actor:      NewSocialActor(*wrapper.BoostedBy),
			Target:     target,
			Source:     source,
			OccurredAt: occurredAt,
		})
	}
	return cp, nil
}

func (s *TimelineService) publish(ctx context.Context, cp *CanonicalPost, source string) error {
	s.store.PutCanonical(cp)
	if err := s.repo.SaveCanonicalPost(ctx, cp); err != nil {
		return fmt.Errorf("save canonical post: %w", err)
	}

	entry := NewTimelineEntry(s.timelineID, cp, s.ordering, source, s.now())
	if err := s.repo.UpsertTimelineEntry(ctx, entry); err != nil {
		return fmt.Errorf("upsert timeline entry: %w", err)
	}
	s.metrics.ObserveTimelineUpsert(source)

	if s.notifier != nil {
		if err := s.notifier.TimelineEntryUpserted(ctx, entry, cp); err != nil {
			s.logger.Warn("timeline notification failed",
				logger.String("entry", entry.ID),
				logger.Error(err),
			)
		}
	}
	return nil
}

func (s *TimelineService) fetchPost(ctx context.Context, key NativePostKey) (*Post, error) {
	f, ok := s.fetchers[key.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFetcher, key.Platform)
	}
	post, err := f.fetcher.FetchPostByID(ctx, key.ID, f.account)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	s.store.PutPost(*post)
	return post, nil
}
