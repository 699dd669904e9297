package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/crossfeed/internal/bluesky"
	"github.com/blackmichael/crossfeed/internal/cache"
	"github.com/blackmichael/crossfeed/internal/config"
	"github.com/blackmichael/crossfeed/internal/domain"
	"github.com/blackmichael/crossfeed/internal/events"
	"github.com/blackmichael/crossfeed/internal/firehose"
	"github.com/blackmichael/crossfeed/internal/httpserver"
	"github.com/blackmichael/crossfeed/internal/index"
	"github.com/blackmichael/crossfeed/internal/logger"
	"github.com/blackmichael/crossfeed/internal/mastodon"
	"github.com/blackmichael/crossfeed/internal/metrics"
	"github.com/blackmichael/crossfeed/internal/redis"
	"github.com/blackmichael/crossfeed/internal/scheduler"
	"github.com/blackmichael/crossfeed/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := sqlite.NewRepository(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()
	log.Info("opened database", logger.String("path", cfg.DatabasePath))

	arena := index.NewArena()
	m := metrics.New()

	var parentCache domain.ParentCache
	if cfg.RedisAddr != "" {
		rdb, err := redis.Connect(ctx, redis.DefaultConnectOptions(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), log)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		parentCache = cache.NewRedisParentCache(rdb, cfg.ParentCacheTTL)
		log.Info("using redis reply target cache", logger.String("addr", cfg.RedisAddr))
	}

	var (
		resolverOpts []domain.ResolverOption
		serviceOpts  = []domain.ServiceOption{domain.WithMetrics(m)}
		followers    = map[domain.Platform]scheduler.FollowLister{}
		self         []domain.CanonicalUserID
		bsky         *bluesky.Client
		masto        *mastodon.Client
	)

	if cfg.BlueskyEnabled() {
		bsky = bluesky.NewClient(cfg.BlueskyPDS)
		if err := bsky.Login(ctx, cfg.BlueskyHandle, cfg.BlueskyAppPassword); err != nil {
			return fmt.Errorf("bluesky login: %w", err)
		}
		account := domain.Account{Platform: domain.PlatformBluesky, ID: bsky.DID(), Handle: bsky.Handle()}
		resolverOpts = append(resolverOpts, domain.WithPostFetcher(account, bsky))
		serviceOpts = append(serviceOpts, domain.WithFetcher(account, bsky))
		followers[domain.PlatformBluesky] = func(ctx context.Context) ([]domain.CanonicalUserID, error) {
			return bsky.GetFollows(ctx, bsky.DID())
		}
		self = append(self, domain.NewCanonicalUserID(domain.PlatformBluesky, bsky.DID(), bsky.Handle()))
		log.Info("authenticated with bluesky", logger.String("did", bsky.DID()))
	}

	if cfg.MastodonEnabled() {
		masto, err = mastodon.NewClient(cfg.MastodonServer, cfg.MastodonToken)
		if err != nil {
			return fmt.Errorf("create mastodon client: %w", err)
		}
		me, err := masto.VerifyCredentials(ctx)
		if err != nil {
			return fmt.Errorf("verify mastodon credentials: %w", err)
		}
		account := domain.Account{Platform: domain.PlatformMastodon, ID: me.ID, Handle: me.FullAcct(masto.Host())}
		resolverOpts = append(resolverOpts,
			domain.WithPostFetcher(account, masto),
			domain.WithStatusFetcher(account, masto),
		)
		serviceOpts = append(serviceOpts, domain.WithFetcher(account, masto))
		followers[domain.PlatformMastodon] = func(ctx context.Context) ([]domain.CanonicalUserID, error) {
			return masto.Following(ctx, me.ID)
		}
		self = append(self, me.CanonicalID(masto.Host()))
		log.Info("authenticated with mastodon", logger.String("acct", account.Handle))
	}

	resolverOpts = append(resolverOpts, domain.WithResolverMetrics(m))
	resolver := domain.NewParentResolver(arena, parentCache, log, resolverOpts...)
	filter := domain.NewPostFeedFilter(cfg.Filters, resolver, log)
	serviceOpts = append(serviceOpts, domain.WithCacheClearer(resolver))

	if cfg.AMQPURL != "" {
		conn, err := events.DialWithRetry(ctx, events.ConnectionOptions{
			URL:           cfg.AMQPURL,
			RetryAttempts: 5,
			Delay:         time.Second,
		}, log)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		publisher, err := events.NewPublisher(conn, cfg.AMQPExchange, log)
		if err != nil {
			return fmt.Errorf("create publisher: %w", err)
		}
		defer publisher.Close()
		serviceOpts = append(serviceOpts, domain.WithNotifier(events.NewTimelineNotifier(publisher)))
		log.Info("publishing timeline events", logger.String("exchange", cfg.AMQPExchange))
	}

	service, err := domain.NewTimelineService(domain.TimelineConfig{
		TimelineID: cfg.TimelineID,
		FeedURIs:   cfg.FeedURIs(),
		Ordering:   cfg.Ordering,
	}, filter, arena, repo, repo, log, serviceOpts...)
	if err != nil {
		return fmt.Errorf("create timeline service: %w", err)
	}
	service.SetFollows(domain.NewFollowSet(self...))

	subscriber := firehose.NewSubscriber(cfg.FirehoseURL, service, func() []string {
		return service.Follows().StableIDs(domain.PlatformBluesky)
	}, log.With(logger.String("component", "firehose")))

	if bsky != nil {
		go func() {
			if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error("firehose subscriber exited with error", logger.Error(err))
			}
		}()
	}

	if len(followers) > 0 {
		followSync := scheduler.NewFollowSync(service, followers, self, subscriber.Refresh,
			log.With(logger.String("component", "follow_sync")), cfg.FollowSyncInterval)
		if err := followSync.Start(ctx); err != nil {
			return fmt.Errorf("start follow sync: %w", err)
		}
		defer followSync.Stop()
	}

	if masto != nil {
		poller := scheduler.NewMastodonPoller(masto, service,
			log.With(logger.String("component", "mastodon_poller")), cfg.MastodonPollInterval)
		if err := poller.Start(ctx); err != nil {
			return fmt.Errorf("start mastodon poller: %w", err)
		}
		defer poller.Stop()
	}

	go service.StartCleanupJob(ctx, cfg.CleanupInterval, cfg.MaxPostAge, cfg.MaxPosts)

	deps := httpserver.Deps{
		Timeline: service,
		Drafts:   repo,
		Metrics:  m.Handler(),
	}
	if bsky != nil {
		deps.Resolver = bsky
	}
	server := httpserver.NewServer(cfg, deps, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info("server started",
		logger.Int("port", cfg.Port),
		logger.String("hostname", cfg.Hostname),
		logger.String("timeline", cfg.TimelineID),
	)

	select {
	case <-ctx.Done():
		log.Info("received signal, shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down http server", logger.Error(err))
	}

	return nil
}
