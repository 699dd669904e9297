package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/blackmichael/crossfeed/internal/domain"
)

// Config holds all configuration for the application.
type Config struct {
	// Hostname is the public hostname where this service is reachable (used for did:web).
	Hostname string

	// Port is the HTTP server port.
	Port int

	// PublisherDID is the DID of the account that published the feed generator records.
	PublisherDID string

	// FeedNames are the record keys of the feed generator records served.
	FeedNames []string

	// DatabasePath is the sqlite database file.
	DatabasePath string

	// FirehoseURL is the Jetstream WebSocket endpoint.
	FirehoseURL string

	// TimelineID names the merged timeline.
	TimelineID string

	LogLevel        string        // "debug" | "info" | "warn" | "error"
	PrettyLog       bool          // true => zap dev (color), false => zap prod (JSON)
	ShutdownTimeout time.Duration // ex: 10s

	// Bluesky account used for follows, parent lookups and posting.
	BlueskyPDS         string
	BlueskyHandle      string
	BlueskyAppPassword string

	// Mastodon account polled for the home timeline.
	MastodonServer       string
	MastodonToken        string
	MastodonPollInterval time.Duration
	FollowSyncInterval   time.Duration

	// Redis backs the reply target cache when RedisAddr is set.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ParentCacheTTL time.Duration

	// AMQPURL enables publishing timeline events when set.
	AMQPURL      string
	AMQPExchange string

	// Retention of timeline entries.
	CleanupInterval time.Duration
	MaxPostAge      time.Duration
	MaxPosts        int

	// FiltersFile is an optional YAML file holding Filters and Ordering.
	FiltersFile string
	Filters     domain.FilterConfig
	Ordering    domain.TimelineOrderingConfiguration
}

// ServiceDID returns the did:web for this feed generator based on the hostname.
func (c *Config) ServiceDID() string {
	return "did:web:" + c.Hostname
}

// FeedURIs returns the AT-URIs of every configured feed.
func (c *Config) FeedURIs() []string {
	uris := make([]string, 0, len(c.FeedNames))
	for _, name := range c.FeedNames {
		uris = append(uris, domain.NewFeedURI(c.PublisherDID, name))
	}
	return uris
}

// BlueskyEnabled reports whether Bluesky credentials are configured.
func (c *Config) BlueskyEnabled() bool {
	return c.BlueskyHandle != "" && c.BlueskyAppPassword != ""
}

// MastodonEnabled reports whether a Mastodon account is configured.
func (c *Config) MastodonEnabled() bool {
	return c.MastodonServer != "" && c.MastodonToken != ""
}

// fileConfig is the layout of FiltersFile.
type fileConfig struct {
	Filters  domain.FilterConfig                  `yaml:"filters"`
	Ordering *domain.TimelineOrderingConfiguration `yaml:"ordering"`
}

// Load reads configuration from an optional .env file, environment variables
// and the optional filters file, with sensible defaults.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	env := &envReader{}
	cfg := &Config{
		Hostname:        env.str("FEEDGEN_HOSTNAME", "localhost"),
		Port:            env.integer("PORT", 3000),
		PublisherDID:    os.Getenv("FEEDGEN_PUBLISHER_DID"),
		FeedNames:       env.list("FEEDGEN_FEED_NAMES", []string{"crossfeed"}),
		DatabasePath:    env.str("DATABASE_PATH", "crossfeed.db"),
		FirehoseURL:     env.str("FEEDGEN_FIREHOSE_URL", "wss://jetstream1.us-east.bsky.network/subscribe"),
		TimelineID:      env.str("CROSSFEED_TIMELINE_ID", "home"),
		LogLevel:        env.str("LOG_LEVEL", "info"),
		PrettyLog:       env.boolean("PRETTY_LOG", false),
		ShutdownTimeout: env.duration("SHUTDOWN_TIMEOUT", 10*time.Second),

		BlueskyPDS:         env.str("BLUESKY_PDS_URL", "https://bsky.social"),
		BlueskyHandle:      os.Getenv("BLUESKY_HANDLE"),
		BlueskyAppPassword: os.Getenv("BLUESKY_APP_PASSWORD"),

		MastodonServer:       strings.TrimSuffix(os.Getenv("MASTODON_SERVER"), "/"),
		MastodonToken:        os.Getenv("MASTODON_ACCESS_TOKEN"),
		MastodonPollInterval: env.duration("MASTODON_POLL_INTERVAL", time.Minute),
		FollowSyncInterval:   env.duration("FOLLOW_SYNC_INTERVAL", 30*time.Minute),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        env.integer("REDIS_DB", 0),
		ParentCacheTTL: env.duration("PARENT_CACHE_TTL", 6*time.Hour),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: env.str("AMQP_EXCHANGE", "crossfeed.events"),

		CleanupInterval: env.duration("CLEANUP_INTERVAL", time.Hour),
		MaxPostAge:      env.duration("MAX_POST_AGE", 48*time.Hour),
		MaxPosts:        env.integer("MAX_POSTS", 10000),

		FiltersFile: os.Getenv("CROSSFEED_FILTERS_FILE"),
		Ordering:    domain.DefaultOrdering(),
	}
	if env.err != nil {
		return nil, env.err
	}

	if cfg.PublisherDID == "" {
		return nil, fmt.Errorf("FEEDGEN_PUBLISHER_DID is required")
	}

	if cfg.FiltersFile != "" {
		if err := cfg.loadFiltersFile(cfg.FiltersFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFiltersFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read filters file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse filters file %s: %w", path, err)
	}

	c.Filters = fc.Filters
	if fc.Ordering != nil {
		c.Ordering = *fc.Ordering
		if c.Ordering.Strategy == "" {
			c.Ordering.Strategy = domain.OrderByCreatedAt
		}
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT: %d", c.Port))
	}
	if c.TimelineID == "" {
		errs = append(errs, errors.New("CROSSFEED_TIMELINE_ID must not be empty"))
	}
	if len(c.FeedNames) == 0 {
		errs = append(errs, errors.New("FEEDGEN_FEED_NAMES must name at least one feed"))
	}
	if err := c.Ordering.Validate(); err != nil {
		errs = append(errs, err)
	}
	if (c.BlueskyHandle == "") != (c.BlueskyAppPassword == "") {
		errs = append(errs, errors.New("BLUESKY_HANDLE and BLUESKY_APP_PASSWORD must be set together"))
	}
	if (c.MastodonServer == "") != (c.MastodonToken == "") {
		errs = append(errs, errors.New("MASTODON_SERVER and MASTODON_ACCESS_TOKEN must be set together"))
	}
	if c.MastodonPollInterval <= 0 {
		errs = append(errs, errors.New("MASTODON_POLL_INTERVAL must be positive"))
	}
	if c.FollowSyncInterval <= 0 {
		errs = append(errs, errors.New("FOLLOW_SYNC_INTERVAL must be positive"))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, errors.New("CLEANUP_INTERVAL must be positive"))
	}
	if c.MaxPosts <= 0 {
		errs = append(errs, errors.New("MAX_POSTS must be positive"))
	}

	return errors.Join(errs...)
}

// envReader reads typed environment variables, keeping the first parse
// error.
type envReader struct {
	err error
}

func (r *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return i
}

func (r *envReader) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func (r *envReader) list(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var parts []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func (r *envReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
