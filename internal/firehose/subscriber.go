package firehose

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/crossfeed/internal/domain"
	"github.com/blackmichael/crossfeed/internal/logger"
)

const (
	cursorServiceName  = "jetstream"
	cursorSaveInterval = 5 * time.Second
	statsInterval      = 30 * time.Second

	// maxWantedDIDs is the Jetstream limit on wantedDids per connection.
	maxWantedDIDs = 10000
)

// wantedCollections is the set of AT Proto collection NSIDs this subscriber
// requests from Jetstream.
var wantedCollections = []string{
	collectionPost,
	collectionRepost,
}

// Sink receives the events a Subscriber decodes. *domain.TimelineService
// implements it.
type Sink interface {
	IngestPost(ctx context.Context, post domain.Post, embedded ...domain.Post) (bool, error)
	IngestSocialEvent(ctx context.Context, event domain.SocialEvent) (bool, error)
	ProcessDeletePost(ctx context.Context, key domain.NativePostKey) error
	GetCursor(ctx context.Context, service string) (int64, error)
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// Subscriber connects to the Jetstream firehose and processes events for the
// followed Bluesky accounts.
type Subscriber struct {
	url            string
	sink           Sink
	wantedDIDs     func() []string
	logger         logger.Logger
	reconnectDelay time.Duration
	refresh        chan struct{}
}

// NewSubscriber creates a new firehose subscriber. wantedDIDs is consulted on
// every connect; a nil func subscribes to all accounts.
func NewSubscriber(
	firehoseURL string,
	sink Sink,
	wantedDIDs func() []string,
	log logger.Logger,
) *Subscriber {
	return &Subscriber{
		url:            firehoseURL,
		sink:           sink,
		wantedDIDs:     wantedDIDs,
		logger:         log,
		reconnectDelay: 5 * time.Second,
		refresh:        make(chan struct{}, 1),
	}
}

// Refresh drops the current connection so the next one picks up a changed
// set of wanted DIDs.
func (s *Subscriber) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Start connects to the firehose and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("firehose connection error, reconnecting", logger.Error(err))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-s.refresh:
				case <-time.After(s.reconnectDelay):
					// backoff before reconnecting
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64, dids []string) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse firehose url: %w", err)
	}
	q := u.Query()
	for _, c := range wantedCollections {
		q.Add("wantedCollections", c)
	}
	for _, did := range dids {
		q.Add("wantedDids", did)
	}
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Subscriber) currentDIDs() []string {
	if s.wantedDIDs == nil {
		return nil
	}
	dids := s.wantedDIDs()
	if len(dids) > maxWantedDIDs {
		s.logger.Warn("too many followed accounts for jetstream, truncating",
			logger.Int("follows", len(dids)),
			logger.Int("limit", maxWantedDIDs),
		)
		dids = dids[:maxWantedDIDs]
	}
	return dids
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	dids := s.currentDIDs()
	if s.wantedDIDs != nil && len(dids) == 0 {
		s.logger.Info("no followed bluesky accounts yet, waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.refresh:
			return nil
		}
	}

	cursor, err := s.sink.GetCursor(ctx, cursorServiceName)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", logger.Error(err))
	}

	wsURL, err := s.buildURL(cursor, dids)
	if err != nil {
		return err
	}
	s.logger.Info("connecting to firehose",
		logger.String("url", s.url),
		logger.Int64("cursor", cursor),
		logger.Int("wanted_dids", len(dids)),
	)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	s.logger.Info("connected to firehose")

	// ReadMessage does not observe ctx; close the connection to unblock it.
	done := make(chan struct{})
	defer close(done)
	refreshed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-s.refresh:
			close(refreshed)
		case <-done:
			return
		}
		conn.Close()
	}()

	lastCursorSave := time.Now()
	var latestCursor int64
	var eventsReceived, commitsReceived, postsAccepted int64
	lastStatsLog := time.Now()

	saveCursor := func() {
		if latestCursor == 0 {
			return
		}
		if err := s.sink.UpdateCursor(context.WithoutCancel(ctx), cursorServiceName, latestCursor); err != nil {
			s.logger.Error("failed to save cursor", logger.Error(err))
			return
		}
		lastCursorSave = time.Now()
	}
	defer saveCursor()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-refreshed:
				s.logger.Info("follow set changed, resubscribing")
				return nil
			default:
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", logger.Error(err))
			continue
		}

		eventsReceived++
		if event.TimeUS > latestCursor {
			latestCursor = event.TimeUS
		}

		if event.Kind == "commit" && event.Commit != nil {
			commitsReceived++
			if accepted, err := s.handleCommit(ctx, event); err != nil {
				s.logger.Error("failed to handle commit",
					logger.String("did", event.DID),
					logger.String("collection", event.Commit.Collection),
					logger.Error(err),
				)
			} else if accepted {
				postsAccepted++
			}
		}

		if time.Since(lastStatsLog) >= statsInterval {
			s.logger.Info("firehose stats",
				logger.Int64("events_received", eventsReceived),
				logger.Int64("commits_received", commitsReceived),
				logger.Int64("posts_accepted", postsAccepted),
			)
			lastStatsLog = time.Now()
		}

		if time.Since(lastCursorSave) >= cursorSaveInterval {
			saveCursor()
		}
	}
}

func (s *Subscriber) handleCommit(ctx context.Context, event *jetstreamEvent) (accepted bool, err error) {
	commit := event.Commit
	key := domain.NativePostKey{Platform: domain.PlatformBluesky, ID: event.recordURI()}

	switch commit.Operation {
	case "create":
		switch {
		case commit.Post != nil:
			post := event.toPost()
			accepted, err := s.sink.IngestPost(ctx, post)
			if err != nil {
				return false, err
			}
			if accepted {
				s.logger.Debug("accepted post",
					logger.String("uri", post.URI),
					logger.String("text_preview", truncate(post.Content, 100)),
				)
			}
			return accepted, nil

		case commit.Repost != nil:
			return s.sink.IngestSocialEvent(ctx, event.toRepostEvent())

		default:
			return false, nil
		}

	case "delete":
		if commit.Collection != collectionPost && commit.Collection != collectionRepost {
			return false, nil
		}
		return false, s.sink.ProcessDeletePost(ctx, key)

	default:
		return false, nil
	}
}

// truncate returns the first n runes of s, appending "..." if truncated.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
