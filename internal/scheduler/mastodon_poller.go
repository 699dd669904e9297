package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/blackmichael/crossfeed/internal/domain"
	"github.com/blackmichael/crossfeed/internal/logger"
	"github.com/blackmichael/crossfeed/internal/mastodon"
)

const (
	// MastodonCursorName is the cursor row holding the newest polled status ID.
	MastodonCursorName = "mastodon:home"

	pollPageSize = 40
	maxPollPages = 10
)

// HomeTimelineSource is the part of the Mastodon client the poller needs.
type HomeTimelineSource interface {
	HomeTimeline(ctx context.Context, sinceID string, limit int) ([]mastodon.Status, error)
	Host() string
}

// PostIngester receives polled posts. *domain.TimelineService implements it.
type PostIngester interface {
	IngestPost(ctx context.Context, post domain.Post, embedded ...domain.Post) (bool, error)
	GetCursor(ctx context.Context, service string) (int64, error)
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// MastodonPoller periodically pulls the home timeline into the service.
type MastodonPoller struct {
	source   HomeTimelineSource
	ingester PostIngester
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewMastodonPoller creates a new poller.
func NewMastodonPoller(
	source HomeTimelineSource,
	ingester PostIngester,
	log logger.Logger,
	interval time.Duration,
) *MastodonPoller {
	return &MastodonPoller{
		source:   source,
		ingester: ingester,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start polls immediately and then on every interval in the background.
func (p *MastodonPoller) Start(ctx context.Context) error {
	if _, err := p.Poll(ctx); err != nil {
		p.logger.Warn("initial mastodon poll failed", logger.Error(err))
	}

	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := p.Poll(ctx); err != nil {
					p.logger.Error("mastodon poll failed", logger.Error(err))
				}
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the poller.
func (p *MastodonPoller) Stop() {
	close(p.stopCh)
}

// Poll ingests every status newer than the saved cursor, oldest first, and
// advances the cursor past each one. Returns the number of statuses seen.
func (p *MastodonPoller) Poll(ctx context.Context) (int, error) {
	cursor, err := p.ingester.GetCursor(ctx, MastodonCursorName)
	if err != nil {
		return 0, fmt.Errorf("load mastodon cursor: %w", err)
	}

	var seen, accepted int
	for page := 0; page < maxPollPages; page++ {
		sinceID := ""
		if cursor > 0 {
			sinceID = strconv.FormatInt(cursor, 10)
		}

		statuses, err := p.source.HomeTimeline(ctx, sinceID, pollPageSize)
		if err != nil {
			return seen, err
		}
		if len(statuses) == 0 {
			break
		}

		// pages arrive newest first
		slices.Reverse(statuses)
		for _, s := range statuses {
			id, err := strconv.ParseInt(s.ID, 10, 64)
			if err != nil {
				p.logger.Warn("skipping status with non-numeric id", logger.String("status_id", s.ID))
				continue
			}

			post, embedded := s.ToPosts(p.source.Host())
			ok, err := p.ingester.IngestPost(ctx, post, embedded...)
			if err != nil {
				p.logger.Error("failed to ingest status",
					logger.String("status_id", s.ID),
					logger.Error(err),
				)
			} else if ok {
				accepted++
			}
			seen++
			if id > cursor {
				cursor = id
			}
		}

		if err := p.ingester.UpdateCursor(ctx, MastodonCursorName, cursor); err != nil {
			return seen, fmt.Errorf("save mastodon cursor: %w", err)
		}
		if len(statuses) < pollPageSize {
			break
		}
	}

	if seen > 0 {
		p.logger.Info("mastodon poll complete",
			logger.Int("statuses", seen),
			logger.Int("accepted", accepted),
		)
	} else {
		p.logger.Debug("no new mastodon statuses")
	}
	return seen, nil
}
