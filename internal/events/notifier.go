package events

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/blackmichael/crossfeed/internal/domain"
)

const producer = "crossfeed"

// TimelineNotifier publishes a TimelineEntryUpserted event for every
// timeline write. It implements domain.EntryNotifier.
type TimelineNotifier struct {
	publisher Publisher
	now       func() time.Time
}

var _ domain.EntryNotifier = (*TimelineNotifier)(nil)

// NewTimelineNotifier creates a notifier on top of publisher.
func NewTimelineNotifier(publisher Publisher) *TimelineNotifier {
	return &TimelineNotifier{
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RoutingKey is "timeline.<timelineID>.upserted".
func RoutingKey(timelineID string) string {
	return "timeline." + timelineID + ".upserted"
}

func (n *TimelineNotifier) TimelineEntryUpserted(ctx context.Context, entry domain.CanonicalTimelineEntry, post *domain.CanonicalPost) error {
	env := n.envelope(entry, post)
	if err := n.publisher.Publish(ctx, RoutingKey(entry.TimelineID), env); err != nil {
		return fmt.Errorf("publish %s: %w", env.Meta.Type, err)
	}
	return nil
}

func (n *TimelineNotifier) envelope(entry domain.CanonicalTimelineEntry, post *domain.CanonicalPost) Envelope {
	data := TimelineEntryUpserted{
		TimelineID:      entry.TimelineID,
		EntryID:         entry.ID,
		CanonicalPostID: entry.CanonicalPostID,
		SourceContext:   entry.SourceContext,
		SortKey:         entry.SortKey,
	}
	if post != nil {
		data.OriginNetwork = string(post.OriginNetwork)
		data.RepostCount = post.SocialContext.RepostCount()
		for _, k := range post.Keys() {
			data.NativeKeys = append(data.NativeKeys, k.String())
		}
		slices.Sort(data.NativeKeys)
	}

	p := producer
	return Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: &p,
			Time:     n.now(),
			Type:     TypeTimelineEntryUpserted,
		},
		Data: data,
	}
}
