package events

import "time"

// Envelope wraps every published event.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

type Meta struct {
	// Trace / request correlation ID
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID string `json:"id"`
	// Emitting service and version
	Producer *string `json:"producer,omitempty"`
	// Timestamp when the event was emitted
	Time time.Time `json:"time"`
	// Event name and version, e.g. timeline.entry.upserted.v1
	Type string `json:"type"`
}

// TypeTimelineEntryUpserted is published after every timeline entry write.
const TypeTimelineEntryUpserted = "timeline.entry.upserted.v1"

// TimelineEntryUpserted is the payload of TypeTimelineEntryUpserted.
type TimelineEntryUpserted struct {
	TimelineID      string    `json:"timeline_id"`
	EntryID         string    `json:"entry_id"`
	CanonicalPostID string    `json:"canonical_post_id"`
	OriginNetwork   string    `json:"origin_network"`
	SourceContext   string    `json:"source_context"`
	SortKey         time.Time `json:"sort_key"`
	NativeKeys      []string  `json:"native_keys"`
	RepostCount     int       `json:"repost_count"`
}
