package firehose

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackmichael/crossfeed/internal/domain"
)

// Collection NSIDs this subscriber understands.
const (
	collectionPost   = "app.bsky.feed.post"
	collectionRepost = "app.bsky.feed.repost"
)

// jetstreamEvent is the raw JSON structure from Jetstream.
type jetstreamEvent struct {
	DID    string           `json:"did"`
	TimeUS int64            `json:"time_us"`
	Kind   string           `json:"kind"`
	Commit *jetstreamCommit `json:"commit,omitempty"`
}

// jetstreamCommit is the raw commit data from Jetstream. Exactly one of Post
// and Repost is set on creates, matching Collection.
type jetstreamCommit struct {
	Rev        string        `json:"rev"`
	Operation  string        `json:"operation"`
	Collection string        `json:"collection"`
	RKey       string        `json:"rkey"`
	CID        string        `json:"cid"`
	Post       *postRecord   `json:"-"`
	Repost     *repostRecord `json:"-"`
}

// postRecord is the parsed content of an app.bsky.feed.post record.
type postRecord struct {
	Type      string    `json:"$type"`
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Langs     []string  `json:"langs"`
	Reply     *replyRef `json:"reply,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// repostRecord is the parsed content of an app.bsky.feed.repost record.
type repostRecord struct {
	Type      string    `json:"$type"`
	Subject   strongRef `json:"subject"`
	CreatedAt string    `json:"createdAt"`
}

// replyRef contains references to the parent and root of a reply chain.
type replyRef struct {
	Root   strongRef `json:"root"`
	Parent strongRef `json:"parent"`
}

// strongRef is a reference to a specific version of a record.
type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

func parseEvent(data []byte) (*jetstreamEvent, error) {
	var raw struct {
		DID    string          `json:"did"`
		TimeUS int64           `json:"time_us"`
		Kind   string          `json:"kind"`
		Commit json.RawMessage `json:"commit,omitempty"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	event := &jetstreamEvent{
		DID:    raw.DID,
		TimeUS: raw.TimeUS,
		Kind:   raw.Kind,
	}

	if raw.Kind == "commit" && len(raw.Commit) > 0 {
		var rc struct {
			Rev        string          `json:"rev"`
			Operation  string          `json:"operation"`
			Collection string          `json:"collection"`
			RKey       string          `json:"rkey"`
			Record     json.RawMessage `json:"record,omitempty"`
			CID        string          `json:"cid"`
		}
		if err := json.Unmarshal(raw.Commit, &rc); err != nil {
			return nil, fmt.Errorf("unmarshal commit: %w", err)
		}

		commit := &jetstreamCommit{
			Rev:        rc.Rev,
			Operation:  rc.Operation,
			Collection: rc.Collection,
			RKey:       rc.RKey,
			CID:        rc.CID,
		}

		if len(rc.Record) > 0 {
			switch rc.Collection {
			case collectionPost:
				var record postRecord
				if err := json.Unmarshal(rc.Record, &record); err != nil {
					return nil, fmt.Errorf("unmarshal post record: %w", err)
				}
				commit.Post = &record
			case collectionRepost:
				var record repostRecord
				if err := json.Unmarshal(rc.Record, &record); err != nil {
					return nil, fmt.Errorf("unmarshal repost record: %w", err)
				}
				commit.Repost = &record
			}
		}

		event.Commit = commit
	}

	return event, nil
}

// recordURI returns the AT-URI of the record the commit touches.
func (e *jetstreamEvent) recordURI() string {
	return fmt.Sprintf("at://%s/%s/%s", e.DID, e.Commit.Collection, e.Commit.RKey)
}

// eventTime is when Jetstream saw the event.
func (e *jetstreamEvent) eventTime() time.Time {
	return time.UnixMicro(e.TimeUS).UTC()
}

// toPost maps a post create into a domain.Post. The author is known only by
// DID; Jetstream commits carry no handle.
func (e *jetstreamEvent) toPost() domain.Post {
	uri := e.recordURI()
	record := e.Commit.Post

	post := domain.Post{
		Key:       domain.NativePostKey{Platform: domain.PlatformBluesky, ID: uri},
		URI:       uri,
		CID:       e.Commit.CID,
		Author:    domain.Author{ID: domain.NewCanonicalUserID(domain.PlatformBluesky, e.DID, "")},
		Content:   record.Text,
		Langs:     record.Langs,
		CreatedAt: parseRecordTime(record.CreatedAt, e.eventTime()),
	}

	if record.Reply != nil && record.Reply.Parent.URI != "" {
		post.InReplyToID = record.Reply.Parent.URI
		post.Parent = &domain.NativePostKey{Platform: domain.PlatformBluesky, ID: record.Reply.Parent.URI}
	}
	return post
}

// toRepostEvent maps a repost create into a SocialEvent whose source is the
// repost record.
func (e *jetstreamEvent) toRepostEvent() domain.SocialEvent {
	record := e.Commit.Repost
	return domain.SocialEvent{
		Type:       domain.SocialEventRepost,
		Actor:      domain.NewSocialActor(domain.Author{ID: domain.NewCanonicalUserID(domain.PlatformBluesky, e.DID, "")}),
		Target:     domain.NativePostKey{Platform: domain.PlatformBluesky, ID: record.Subject.URI},
		Source:     domain.NativePostKey{Platform: domain.PlatformBluesky, ID: e.recordURI()},
		OccurredAt: parseRecordTime(record.CreatedAt, e.eventTime()),
	}
}

// parseRecordTime parses a record's createdAt, falling back when it is
// missing or malformed.
func parseRecordTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fallback
	}
	return t.UTC()
}
