package domain

import "time"

// SocialEventType names the kind of social signal.
type SocialEventType string

const (
	SocialEventRepost SocialEventType = "repost"
	SocialEventLike   SocialEventType = "like"
	SocialEventReply  SocialEventType = "reply"
)

// SocialActor is an account that acted on a post.
type SocialActor struct {
	ID          ActorID         `json:"id"`
	UserID      CanonicalUserID `json:"userId"`
	DisplayName string          `json:"displayName,omitempty"`
}

// NewSocialActor builds an actor keyed by the account's ActorID.
func NewSocialActor(author Author) SocialActor {
	return SocialActor{
		ID:          author.ID.ActorID(),
		UserID:      author.ID,
		DisplayName: author.DisplayName,
	}
}

// SocialEvent is a signal from one network about a post.
type SocialEvent struct {
	Type  SocialEventType `json:"type"`
	Actor SocialActor     `json:"actor"`

	// Target is the post the event is about.
	Target NativePostKey `json:"target"`

	// Source is the native record that carried the event, such as the repost
	// record or the boost status. May be zero.
	Source NativePostKey `json:"source"`

	OccurredAt time.Time `json:"occurredAt"`
}

// SocialContext records who reposted a post, most recent first.
type SocialContext struct {
	RepostActors   []SocialActor `json:"repostActors,omitempty"`
	LatestRepostAt time.Time     `json:"latestRepostAt,omitzero"`
}

// Apply merges event into the context and reports whether anything changed.
// Only repost events are applied. An actor already present is moved to the
// front instead of being duplicated, and LatestRepostAt never moves backwards.
func (c *SocialContext) Apply(event SocialEvent) bool {
	if event.Type != SocialEventRepost {
		return false
	}

	actors := make([]SocialActor, 0, len(c.RepostActors)+1)
	actors = append(actors, event.Actor)
	for _, a := range c.RepostActors {
		if a.ID == event.Actor.ID {
			continue
		}
		actors = append(actors, a)
	}
	c.RepostActors = actors

	if event.OccurredAt.After(c.LatestRepostAt) {
		c.LatestRepostAt = event.OccurredAt
	}
	return true
}

// RepostCount returns the number of distinct reposting actors.
func (c *SocialContext) RepostCount() int {
	return len(c.RepostActors)
}
