package domain

import (
	"context"
	"strings"

	"github.com/blackmichael/crossfeed/internal/logger"
)

// DecisionReason explains why a post was kept or dropped.
type DecisionReason string

const (
	ReasonBlockedKeyword   DecisionReason = "blocked_keyword"
	ReasonBoost            DecisionReason = "boost"
	ReasonTopLevel         DecisionReason = "top_level"
	ReasonUnresolvedReply  DecisionReason = "unresolved_reply"
	ReasonSelfReply        DecisionReason = "self_reply"
	ReasonFollowedTarget   DecisionReason = "followed_target"
	ReasonUnfollowedTarget DecisionReason = "unfollowed_target"
)

// Decision is the outcome of PostFeedFilter.Evaluate.
type Decision struct {
	Include bool
	Reason  DecisionReason
}

// FilterConfig holds the viewer's keyword filter settings.
type FilterConfig struct {
	KeywordFilterEnabled bool     `yaml:"keywordFilterEnabled"`
	BlockedKeywords      []string `yaml:"blockedKeywords"`
}

// PostFeedFilter decides whether a post belongs on the home timeline.
type PostFeedFilter struct {
	keywordsEnabled bool
	keywords        []string
	resolver        ReplyTargetResolver
	logger          logger.Logger
}

// NewPostFeedFilter compiles cfg into a filter. Keywords are lowercased once
// here; blank keywords are ignored.
func NewPostFeedFilter(cfg FilterConfig, resolver ReplyTargetResolver, log logger.Logger) *PostFeedFilter {
	keywords := make([]string, 0, len(cfg.BlockedKeywords))
	for _, kw := range cfg.BlockedKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return &PostFeedFilter{
		keywordsEnabled: cfg.KeywordFilterEnabled,
		keywords:        keywords,
		resolver:        resolver,
		logger:          log,
	}
}

// ShouldIncludePost reports whether post should be shown to a viewer who
// follows the accounts in follows.
func (f *PostFeedFilter) ShouldIncludePost(ctx context.Context, post *Post, follows FollowSet) bool {
	return f.Evaluate(ctx, post, follows).Include
}

// Evaluate runs the filter steps in order: keyword filter, boost bypass,
// top-level bypass, then reply visibility. The keyword filter applies to
// boosts too. A reply whose target cannot be resolved is excluded.
func (f *PostFeedFilter) Evaluate(ctx context.Context, post *Post, follows FollowSet) Decision {
	if f.blocked(post.Content) {
		return Decision{Include: false, Reason: ReasonBlockedKeyword}
	}

	if post.IsBoost() {
		return Decision{Include: true, Reason: ReasonBoost}
	}

	if !post.IsReply() {
		return Decision{Include: true, Reason: ReasonTopLevel}
	}

	target, err := f.resolver.ResolveReplyTarget(ctx, post)
	if err != nil {
		f.logger.Debug("excluding reply with unresolved target",
			logger.String("post", post.Key.String()),
			logger.String("in_reply_to_id", post.InReplyToID),
			logger.Error(err),
		)
		return Decision{Include: false, Reason: ReasonUnresolvedReply}
	}

	author := post.Author.ID
	if follows.Contains(author) && author.Matches(target) {
		return Decision{Include: true, Reason: ReasonSelfReply}
	}
	if follows.Contains(target) {
		return Decision{Include: true, Reason: ReasonFollowedTarget}
	}
	return Decision{Include: false, Reason: ReasonUnfollowedTarget}
}

func (f *PostFeedFilter) blocked(content string) bool {
	if !f.keywordsEnabled || len(f.keywords) == 0 {
		return false
	}
	lowered := strings.ToLower(content)
	for _, kw := range f.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
