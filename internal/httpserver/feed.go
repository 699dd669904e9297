package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/blackmichael/crossfeed/internal/domain"
	"github.com/blackmichael/crossfeed/internal/logger"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

func (s *Server) handleDIDDoc(w http.ResponseWriter, _ *http.Request) {
	doc := map[string]any{
		"@context": []string{"https://www.w3.org/ns/did/v1"},
		"id":       s.cfg.ServiceDID(),
		"service": []map[string]any{
			{
				"id":              "#bsky_fg",
				"type":            "BskyFeedGenerator",
				"serviceEndpoint": fmt.Sprintf("https://%s", s.cfg.Hostname),
			},
		},
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDescribeFeedGenerator(w http.ResponseWriter, _ *http.Request) {
	uris := s.deps.Timeline.FeedURIs()
	feeds := make([]map[string]string, 0, len(uris))
	for _, uri := range uris {
		feeds = append(feeds, map[string]string{"uri": uri})
	}

	resp := map[string]any{
		"did":   s.cfg.ServiceDID(),
		"feeds": feeds,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetFeedSkeleton(w http.ResponseWriter, r *http.Request) {
	feedURI := r.URL.Query().Get("feed")
	if feedURI == "" {
		s.logger.Warn("getFeedSkeleton called without feed parameter")
		writeError(w, http.StatusBadRequest, "InvalidRequest", "feed parameter is required")
		return
	}

	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}
	cursor := r.URL.Query().Get("cursor")

	skeleton, err := s.deps.Timeline.GetFeedSkeleton(r.Context(), feedURI, limit, cursor)
	if errors.Is(err, domain.ErrUnknownFeed) {
		writeError(w, http.StatusBadRequest, "UnknownFeed", "unknown feed")
		return
	}
	if err != nil {
		s.logger.Error("failed to get feed skeleton",
			logger.String("feed", feedURI),
			logger.Int("limit", limit),
			logger.String("cursor", cursor),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get feed")
		return
	}

	s.logger.Debug("getFeedSkeleton success",
		logger.String("feed", feedURI),
		logger.Int("posts_returned", len(skeleton.Posts)),
		logger.String("next_cursor", skeleton.Cursor),
	)

	resp := map[string]any{
		"feed": toSkeletonResponse(skeleton.Posts),
	}
	if skeleton.Cursor != "" {
		resp["cursor"] = skeleton.Cursor
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseLimit reads the limit query parameter, writing a 400 when it is out
// of range.
func (s *Server) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return defaultLimit, true
	}
	parsed, err := strconv.Atoi(l)
	if err != nil || parsed < 1 || parsed > maxLimit {
		s.logger.Warn("invalid limit parameter", logger.String("limit", l))
		writeError(w, http.StatusBadRequest, "InvalidRequest", fmt.Sprintf("limit must be between 1 and %d", maxLimit))
		return 0, false
	}
	return parsed, true
}

func toSkeletonResponse(posts []domain.SkeletonPost) []map[string]string {
	result := make([]map[string]string, len(posts))
	for i, p := range posts {
		result[i] = map[string]string{"post": p.Post}
	}
	return result
}
