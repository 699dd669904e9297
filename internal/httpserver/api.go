package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/blackmichael/crossfeed/internal/logger"
	"github.com/blackmichael/crossfeed/internal/richtext"
)

const maxDraftBytes = 1 << 20

type composePreviewRequest struct {
	Text         string   `json:"text"`
	Destinations []string `json:"destinations"`

	// ResolveDIDs looks up Bluesky DIDs for mentions before rendering
	// facets.
	ResolveDIDs bool `json:"resolveDids,omitempty"`
}

// composeResponse is the rendered state of a composer. Entities carry their
// per-destination payloads; Draft is the storable form.
type composeResponse struct {
	Revision         uint64                    `json:"revision"`
	Entities         []richtext.TextEntity     `json:"entities"`
	Draft            richtext.Draft            `json:"draft"`
	MastodonEntities []richtext.MastodonEntity `json:"mastodonEntities"`
	BlueskyFacets    []richtext.BlueskyFacet   `json:"blueskyFacets"`
	Unresolved       []string                  `json:"unresolved,omitempty"`
}

func newComposeResponse(c *richtext.Composer) composeResponse {
	snap := c.Snapshot()
	resp := composeResponse{
		Revision:         snap.Revision,
		Entities:         snap.Entities,
		Draft:            c.Draft(),
		MastodonEntities: c.MastodonEntities(),
		BlueskyFacets:    c.BlueskyFacets(),
	}
	if resp.MastodonEntities == nil {
		resp.MastodonEntities = []richtext.MastodonEntity{}
	}
	if resp.BlueskyFacets == nil {
		resp.BlueskyFacets = []richtext.BlueskyFacet{}
	}
	return resp
}

func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}
	cursor := r.URL.Query().Get("cursor")

	page, err := s.deps.Timeline.GetTimeline(r.Context(), limit, cursor)
	if err != nil {
		s.logger.Error("failed to get timeline",
			logger.Int("limit", limit),
			logger.String("cursor", cursor),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get timeline")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleComposePreview(w http.ResponseWriter, r *http.Request) {
	var req composePreviewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDraftBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be a JSON object")
		return
	}

	c := richtext.NewComposerWithText(req.Text)
	c.ParseEntitiesFromText(req.Destinations)

	var unresolved []string
	if req.ResolveDIDs && s.deps.Resolver != nil {
		if _, err := c.ResolveMentionDIDs(r.Context(), s.deps.Resolver); err != nil {
			s.logger.Warn("mention resolution incomplete", logger.Error(err))
			unresolved = splitJoined(err)
		}
	}

	resp := newComposeResponse(c)
	resp.Unresolved = unresolved
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "draft id is required")
		return
	}

	var draft richtext.Draft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDraftBytes)).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be a draft")
		return
	}

	// round trip through a composer to drop entities that no longer fit
	normalized := richtext.RestoreDraft(draft, nil).Draft()
	if err := s.deps.Drafts.SaveDraft(r.Context(), id, normalized); err != nil {
		s.logger.Error("failed to save draft", logger.String("draft_id", id), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to save draft")
		return
	}
	writeJSON(w, http.StatusOK, normalized)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	draft, err := s.deps.Drafts.GetDraft(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load draft", logger.String("draft_id", id), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to load draft")
		return
	}
	if draft == nil {
		writeError(w, http.StatusNotFound, "NotFound", "no such draft")
		return
	}

	c := richtext.RestoreDraft(*draft, r.URL.Query()["destination"])
	writeJSON(w, http.StatusOK, newComposeResponse(c))
}

// splitJoined flattens an errors.Join result into messages.
func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		msgs := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}
