package bluesky

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/blackmichael/crossfeed/internal/domain"
	"github.com/blackmichael/crossfeed/internal/richtext"
)

const (
	collectionPost = "app.bsky.feed.post"

	// maxGetPosts is the app.bsky.feed.getPosts limit on uris per call.
	maxGetPosts = 25
	followsPage = 100
)

// ProfileView is the subset of app.bsky.actor.defs#profileViewBasic we use.
type ProfileView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

// PostView is the subset of app.bsky.feed.defs#postView we use.
type PostView struct {
	URI       string      `json:"uri"`
	CID       string      `json:"cid"`
	Author    ProfileView `json:"author"`
	Record    PostRecord  `json:"record"`
	IndexedAt string      `json:"indexedAt"`
}

// PostRecord is an app.bsky.feed.post record.
type PostRecord struct {
	Type      string                  `json:"$type"`
	Text      string                  `json:"text"`
	CreatedAt string                  `json:"createdAt"`
	Langs     []string                `json:"langs,omitempty"`
	Facets    []richtext.BlueskyFacet `json:"facets,omitempty"`
	Reply     *ReplyRef               `json:"reply,omitempty"`
}

// ReplyRef points a new post at the root and parent of a thread.
type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

// StrongRef references a specific version of a record.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// ResolveHandle returns the DID a handle points at.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	var resp struct {
		DID string `json:"did"`
	}
	q := url.Values{"handle": {handle}}
	if err := c.get(ctx, "/xrpc/com.atproto.identity.resolveHandle", q, &resp); err != nil {
		return "", fmt.Errorf("resolve handle %s: %w", handle, err)
	}
	if resp.DID == "" {
		return "", fmt.Errorf("resolve handle %s: empty did", handle)
	}
	return resp.DID, nil
}

// GetPosts hydrates up to 25 post URIs. Posts the AppView cannot see are
// missing from the result.
func (c *Client) GetPosts(ctx context.Context, uris []string) ([]PostView, error) {
	if len(uris) > maxGetPosts {
		return nil, fmt.Errorf("get posts: %d uris exceeds limit of %d", len(uris), maxGetPosts)
	}
	var resp struct {
		Posts []PostView `json:"posts"`
	}
	q := url.Values{"uris": uris}
	if err := c.get(ctx, "/xrpc/app.bsky.feed.getPosts", q, &resp); err != nil {
		return nil, fmt.Errorf("get posts: %w", err)
	}
	return resp.Posts, nil
}

// FetchPostByID loads one post by AT-URI. It returns (nil, nil) when the
// post does not exist or is not visible.
func (c *Client) FetchPostByID(ctx context.Context, id string, _ domain.Account) (*domain.Post, error) {
	views, err := c.GetPosts(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		if v.URI == id {
			post := v.ToPost()
			return &post, nil
		}
	}
	return nil, nil
}

// ToPost maps a post view onto the domain.
func (v PostView) ToPost() domain.Post {
	post := domain.Post{
		Key: domain.NativePostKey{Platform: domain.PlatformBluesky, ID: v.URI},
		URI: v.URI,
		CID: v.CID,
		Author: domain.Author{
			ID:          domain.NewCanonicalUserID(domain.PlatformBluesky, v.Author.DID, v.Author.Handle),
			DisplayName: v.Author.DisplayName,
		},
		Content:   v.Record.Text,
		Langs:     v.Record.Langs,
		CreatedAt: parseTime(v.Record.CreatedAt, parseTime(v.IndexedAt, time.Time{})),
	}
	if v.Record.Reply != nil && v.Record.Reply.Parent.URI != "" {
		parent := domain.NativePostKey{Platform: domain.PlatformBluesky, ID: v.Record.Reply.Parent.URI}
		post.InReplyToID = parent.ID
		post.Parent = &parent
	}
	return post
}

// GetFollows pages through every account actor follows.
func (c *Client) GetFollows(ctx context.Context, actor string) ([]domain.CanonicalUserID, error) {
	var (
		ids    []domain.CanonicalUserID
		cursor string
	)
	for {
		q := url.Values{
			"actor": {actor},
			"limit": {strconv.Itoa(followsPage)},
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var resp struct {
			Follows []ProfileView `json:"follows"`
			Cursor  string        `json:"cursor"`
		}
		if err := c.get(ctx, "/xrpc/app.bsky.graph.getFollows", q, &resp); err != nil {
			return nil, fmt.Errorf("get follows: %w", err)
		}
		for _, f := range resp.Follows {
			ids = append(ids, domain.NewCanonicalUserID(domain.PlatformBluesky, f.DID, f.Handle))
		}

		if resp.Cursor == "" || resp.Cursor == cursor || len(resp.Follows) == 0 {
			return ids, nil
		}
		cursor = resp.Cursor
	}
}

// CreatePost publishes a post with the given facets in the authenticated
// user's repo and returns its strong ref.
func (c *Client) CreatePost(ctx context.Context, text string, facets []richtext.BlueskyFacet, reply *ReplyRef) (StrongRef, error) {
	if err := c.requireSession(); err != nil {
		return StrongRef{}, err
	}

	body := createRecordRequest{
		Repo:       c.did,
		Collection: collectionPost,
		Record: PostRecord{
			Type:      collectionPost,
			Text:      text,
			CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
			Facets:    facets,
			Reply:     reply,
		},
	}

	var resp StrongRef
	if err := c.post(ctx, "/xrpc/com.atproto.repo.createRecord", body, &resp); err != nil {
		return StrongRef{}, fmt.Errorf("create record: %w", err)
	}
	return resp, nil
}

func parseTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fallback
	}
	return t.UTC()
}

type createRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}
