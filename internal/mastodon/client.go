package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/blackmichael/crossfeed/internal/domain"
)

const (
	followingPage = 80
	maxTimeline   = 40
)

// Client is a minimal Mastodon REST client for one account on one server.
type Client struct {
	server     string
	host       string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for server (e.g. https://mastodon.social)
// authenticated with an access token.
func NewClient(server, token string) (*Client, error) {
	server = strings.TrimRight(server, "/")
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid mastodon server %q", server)
	}
	return &Client{
		server: server,
		host:   u.Host,
		token:  token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Host is the server's host name, the domain of local accounts.
func (c *Client) Host() string {
	return c.host
}

// VerifyCredentials returns the account the token belongs to.
func (c *Client) VerifyCredentials(ctx context.Context) (*Account, error) {
	var acct Account
	if _, err := c.get(ctx, "/api/v1/accounts/verify_credentials", nil, true, &acct); err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	return &acct, nil
}

// HomeTimeline returns the page of statuses immediately newer than sinceID,
// newest first. An empty sinceID returns the latest page.
func (c *Client) HomeTimeline(ctx context.Context, sinceID string, limit int) ([]Status, error) {
	if limit <= 0 || limit > maxTimeline {
		limit = maxTimeline
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if sinceID != "" {
		q.Set("min_id", sinceID)
	}

	var statuses []Status
	if _, err := c.get(ctx, "/api/v1/timelines/home", q, true, &statuses); err != nil {
		return nil, fmt.Errorf("home timeline: %w", err)
	}
	return statuses, nil
}

// FetchPostByID loads a status with the account's token so followers-only
// posts resolve. It returns (nil, nil) when the status does not exist.
func (c *Client) FetchPostByID(ctx context.Context, id string, _ domain.Account) (*domain.Post, error) {
	return c.fetchStatus(ctx, id, true)
}

// FetchStatus loads a public status without credentials.
func (c *Client) FetchStatus(ctx context.Context, id string, _ domain.Account) (*domain.Post, error) {
	return c.fetchStatus(ctx, id, false)
}

func (c *Client) fetchStatus(ctx context.Context, id string, auth bool) (*domain.Post, error) {
	var s Status
	_, err := c.get(ctx, "/api/v1/statuses/"+url.PathEscape(id), nil, auth, &s)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch status %s: %w", id, err)
	}
	post, _ := s.ToPosts(c.host)
	return &post, nil
}

// Following pages through every account accountID follows.
func (c *Client) Following(ctx context.Context, accountID string) ([]domain.CanonicalUserID, error) {
	var ids []domain.CanonicalUserID
	q := url.Values{"limit": {strconv.Itoa(followingPage)}}
	path := "/api/v1/accounts/" + url.PathEscape(accountID) + "/following"

	for {
		var page []Account
		header, err := c.get(ctx, path, q, true, &page)
		if err != nil {
			return nil, fmt.Errorf("following: %w", err)
		}
		for _, a := range page {
			ids = append(ids, a.CanonicalID(c.host))
		}

		maxID := nextMaxID(header.Get("Link"))
		if maxID == "" || len(page) == 0 || maxID == q.Get("max_id") {
			return ids, nil
		}
		q.Set("max_id", maxID)
	}
}

// PostStatus publishes a status, optionally as a reply.
func (c *Client) PostStatus(ctx context.Context, text, inReplyToID string) (*Status, error) {
	body := postStatusRequest{
		Status:      text,
		InReplyToID: inReplyToID,
	}
	var s Status
	if err := c.post(ctx, "/api/v1/statuses", body, &s); err != nil {
		return nil, fmt.Errorf("post status: %w", err)
	}
	return &s, nil
}

// APIError is a non-2xx Mastodon response.
type APIError struct {
	Status  int
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error (status %d)", e.Status)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, auth bool, result any) (http.Header, error) {
	u := c.server + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if auth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	_, err = c.do(req, result)
	return err
}

func (c *Client) do(req *http.Request, result any) (http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		return nil, apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return resp.Header, nil
}

var linkNextRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextMaxID extracts max_id from the rel="next" entry of a Link header.
func nextMaxID(link string) string {
	m := linkNextRe.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	u, err := url.Parse(m[1])
	if err != nil {
		return ""
	}
	return u.Query().Get("max_id")
}

type postStatusRequest struct {
	Status      string `json:"status"`
	InReplyToID string `json:"in_reply_to_id,omitempty"`
}
