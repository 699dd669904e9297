package bluesky

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/crossfeed/internal/domain"
	"github.com/blackmichael/crossfeed/internal/richtext"
)

// newTestServer routes XRPC methods to handlers and checks the bearer token
// on everything except createSession.
func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "app-password" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"accessJwt":"jwt","did":"did:plc:me","handle":"me.bsky.social"}`))
	})
	for path, h := range routes {
		h := h
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer jwt" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func loggedIn(t *testing.T, c *Client) *Client {
	t.Helper()
	require.NoError(t, c.Login(context.Background(), "me.bsky.social", "app-password"))
	return c
}

func TestLogin(t *testing.T) {
	c := newTestServer(t, nil)

	err := c.Login(context.Background(), "me.bsky.social", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "AuthenticationRequired", apiErr.Code)

	require.NoError(t, c.Login(context.Background(), "me.bsky.social", "app-password"))
	assert.Equal(t, "did:plc:me", c.DID())
	assert.Equal(t, "me.bsky.social", c.Handle())
}

func TestRequiresSession(t *testing.T) {
	c := NewClient("")
	assert.Equal(t, defaultPDS, c.pds)

	ctx := context.Background()
	assert.ErrorIs(t, c.PublishFeedGenerator(ctx, "x", FeedGeneratorRecord{}), ErrNotAuthenticated)
	assert.ErrorIs(t, c.UnpublishFeedGenerator(ctx, "x"), ErrNotAuthenticated)
	_, err := c.UploadBlob(ctx, []byte("x"), "image/png")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = c.CreatePost(ctx, "hi", nil, nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestPublishFeedGenerator(t *testing.T) {
	var got putRecordRequest
	c := loggedIn(t, newTestServer(t, map[string]http.HandlerFunc{
		"/xrpc/com.atproto.repo.putRecord": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"uri":"at://did:plc:me/app.bsky.feed.generator/crossfeed","cid":"bafy"}`))
		},
	}))

	err := c.PublishFeedGenerator(context.Background(), "crossfeed", FeedGeneratorRecord{
		DID:         "did:web:feeds.example.com",
		DisplayName: "Crossfeed",
		CreatedAt:   "2024-05-01T12:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "did:plc:me", got.Repo)
	assert.Equal(t, "app.bsky.feed.generator", got.Collection)
	assert.Equal(t, "crossfeed", got.RKey)
}

func TestUploadBlob(t *testing.T) {
	c := loggedIn(t, newTestServer(t, map[string]http.HandlerFunc{
		"/xrpc/com.atproto.repo.uploadBlob": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
			data, _ := io.ReadAll(r.Body)
			assert.Equal(t, "png-bytes", string(data))
			_, _ = w.Write([]byte(`{"blob":{"$type":"blob","ref":{"$link":"bafkrei"},"mimeType":"image/png","size":9}}`))
		},
	}))

	ref, err := c.UploadBlob(context.Background(), []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "bafkrei", ref.Ref.Link)
	assert.Equal(t, 9, ref.Size)
}

func TestResolveHandle(t *testing.T) {
	c := loggedIn(t, newTestServer(t, map[string]http.HandlerFunc{
		"/xrpc/com.atproto.identity.resolveHandle": func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("handle") {
			case "alice.bsky.social":
				_, _ = w.Write([]byte(`{"did":"did:plc:alice"}`))
			default:
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"InvalidRequest","message":"Unable to resolve handle"}`))
			}
		},
	}))

	did, err := c.ResolveHandle(context.Background(), "alice.bsky.social")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", did)

	_, err = c.ResolveHandle(context.Background(), "nobody.example")
	assert.ErrorContains(t, err, "Unable to resolve handle")
}

func TestFetchPostByID(t *testing.T) {
	const uri = "at://did:plc:bob/app.bsky.feed.post/3k"
	c := loggedIn(t, newTestServer(t, map[string]http.HandlerFunc{
		"/xrpc/app.bsky.feed.getPosts": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("uris") != uri {
				_, _ = w.Write([]byte(`{"posts":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"posts":[{
				"uri":"` + uri + `","cid":"bafy",
				"author":{"did":"did:plc:bob","handle":"Bob.bsky.social","displayName":"Bob"},
				"record":{"$type":"app.bsky.feed.post","text":"hi","createdAt":"2024-05-01T12:00:00Z",
					"reply":{"root":{"uri":"at://r","cid":"c"},"parent":{"uri":"at://p","cid":"c"}}},
				"indexedAt":"2024-05-01T12:00:01Z"}]}`))
		},
	}))

	post, err := c.FetchPostByID(context.Background(), uri, domain.Account{})
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, domain.NativePostKey{Platform: domain.PlatformBluesky, ID: uri}, post.Key)
	assert.Equal(t, domain.NewCanonicalUserID(domain.PlatformBluesky, "did:plc:bob", "bob.bsky.social"), post.Author.ID)
	assert.Equal(t, "Bob", post.Author.DisplayName)
	assert.Equal(t, "at://p", post.InReplyToID)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), post.CreatedAt)

	missing, err := c.FetchPostByID(context.Background(), "at://did:plc:bob/app.bsky.feed.post/gone", domain.Account{})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetPostsLimit(t *testing.T) {
	c := NewClient("http://unused")
	_, err := c.GetPosts(context.Background(), make([]string, maxGetPosts+1))
	assert.Error(t, err)
}

func TestGetFollowsPaginates(t *testing.T) {
	var calls int
	c := loggedIn(t, newTestServer(t, map[string]http.HandlerFunc{
		"/xrpc/app.bsky.graph.getFollows": func(w http.ResponseWriter, r *http.Request) {
			calls++
			assert.Equal(t, "did:plc:me", r.URL.Query().Get("actor"))
			switch r.URL.Query().Get("cursor") {
			case "":
				_, _ = w.Write([]byte(`{"follows":[{"did":"did:plc:a","handle":"a.test"}],"cursor":"page2"}`))
			case "page2":
				_, _ = w.Write([]byte(`{"follows":[{"did":"did:plc:b","handle":"b.test"}]}`))
			}
		},
	}))

	ids, err := c.GetFollows(context.Background(), c.DID())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, ids, 2)
	assert.Equal(t, "did:plc:a", ids[0].StableID)
	assert.Equal(t, "b.test", ids[1].NormalizedHandle)
}

func TestCreatePost(t *testing.T) {
	var got struct {
		Repo       string     `json:"repo"`
		Collection string     `json:"collection"`
		Record     PostRecord `json:"record"`
	}
	c := loggedIn(t, newTestServer(t, map[string]http.HandlerFunc{
		"/xrpc/com.atproto.repo.createRecord": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"uri":"at://did:plc:me/app.bsky.feed.post/new","cid":"bafynew"}`))
		},
	}))

	composer := richtext.NewComposerWithText("hi #golang")
	composer.ParseEntitiesFromText([]string{"bluesky:did:plc:me"})
	facets := composer.BlueskyFacets()
	require.Len(t, facets, 1)

	ref, err := c.CreatePost(context.Background(), composer.Text(), facets, &ReplyRef{
		Root:   StrongRef{URI: "at://root", CID: "r"},
		Parent: StrongRef{URI: "at://parent", CID: "p"},
	})
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:me/app.bsky.feed.post/new", ref.URI)

	assert.Equal(t, "did:plc:me", got.Repo)
	assert.Equal(t, collectionPost, got.Collection)
	assert.Equal(t, "hi #golang", got.Record.Text)
	require.Len(t, got.Record.Facets, 1)
	assert.Equal(t, 3, got.Record.Facets[0].Index.ByteStart)
	require.NotNil(t, got.Record.Reply)
	assert.Equal(t, "at://parent", got.Record.Reply.Parent.URI)
}
