package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/blackmichael/crossfeed/internal/bluesky"
	"github.com/blackmichael/crossfeed/internal/mastodon"
	"github.com/blackmichael/crossfeed/internal/richtext"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	var (
		handle      string
		password    string
		pds         string
		serviceDID  string
		feedRKey    string
		displayName string
		description string
		avatar      string
		unpublish   bool

		text          string
		mastoServer   string
		mastoToken    string
		toBluesky     bool
		toMastodon    bool
		dryRun        bool
		replyMastodon string
	)

	flag.StringVar(&handle, "handle", envOrDefault("BLUESKY_HANDLE", ""), "BlueSky handle (e.g. user.bsky.social)")
	flag.StringVar(&password, "password", envOrDefault("BLUESKY_APP_PASSWORD", ""), "BlueSky app password")
	flag.StringVar(&pds, "pds", envOrDefault("BLUESKY_PDS_URL", "https://bsky.social"), "PDS service URL")
	flag.StringVar(&serviceDID, "service-did", envOrDefault("FEEDGEN_SERVICE_DID", ""), "Feed generator service DID (e.g. did:web:feed.example.com)")
	flag.StringVar(&feedRKey, "rkey", "", "Record key / short name for the feed (e.g. my-cool-feed)")
	flag.StringVar(&displayName, "name", "", "Feed display name (max 24 graphemes)")
	flag.StringVar(&description, "description", "", "Feed description (max 300 graphemes)")
	flag.StringVar(&avatar, "avatar", "", "Path to a PNG or JPEG avatar for the feed")
	flag.BoolVar(&unpublish, "unpublish", false, "Delete the feed generator record instead of publishing")

	flag.StringVar(&text, "text", "", "Compose and cross-post this text instead of managing a feed record")
	flag.StringVar(&mastoServer, "mastodon-server", envOrDefault("MASTODON_SERVER", ""), "Mastodon server URL")
	flag.StringVar(&mastoToken, "mastodon-token", envOrDefault("MASTODON_ACCESS_TOKEN", ""), "Mastodon access token")
	flag.BoolVar(&toBluesky, "bluesky", true, "Post to Bluesky when composing")
	flag.BoolVar(&toMastodon, "mastodon", false, "Post to Mastodon when composing")
	flag.StringVar(&replyMastodon, "mastodon-reply-to", "", "Mastodon status ID to reply to")
	flag.BoolVar(&dryRun, "dry-run", false, "Print the composed entities and facets without posting")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if text != "" {
		return compose(ctx, composeOptions{
			text:          text,
			handle:        handle,
			password:      password,
			pds:           pds,
			mastoServer:   mastoServer,
			mastoToken:    mastoToken,
			toBluesky:     toBluesky,
			toMastodon:    toMastodon,
			replyMastodon: replyMastodon,
			dryRun:        dryRun,
		})
	}

	if handle == "" || password == "" {
		return fmt.Errorf("--handle and --password are required (or set BLUESKY_HANDLE and BLUESKY_APP_PASSWORD)")
	}
	if feedRKey == "" {
		return fmt.Errorf("--rkey is required")
	}

	client := bluesky.NewClient(pds)

	fmt.Printf("Logging in as %s...\n", handle)
	if err := client.Login(ctx, handle, password); err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s\n", client.DID())

	if unpublish {
		fmt.Printf("Unpublishing feed %q...\n", feedRKey)
		if err := client.UnpublishFeedGenerator(ctx, feedRKey); err != nil {
			return err
		}
		fmt.Printf("Feed unpublished: at://%s/app.bsky.feed.generator/%s\n", client.DID(), feedRKey)
		return nil
	}

	if serviceDID == "" {
		return fmt.Errorf("--service-did is required for publishing (or set FEEDGEN_SERVICE_DID)")
	}
	if displayName == "" {
		return fmt.Errorf("--name is required for publishing")
	}

	record := bluesky.FeedGeneratorRecord{
		DID:         serviceDID,
		DisplayName: displayName,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	if avatar != "" {
		blob, err := uploadAvatar(ctx, client, avatar)
		if err != nil {
			return err
		}
		record.Avatar = blob
	}

	fmt.Printf("Publishing feed %q...\n", feedRKey)
	if err := client.PublishFeedGenerator(ctx, feedRKey, record); err != nil {
		return err
	}

	feedURI := fmt.Sprintf("at://%s/app.bsky.feed.generator/%s", client.DID(), feedRKey)
	fmt.Printf("Feed published: %s\n", feedURI)

	return nil
}

func uploadAvatar(ctx context.Context, client *bluesky.Client, path string) (*bluesky.BlobRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType != "image/png" && mimeType != "image/jpeg" {
		return nil, fmt.Errorf("avatar must be a PNG or JPEG, got %q", filepath.Ext(path))
	}
	fmt.Printf("Uploading avatar %s (%d bytes)...\n", path, len(data))
	return client.UploadBlob(ctx, data, mimeType)
}

type composeOptions struct {
	text          string
	handle        string
	password      string
	pds           string
	mastoServer   string
	mastoToken    string
	toBluesky     bool
	toMastodon    bool
	replyMastodon string
	dryRun        bool
}

type composeOutput struct {
	Text             string                    `json:"text"`
	MastodonEntities []richtext.MastodonEntity `json:"mastodonEntities,omitempty"`
	BlueskyFacets    []richtext.BlueskyFacet   `json:"blueskyFacets,omitempty"`
}

// compose parses the text for each destination, resolves mention DIDs and
// publishes to the selected networks.
func compose(ctx context.Context, opts composeOptions) error {
	if !opts.toBluesky && !opts.toMastodon {
		return errors.New("nothing to do: enable --bluesky or --mastodon")
	}

	var (
		dests []string
		bsky  *bluesky.Client
		masto *mastodon.Client
	)

	if opts.toBluesky {
		if opts.handle == "" || opts.password == "" {
			return fmt.Errorf("--handle and --password are required to post to Bluesky")
		}
		bsky = bluesky.NewClient(opts.pds)
		if err := bsky.Login(ctx, opts.handle, opts.password); err != nil {
			return err
		}
		dests = append(dests, "bluesky:"+bsky.DID())
	}

	if opts.toMastodon {
		if opts.mastoServer == "" || opts.mastoToken == "" {
			return fmt.Errorf("--mastodon-server and --mastodon-token are required to post to Mastodon")
		}
		var err error
		masto, err = mastodon.NewClient(opts.mastoServer, opts.mastoToken)
		if err != nil {
			return err
		}
		me, err := masto.VerifyCredentials(ctx)
		if err != nil {
			return fmt.Errorf("verify mastodon credentials: %w", err)
		}
		dests = append(dests, "mastodon:"+me.ID)
	}

	c := richtext.NewComposerWithText(opts.text)
	c.ParseEntitiesFromText(dests)

	if bsky != nil {
		if _, err := c.ResolveMentionDIDs(ctx, bsky); err != nil {
			// unresolved mentions are posted as plain text
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	out := composeOutput{Text: c.Text()}
	if masto != nil {
		out.MastodonEntities = c.MastodonEntities()
	}
	if bsky != nil {
		out.BlueskyFacets = c.BlueskyFacets()
	}

	if opts.dryRun {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	var errs []error
	if bsky != nil {
		ref, err := bsky.CreatePost(ctx, out.Text, out.BlueskyFacets, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("bluesky: %w", err))
		} else {
			fmt.Printf("Posted to Bluesky: %s\n", ref.URI)
		}
	}
	if masto != nil {
		status, err := masto.PostStatus(ctx, out.Text, opts.replyMastodon)
		if err != nil {
			errs = append(errs, fmt.Errorf("mastodon: %w", err))
		} else {
			fmt.Printf("Posted to Mastodon: %s\n", status.URL)
		}
	}
	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
