package mastodon

import (
	"strings"
	"time"

	"github.com/blackmichael/crossfeed/internal/domain"
)

// Account is the subset of a Mastodon account entity we use.
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
}

// FullAcct returns user@domain. Local accounts report a bare username in
// acct; host fills in the domain.
func (a Account) FullAcct(host string) string {
	if strings.Contains(a.Acct, "@") || host == "" {
		return a.Acct
	}
	return a.Acct + "@" + host
}

// CanonicalID identifies the account across handle renames.
func (a Account) CanonicalID(host string) domain.CanonicalUserID {
	return domain.NewCanonicalUserID(domain.PlatformMastodon, a.ID, a.FullAcct(host))
}

func (a Account) author(host string) domain.Author {
	return domain.Author{ID: a.CanonicalID(host), DisplayName: a.DisplayName}
}

// Status is the subset of a Mastodon status entity we use.
type Status struct {
	ID                 string    `json:"id"`
	URI                string    `json:"uri"`
	URL                string    `json:"url,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	Account            Account   `json:"account"`
	Content            string    `json:"content"`
	Language           string    `json:"language,omitempty"`
	InReplyToID        string    `json:"in_reply_to_id,omitempty"`
	InReplyToAccountID string    `json:"in_reply_to_account_id,omitempty"`
	Reblog             *Status   `json:"reblog,omitempty"`
}

// ToPosts maps the status onto the domain. A plain status yields itself and
// no embedded posts. A reblog yields a boost wrapper keyed by the reblog's
// own ID plus the original post, which callers store alongside the wrapper.
func (s Status) ToPosts(host string) (domain.Post, []domain.Post) {
	if s.Reblog == nil {
		return s.post(host), nil
	}

	original := s.Reblog.post(host)
	booster := s.Account.author(host)

	wrapper := original
	wrapper.Key = domain.NativePostKey{Platform: domain.PlatformMastodon, ID: s.ID}
	wrapper.URI = s.URI
	wrapper.BoostedBy = &booster
	wrapper.BoostedAt = s.CreatedAt.UTC()
	wrapper.Original = &original.Key
	return wrapper, []domain.Post{original}
}

func (s Status) post(host string) domain.Post {
	post := domain.Post{
		Key:         domain.NativePostKey{Platform: domain.PlatformMastodon, ID: s.ID},
		URI:         s.URI,
		Author:      s.Account.author(host),
		Content:     s.Content,
		CreatedAt:   s.CreatedAt.UTC(),
		InReplyToID: s.InReplyToID,
	}
	if s.Language != "" {
		post.Langs = []string{s.Language}
	}
	return post
}
