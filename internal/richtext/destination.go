package richtext

import (
	"fmt"
	"strings"

	"github.com/blackmichael/crossfeed/internal/domain"
)

// Destination is one account a composed post will be published to.
type Destination struct {
	Platform  domain.Platform
	AccountID string
}

// ParseDestination parses "<platform>:<accountId>". Unknown platforms and
// empty account IDs fail.
func ParseDestination(s string) (Destination, bool) {
	name, account, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || account == "" {
		return Destination{}, false
	}
	platform, ok := domain.ParsePlatform(name)
	if !ok {
		return Destination{}, false
	}
	return Destination{Platform: platform, AccountID: account}, true
}

// ParseDestinations parses ids, dropping duplicates and anything
// ParseDestination rejects.
func ParseDestinations(ids []string) []Destination {
	seen := make(map[Destination]struct{}, len(ids))
	dests := make([]Destination, 0, len(ids))
	for _, id := range ids {
		d, ok := ParseDestination(id)
		if !ok {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		dests = append(dests, d)
	}
	return dests
}

func (d Destination) String() string {
	return string(d.Platform) + ":" + d.AccountID
}

func (d Destination) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Destination) UnmarshalText(b []byte) error {
	parsed, ok := ParseDestination(string(b))
	if !ok {
		return fmt.Errorf("invalid destination %q", string(b))
	}
	*d = parsed
	return nil
}
