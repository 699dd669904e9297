package richtext

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// A mention or hashtag must start the text or follow whitespace or an
// opening bracket or quote, so "bob@example.com" and URL fragments don't
// match.
var (
	mentionPattern = regexp.MustCompile(`(?:^|[\s(\[{"'])(@([A-Za-z0-9_]+(?:[.\-][A-Za-z0-9_]+)*)(?:@([A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)+))?)`)
	hashtagPattern = regexp.MustCompile(`(?:^|[\s(\[{"'])(#([\p{L}\p{M}\p{N}_]*[\p{L}\p{M}][\p{L}\p{M}\p{N}_]*))`)
	linkPattern    = regexp.MustCompile(`https?://[^\s<>"]+`)
)

// match is a candidate entity found by a scan, in byte offsets.
type match struct {
	start, end int
	data       EntityData
}

// ParseEntitiesFromText scans the text for mentions, hashtags and links and
// adds an entity for each one that does not overlap an existing entity.
// Each new entity gets one payload per destination in activeDestinations
// ("<platform>:<accountId>"); unknown platforms are skipped. Returns the
// number of entities added. The revision is bumped once if any were added.
func (c *Composer) ParseEntitiesFromText(activeDestinations []string) int {
	dests := ParseDestinations(activeDestinations)

	c.mu.Lock()
	defer c.mu.Unlock()

	text := decodeUTF16(c.buf)
	covered := make([]Range, 0, len(c.entities))
	for _, e := range c.entities {
		covered = append(covered, e.Range)
	}

	var found []TextEntity
	for _, scan := range []func(string) []match{scanMentions, scanHashtags, scanLinks} {
		for _, m := range scan(text) {
			r, ok := ToUTF16Range(text, ByteRange{Start: m.start, End: m.end})
			if !ok || overlapsAny(r, covered) {
				continue
			}
			covered = append(covered, r)
			found = append(found, TextEntity{
				ID:          uuid.NewString(),
				Kind:        m.data.Kind(),
				Range:       r,
				DisplayText: text[m.start:m.end],
				Payloads:    payloadsFor(dests, m.data),
				Data:        m.data,
			})
		}
	}

	if len(found) == 0 {
		return 0
	}
	c.entities = append(c.entities, found...)
	sortEntities(c.entities)
	c.revision++
	return len(found)
}

func scanMentions(text string) []match {
	var out []match
	for _, idx := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		data := MentionData{Handle: text[idx[4]:idx[5]]}
		if idx[6] >= 0 {
			data.Domain = text[idx[6]:idx[7]]
		}
		out = append(out, match{start: idx[2], end: idx[3], data: data})
	}
	return out
}

func scanHashtags(text string) []match {
	var out []match
	for _, idx := range hashtagPattern.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, match{
			start: idx[2],
			end:   idx[3],
			data:  HashtagData{Tag: text[idx[4]:idx[5]]},
		})
	}
	return out
}

func scanLinks(text string) []match {
	var out []match
	for _, idx := range linkPattern.FindAllStringIndex(text, -1) {
		url := trimLinkPunctuation(text[idx[0]:idx[1]])
		if sep := strings.Index(url, "://"); sep < 0 || len(url) <= sep+len("://") {
			continue
		}
		out = append(out, match{
			start: idx[0],
			end:   idx[0] + len(url),
			data:  LinkData{URL: url},
		})
	}
	return out
}

// trimLinkPunctuation strips sentence punctuation off the end of a URL. A
// closing bracket is only stripped when it has no opening partner inside
// the URL, so Wikipedia-style links survive.
func trimLinkPunctuation(url string) string {
	for len(url) > 0 {
		last := url[len(url)-1]
		switch last {
		case '.', ',', ';', ':', '!', '?', '\'', '"':
			url = url[:len(url)-1]
			continue
		case ')':
			if strings.Count(url, "(") < strings.Count(url, ")") {
				url = url[:len(url)-1]
				continue
			}
		case ']':
			if strings.Count(url, "[") < strings.Count(url, "]") {
				url = url[:len(url)-1]
				continue
			}
		}
		return url
	}
	return url
}

func overlapsAny(r Range, ranges []Range) bool {
	for _, o := range ranges {
		if r.Intersects(o) {
			return true
		}
	}
	return false
}
