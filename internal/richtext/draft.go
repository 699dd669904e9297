package richtext

import "github.com/google/uuid"

// Draft is the plain-data form of a composer, suitable for storage. It keeps
// the text and what each entity marks, but not the per-destination payloads;
// those are rebuilt for whatever destinations are active when the draft is
// restored.
type Draft struct {
	Text     string        `json:"text"`
	Entities []DraftEntity `json:"entities"`
}

// DraftEntity is a stored entity. Only the fields of its kind are set.
type DraftEntity struct {
	ID          string     `json:"id"`
	Kind        EntityKind `json:"kind"`
	Range       Range      `json:"range"`
	DisplayText string     `json:"displayText"`

	Handle    string `json:"handle,omitempty"`
	Domain    string `json:"domain,omitempty"`
	Tag       string `json:"tag,omitempty"`
	URL       string `json:"url,omitempty"`
	Shortcode string `json:"shortcode,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// Draft returns the composer as plain data.
func (c *Composer) Draft() Draft {
	snap := c.Snapshot()
	d := Draft{
		Text:     snap.Text,
		Entities: make([]DraftEntity, 0, len(snap.Entities)),
	}
	for _, e := range snap.Entities {
		de := DraftEntity{
			ID:          e.ID,
			Kind:        e.Kind,
			Range:       e.Range,
			DisplayText: e.DisplayText,
		}
		switch data := e.Data.(type) {
		case MentionData:
			de.Handle, de.Domain = data.Handle, data.Domain
		case HashtagData:
			de.Tag = data.Tag
		case LinkData:
			de.URL = data.URL
		case EmojiData:
			de.Shortcode, de.ImageURL = data.Shortcode, data.ImageURL
		}
		d.Entities = append(d.Entities, de)
	}
	return d
}

// RestoreDraft rebuilds a composer from d, computing payloads for
// activeDestinations. Stored entities that fall outside the text, overlap an
// earlier entity, or have an unknown kind are dropped. The composer starts at
// revision 0.
func RestoreDraft(d Draft, activeDestinations []string) *Composer {
	c := NewComposerWithText(d.Text)
	dests := ParseDestinations(activeDestinations)

	var kept []Range
	for _, de := range d.Entities {
		if !c.inBoundsLocked(de.Range) || de.Range.Length == 0 || overlapsAny(de.Range, kept) {
			continue
		}
		data := draftData(de)
		if data == nil {
			continue
		}
		id := de.ID
		if id == "" {
			id = uuid.NewString()
		}
		kept = append(kept, de.Range)
		c.entities = append(c.entities, TextEntity{
			ID:          id,
			Kind:        data.Kind(),
			Range:       de.Range,
			DisplayText: de.DisplayText,
			Payloads:    payloadsFor(dests, data),
			Data:        data,
		})
	}
	sortEntities(c.entities)
	return c
}

func draftData(de DraftEntity) EntityData {
	switch de.Kind {
	case KindMention:
		return MentionData{Handle: de.Handle, Domain: de.Domain}
	case KindHashtag:
		return HashtagData{Tag: de.Tag}
	case KindLink:
		return LinkData{URL: de.URL}
	case KindEmoji:
		return EmojiData{Shortcode: de.Shortcode, ImageURL: de.ImageURL}
	default:
		return nil
	}
}
