package richtext

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRange is returned for edits outside the buffer or with a
	// boundary inside a surrogate pair. The composer is left untouched.
	ErrInvalidRange = errors.New("range out of bounds")

	// ErrStaleRevision is returned when an async result arrives after the
	// document changed.
	ErrStaleRevision = errors.New("document revision changed")
)

// Composer holds the text of a post being written and the entities marking
// spans of it. Every mutation updates text and entities together under one
// lock and bumps the revision once. Callers still have to funnel edits
// through a single writer so they apply in order.
type Composer struct {
	mu       sync.RWMutex
	buf      []uint16
	entities []TextEntity
	revision uint64
}

// Snapshot is a consistent copy of the composer state.
type Snapshot struct {
	Text     string       `json:"text"`
	Entities []TextEntity `json:"entities"`
	Revision uint64       `json:"revision"`
}

// NewComposer returns an empty composer at revision 0.
func NewComposer() *Composer {
	return &Composer{}
}

// NewComposerWithText returns a composer holding text, with no entities, at
// revision 0.
func NewComposerWithText(text string) *Composer {
	return &Composer{buf: encodeUTF16(text)}
}

// Text returns the current text.
func (c *Composer) Text() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return decodeUTF16(c.buf)
}

// Len returns the text length in UTF-16 code units.
func (c *Composer) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buf)
}

// Entities returns a copy of the entities, ordered by range.
func (c *Composer) Entities() []TextEntity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entitiesLocked()
}

// Revision returns the document revision.
func (c *Composer) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

// Snapshot returns text, entities and revision read together.
func (c *Composer) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Text:     decodeUTF16(c.buf),
		Entities: c.entitiesLocked(),
		Revision: c.revision,
	}
}

// ApplyEdit replaces r with replacement and returns the change in length.
// Entities touched by the edit are dropped, entities after it shift by the
// returned delta, and entities before it are untouched. Text inserted right
// at the end of an entity is not absorbed into it.
func (c *Composer) ApplyEdit(r Range, replacement string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.validLocked(r) {
		return 0, ErrInvalidRange
	}
	delta := c.editLocked(r, encodeUTF16(replacement))
	c.revision++
	return delta, nil
}

// Replace applies an accepted autocomplete suggestion. Existing entities
// follow the ApplyEdit rules. The first of newEntities is anchored over the
// inserted text whatever range it came with; any others would overlap it and
// are ignored. An empty replacement anchors nothing.
func (c *Composer) Replace(r Range, replacement string, newEntities ...TextEntity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.validLocked(r) {
		return ErrInvalidRange
	}
	units := encodeUTF16(replacement)
	c.editLocked(r, units)

	if len(newEntities) > 0 && len(units) > 0 {
		e := newEntities[0].Clone()
		e.Range = Range{Location: r.Location, Length: len(units)}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.DisplayText == "" {
			e.DisplayText = replacement
		}
		if e.Kind == "" && e.Data != nil {
			e.Kind = e.Data.Kind()
		}
		c.entities = append(c.entities, e)
		sortEntities(c.entities)
	}

	c.revision++
	return nil
}

// validLocked reports whether r can be edited: in bounds, and neither end
// falls between the halves of a surrogate pair.
func (c *Composer) validLocked(r Range) bool {
	return c.inBoundsLocked(r) && !splitsPair(c.buf, r.Location) && !splitsPair(c.buf, r.End())
}

func (c *Composer) inBoundsLocked(r Range) bool {
	return r.Location >= 0 && r.Length >= 0 && r.End() <= len(c.buf)
}

type entityAction int

const (
	keepEntity entityAction = iota
	shiftEntity
	dropEntity
)

func classify(entity, edit Range) entityAction {
	if edit.Length > 0 {
		if edit.Intersects(entity) || edit.Location == entity.Location {
			return dropEntity
		}
	} else if entity.Location < edit.Location && edit.Location < entity.End() {
		return dropEntity
	}
	if edit.End() <= entity.Location {
		return shiftEntity
	}
	return keepEntity
}

func (c *Composer) editLocked(r Range, replacement []uint16) int {
	delta := len(replacement) - r.Length

	buf := make([]uint16, 0, len(c.buf)+delta)
	buf = append(buf, c.buf[:r.Location]...)
	buf = append(buf, replacement...)
	buf = append(buf, c.buf[r.End():]...)
	c.buf = buf

	kept := make([]TextEntity, 0, len(c.entities))
	for _, e := range c.entities {
		switch classify(e.Range, r) {
		case dropEntity:
			continue
		case shiftEntity:
			e.Range.Location += delta
		}
		kept = append(kept, e)
	}
	c.entities = kept
	return delta
}

func (c *Composer) entitiesLocked() []TextEntity {
	out := make([]TextEntity, len(c.entities))
	for i, e := range c.entities {
		out[i] = e.Clone()
	}
	return out
}
