package richtext

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// HandleResolver turns a Bluesky handle into a DID.
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (string, error)
}

// ResolveMentionDIDs fills in the DID of every Bluesky mention payload that
// lacks one. Lookups run without holding the lock; results are only applied
// if the document is still at the revision seen when the lookups started,
// otherwise ErrStaleRevision is returned and nothing changes. Handles that
// fail to resolve are reported in the returned error and left without a DID.
// Filling in DIDs does not bump the revision.
func (c *Composer) ResolveMentionDIDs(ctx context.Context, resolver HandleResolver) (int, error) {
	c.mu.RLock()
	revision := c.revision
	pending := make(map[string]struct{})
	for _, e := range c.entities {
		if e.Kind != KindMention {
			continue
		}
		for _, p := range e.Payloads {
			if bp, ok := p.(BlueskyPayload); ok && bp.DID == "" && bp.Handle != "" {
				pending[bp.Handle] = struct{}{}
			}
		}
	}
	c.mu.RUnlock()

	if len(pending) == 0 {
		return 0, nil
	}

	handles := make([]string, 0, len(pending))
	for h := range pending {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	resolved := make(map[string]string, len(handles))
	var errs []error
	for _, h := range handles {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		did, err := resolver.ResolveHandle(ctx, h)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", h, err))
			continue
		}
		resolved[h] = did
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.revision != revision {
		return 0, ErrStaleRevision
	}

	updated := 0
	for i := range c.entities {
		for dest, p := range c.entities[i].Payloads {
			bp, ok := p.(BlueskyPayload)
			if !ok || bp.DID != "" {
				continue
			}
			if did, ok := resolved[bp.Handle]; ok && did != "" {
				bp.DID = did
				c.entities[i].Payloads[dest] = bp
				updated++
			}
		}
	}
	return updated, errors.Join(errs...)
}
