package index

import (
	"sync"
	"time"

	"github.com/blackmichael/crossfeed/internal/domain"
)

// Arena is the in-memory home of every post the service has seen. Native
// posts live in one flat map keyed by native key; relations between them are
// keys, never pointers. Canonical posts are indexed by canonical ID and by
// each of their native keys.
type Arena struct {
	mu        sync.RWMutex
	posts     map[domain.NativePostKey]domain.Post // native key -> post
	canonical map[string]*domain.CanonicalPost     // canonical ID -> post
	byNative  map[domain.NativePostKey]string      // native key -> canonical ID
	lastEvict time.Time                            // timestamp of last eviction
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		posts:     make(map[domain.NativePostKey]domain.Post),
		canonical: make(map[string]*domain.CanonicalPost),
		byNative:  make(map[domain.NativePostKey]string),
	}
}

// Post retrieves a native post by key.
func (a *Arena) Post(key domain.NativePostKey) (*domain.Post, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.posts[key]
	if !ok {
		return nil, false
	}
	return &p, true
}

// PutPost adds or replaces a native post.
func (a *Arena) PutPost(post domain.Post) {
	if post.Key.IsZero() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.posts[post.Key] = post
}

// DeletePost removes a native post.
func (a *Arena) DeletePost(key domain.NativePostKey) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.posts, key)
}

// Canonical finds the canonical post reachable through key.
func (a *Arena) Canonical(key domain.NativePostKey) (*domain.CanonicalPost, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, ok := a.byNative[key]
	if !ok {
		return nil, false
	}
	cp, ok := a.canonical[id]
	if !ok {
		return nil, false
	}
	return cp.Clone(), true
}

// CanonicalByID retrieves a canonical post by ID.
func (a *Arena) CanonicalByID(id string) (*domain.CanonicalPost, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cp, ok := a.canonical[id]
	if !ok {
		return nil, false
	}
	return cp.Clone(), true
}

// PutCanonical stores a copy of post and indexes its native keys.
func (a *Arena) PutCanonical(post *domain.CanonicalPost) {
	stored := post.Clone()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.canonical[stored.ID] = stored
	for key := range stored.NativeKeys {
		a.byNative[key] = stored.ID
	}
}

// DeleteCanonical removes a canonical post and its native key index.
func (a *Arena) DeleteCanonical(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deleteCanonicalLocked(id)
}

// EvictOlderThan drops canonical posts with no activity since cutoff, along
// with native posts created before cutoff that no canonical post still uses.
func (a *Arena) EvictOlderThan(cutoff time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	evicted := 0
	for id, cp := range a.canonical {
		if latestActivity(cp).Before(cutoff) {
			a.deleteCanonicalLocked(id)
			evicted++
		}
	}

	for key, p := range a.posts {
		if _, used := a.byNative[key]; used {
			continue
		}
		seen := p.CreatedAt
		if p.BoostedAt.After(seen) {
			seen = p.BoostedAt
		}
		if seen.Before(cutoff) {
			delete(a.posts, key)
		}
	}

	a.lastEvict = time.Now()
	return evicted
}

// Count returns the number of native and canonical posts held.
func (a *Arena) Count() (native int, canonical int) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.posts), len(a.canonical)
}

// LastEviction returns when EvictOlderThan last ran.
func (a *Arena) LastEviction() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.lastEvict
}

func (a *Arena) deleteCanonicalLocked(id string) {
	cp, ok := a.canonical[id]
	if !ok {
		return
	}
	for key := range cp.NativeKeys {
		if a.byNative[key] == id {
			delete(a.byNative, key)
		}
		delete(a.posts, key)
	}
	delete(a.canonical, id)
}

func latestActivity(cp *domain.CanonicalPost) time.Time {
	latest := cp.CreatedAt
	if cp.LastSocialActivityAt.After(latest) {
		latest = cp.LastSocialActivityAt
	}
	return latest
}
