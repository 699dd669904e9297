package index

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/blackmichael/crossfeed/internal/domain"
)

var created = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testPost(id string) domain.Post {
	return domain.Post{
		Key:       domain.NativePostKey{Platform: domain.PlatformMastodon, ID: id},
		Content:   "post " + id,
		CreatedAt: created,
	}
}

func TestNewArena(t *testing.T) {
	arena := NewArena()
	if arena == nil {
		t.Fatal("NewArena() returned nil")
	}
	native, canonical := arena.Count()
	if native != 0 || canonical != 0 {
		t.Errorf("NewArena() should start empty, got %d native and %d canonical", native, canonical)
	}
}

func TestPutPost(t *testing.T) {
	arena := NewArena()
	arena.PutPost(testPost("1"))

	got, ok := arena.Post(domain.NativePostKey{Platform: domain.PlatformMastodon, ID: "1"})
	if !ok {
		t.Fatal("Post() did not find stored post")
	}
	if got.Content != "post 1" {
		t.Errorf("Post() content = %q, want %q", got.Content, "post 1")
	}

	got.Content = "changed"
	again, _ := arena.Post(got.Key)
	if again.Content != "post 1" {
		t.Errorf("Post() should return a copy, stored content became %q", again.Content)
	}
}

func TestPutPostIgnoresZeroKey(t *testing.T) {
	arena := NewArena()
	arena.PutPost(domain.Post{Content: "orphan"})

	if native, _ := arena.Count(); native != 0 {
		t.Errorf("PutPost() stored a post without a key")
	}
}

func TestPutCanonicalIndexesNativeKeys(t *testing.T) {
	arena := NewArena()
	cp := domain.NewCanonicalPost(testPost("1"))
	boostKey := domain.NativePostKey{Platform: domain.PlatformMastodon, ID: "2"}
	cp.AddNativeKey(boostKey)

	arena.PutCanonical(cp)

	for _, key := range cp.Keys() {
		got, ok := arena.Canonical(key)
		if !ok {
			t.Fatalf("Canonical(%s) not found", key)
		}
		if got.ID != cp.ID {
			t.Errorf("Canonical(%s) = %s, want %s", key, got.ID, cp.ID)
		}
	}

	if _, ok := arena.CanonicalByID(cp.ID); !ok {
		t.Errorf("CanonicalByID() did not find %s", cp.ID)
	}
}

func TestCanonicalReturnsCopies(t *testing.T) {
	arena := NewArena()
	cp := domain.NewCanonicalPost(testPost("1"))
	arena.PutCanonical(cp)

	cp.AddNativeKey(domain.NativePostKey{Platform: domain.PlatformMastodon, ID: "2"})
	got, _ := arena.CanonicalByID(cp.ID)
	if len(got.NativeKeys) != 1 {
		t.Errorf("PutCanonical() should store a copy, got %d keys", len(got.NativeKeys))
	}

	got.SocialContext.LatestRepostAt = created.Add(time.Hour)
	again, _ := arena.CanonicalByID(cp.ID)
	if !again.SocialContext.LatestRepostAt.IsZero() {
		t.Errorf("CanonicalByID() should return a copy")
	}
}

func TestDeleteCanonical(t *testing.T) {
	arena := NewArena()
	post := testPost("1")
	arena.PutPost(post)
	cp := domain.NewCanonicalPost(post)
	arena.PutCanonical(cp)

	arena.DeleteCanonical(cp.ID)

	if _, ok := arena.Canonical(post.Key); ok {
		t.Error("Canonical() still finds deleted post")
	}
	if _, ok := arena.Post(post.Key); ok {
		t.Error("Post() still finds native post of deleted canonical post")
	}
	arena.DeleteCanonical("missing")
}

func TestEvictOlderThan(t *testing.T) {
	arena := NewArena()

	old := domain.NewCanonicalPost(testPost("old"))
	arena.PutPost(old.Post)
	arena.PutCanonical(old)

	active := domain.NewCanonicalPost(testPost("active"))
	active.LastSocialActivityAt = created.Add(3 * time.Hour)
	arena.PutPost(active.Post)
	arena.PutCanonical(active)

	loose := testPost("loose")
	arena.PutPost(loose)

	boosted := testPost("boosted")
	boosted.BoostedAt = created.Add(3 * time.Hour)
	arena.PutPost(boosted)

	evicted := arena.EvictOlderThan(created.Add(2 * time.Hour))

	if evicted != 1 {
		t.Errorf("EvictOlderThan() = %d, want 1", evicted)
	}
	if _, ok := arena.CanonicalByID(old.ID); ok {
		t.Error("old canonical post should be evicted")
	}
	if _, ok := arena.CanonicalByID(active.ID); !ok {
		t.Error("recently active canonical post should be kept")
	}
	if _, ok := arena.Post(loose.Key); ok {
		t.Error("old unreferenced native post should be evicted")
	}
	if _, ok := arena.Post(boosted.Key); !ok {
		t.Error("recently boosted native post should be kept")
	}
	if arena.LastEviction().IsZero() {
		t.Error("LastEviction() should be set")
	}
}

func TestConcurrentAccess(t *testing.T) {
	arena := NewArena()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			post := testPost(strconv.Itoa(n))
			arena.PutPost(post)
			arena.PutCanonical(domain.NewCanonicalPost(post))
			arena.Canonical(post.Key)
			arena.Count()
		}(i)
	}
	wg.Wait()

	native, canonical := arena.Count()
	if native != 20 || canonical != 20 {
		t.Errorf("Count() = %d native, %d canonical, want 20 and 20", native, canonical)
	}
}
