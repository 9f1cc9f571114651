package vault

import (
	"context"
	"sync"
	"testing"
)

const pepper = "0123456789abcdef0123456789abcdef"

func TestHash_Deterministic(t *testing.T) {
	h := NewHasher(pepper)

	a := h.Hash("demo.myshopify.com", KindEmail, "buyer@example.com")
	b := h.Hash("demo.myshopify.com", KindEmail, "buyer@example.com")
	if a == "" || a != b {
		t.Fatalf("same input must hash identically: %q vs %q", a, b)
	}
}

func TestHash_Normalization(t *testing.T) {
	h := NewHasher(pepper)

	plain := h.Hash("demo.myshopify.com", KindEmail, "buyer@example.com")
	shouty := h.Hash("demo.myshopify.com", KindEmail, "  BUYER@Example.COM ")
	if plain != shouty {
		t.Error("email normalization should collapse case and whitespace")
	}

	// IPs keep their case (no letters anyway) but are trimmed.
	ip := h.Hash("demo.myshopify.com", KindIP, " 203.0.113.9 ")
	if ip != h.Hash("demo.myshopify.com", KindIP, "203.0.113.9") {
		t.Error("IP whitespace should be trimmed before hashing")
	}
}

func TestHash_ShopScoped(t *testing.T) {
	h := NewHasher(pepper)

	a := h.Hash("shop-a.myshopify.com", KindEmail, "buyer@example.com")
	b := h.Hash("shop-b.myshopify.com", KindEmail, "buyer@example.com")
	if a == b {
		t.Error("same raw value in two shops must hash differently")
	}
}

func TestHash_KindScoped(t *testing.T) {
	h := NewHasher(pepper)

	// A device id that happens to equal an IP string must not collide.
	a := h.Hash("demo.myshopify.com", KindIP, "203.0.113.9")
	b := h.Hash("demo.myshopify.com", KindDevice, "203.0.113.9")
	if a == b {
		t.Error("kinds must partition the hash space")
	}
}

func TestHash_PepperMatters(t *testing.T) {
	a := NewHasher(pepper).Hash("demo.myshopify.com", KindEmail, "buyer@example.com")
	b := NewHasher("another-pepper-value-entirely").Hash("demo.myshopify.com", KindEmail, "buyer@example.com")
	if a == b {
		t.Error("different peppers must yield different hashes")
	}
}

func TestHash_EmptyValue(t *testing.T) {
	h := NewHasher(pepper)
	if got := h.Hash("demo.myshopify.com", KindEmail, "   "); got != "" {
		t.Errorf("blank value should hash to empty marker, got %q", got)
	}
}

func TestBump_PreIncrementExposure(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// Nth sighting exposes N-1.
	for n := 1; n <= 5; n++ {
		prior, err := store.Bump(ctx, KindEmail, "hash-1")
		if err != nil {
			t.Fatalf("Bump failed: %v", err)
		}
		if prior != n-1 {
			t.Fatalf("sighting %d: expected prior %d, got %d", n, n-1, prior)
		}
	}

	id, err := store.Get(ctx, KindEmail, "hash-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if id.SeenCount != 5 {
		t.Errorf("expected seen_count 5, got %d", id.SeenCount)
	}
}

func TestBump_ConcurrentCountsEverySighting(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Bump(ctx, KindIP, "hash-ip"); err != nil {
				t.Errorf("Bump failed: %v", err)
			}
		}()
	}
	wg.Wait()

	id, err := store.Get(ctx, KindIP, "hash-ip")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if id.SeenCount != n {
		t.Errorf("expected %d sightings, got %d", n, id.SeenCount)
	}
}

func TestGet_Unknown(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), KindDevice, "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
