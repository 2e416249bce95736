package cache

import (
	"context"
	"testing"
	"time"

	"modelscout/internal/config"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(16, time.Minute)

	in := payload{Name: "aggregate", Count: 42}
	if err := store.Put(context.Background(), "k", in, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var out payload
	ok, err := store.Get(context.Background(), "k", &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("entry missing")
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestMemoryStoreMiss(t *testing.T) {
	store := NewMemoryStore(16, time.Minute)
	var out payload
	ok, err := store.Get(context.Background(), "absent", &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatal("unexpected hit")
	}
}

func TestMemoryStorePerEntryTTL(t *testing.T) {
	store := NewMemoryStore(16, time.Minute)
	if err := store.Put(context.Background(), "k", payload{Name: "short"}, 10*time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	var out payload
	ok, err := store.Get(context.Background(), "k", &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatal("entry should have expired")
	}
}

func TestMemoryStoreZeroTTLUsesMaxLifetime(t *testing.T) {
	store := NewMemoryStore(16, time.Minute)
	if err := store.Put(context.Background(), "k", payload{Name: "v"}, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	var out payload
	if ok, _ := store.Get(context.Background(), "k", &out); !ok {
		t.Fatal("zero ttl entry should live until the store's max lifetime")
	}
}

func TestNewStoreUnknownBackend(t *testing.T) {
	if _, err := NewStore(&config.Config{CacheBackend: "memcached"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewStoreMemoryBackend(t *testing.T) {
	store, err := NewStore(&config.Config{CacheBackend: "memory", DiscoveryCacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("store type = %T, want *MemoryStore", store)
	}
}
