package session

import (
	"context"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	s := Session{UserID: "u1", Email: "a@b.test", Role: "customer", CreatedAt: time.Now()}
	if err := m.Put(ctx, "tok", s); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := m.Get(ctx, "tok")
	if !ok || got.UserID != "u1" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	if _, ok := m.Get(ctx, "unknown"); ok {
		t.Fatal("unknown token resolved")
	}
}

func TestMemoryStoreExpiryIsLazy(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Now()
	m.now = func() time.Time { return now }

	if err := m.Put(ctx, "tok", Session{UserID: "u1", CreatedAt: now}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	now = now.Add(TTL + time.Minute)

	// the entry still physically exists until it is looked up
	if m.Len() != 1 {
		t.Fatalf("Len = %d before lookup, want 1", m.Len())
	}
	if _, ok := m.Get(ctx, "tok"); ok {
		t.Fatal("expired session resolved")
	}
	if m.Len() != 0 {
		t.Fatalf("Len = %d after lookup, want 0 (lazy eviction)", m.Len())
	}
}

func TestMemoryStorePutSweepsExpired(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Now()
	m.now = func() time.Time { return now }

	_ = m.Put(ctx, "old", Session{UserID: "u1", CreatedAt: now})
	now = now.Add(TTL + time.Minute)
	_ = m.Put(ctx, "new", Session{UserID: "u2", CreatedAt: now})

	if m.Len() != 1 {
		t.Fatalf("Len = %d after sweep, want 1", m.Len())
	}
	if _, ok := m.Get(ctx, "new"); !ok {
		t.Fatal("fresh session lost")
	}
}

func TestMemoryStoreDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_ = m.Put(ctx, "tok", Session{UserID: "u1", CreatedAt: time.Now()})

	m.Delete(ctx, "tok")
	m.Delete(ctx, "tok") // second delete is a no-op
	if _, ok := m.Get(ctx, "tok"); ok {
		t.Fatal("deleted token resolved")
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		i := i
		g.Go(func() error {
			tok := "tok-" + strconv.Itoa(i)
			if err := m.Put(ctx, tok, Session{UserID: tok, CreatedAt: time.Now()}); err != nil {
				return err
			}
			if _, ok := m.Get(ctx, tok); !ok {
				t.Errorf("token %s lost", tok)
			}
			m.Delete(ctx, tok)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
