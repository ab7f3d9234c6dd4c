package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestNoopProviderAlwaysMisses(t *testing.T) {
	var p Provider = NoopProvider{}
	if err := p.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := p.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	p := NewMemoryProvider()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	if err := p.Set(ctx, "rules", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := p.Get(ctx, "rules")
	if err != nil || string(got) != "payload" {
		t.Fatalf("expected payload, got %q %v", got, err)
	}

	got[0] = 'X'
	if again, _ := p.Get(ctx, "rules"); string(again) != "payload" {
		t.Fatalf("cached value must not alias caller buffers")
	}

	now = now.Add(2 * time.Minute)
	if _, err := p.Get(ctx, "rules"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}

	_ = p.Set(ctx, "forever", []byte("x"), 0)
	now = now.Add(24 * time.Hour)
	if _, err := p.Get(ctx, "forever"); err != nil {
		t.Fatalf("zero ttl must not expire: %v", err)
	}
	_ = p.Del(ctx, "forever")
	if _, err := p.Get(ctx, "forever"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete")
	}
}

func TestValkeyProviderRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)

	p, err := NewValkeyProvider(ValkeyConfig{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	defer p.Close()

	ctx := context.Background()
	if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if err := p.Set(ctx, "rules", []byte(`[{"application":"redis"}]`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := p.Get(ctx, "rules")
	if err != nil || string(got) != `[{"application":"redis"}]` {
		t.Fatalf("unexpected get result %q %v", got, err)
	}

	srv.FastForward(2 * time.Minute)
	if _, err := p.Get(ctx, "rules"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ttl expiry, got %v", err)
	}

	_ = p.Set(ctx, "other", []byte("1"), 0)
	if err := p.Del(ctx, "other"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if srv.Exists("other") {
		t.Fatalf("expected key removed")
	}
}

func TestValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestValkeyProviderPingFailure(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.RequireAuth("secret")

	if _, err := NewValkeyProvider(ValkeyConfig{Addr: srv.Addr(), Password: "wrong", DialTimeout: time.Second}); err == nil {
		t.Fatalf("expected ping failure with bad credentials")
	}
}
