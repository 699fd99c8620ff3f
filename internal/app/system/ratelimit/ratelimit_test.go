package ratelimit_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dalemusser/boardhub/internal/app/system/ratelimit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemory_Allow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := ratelimit.NewMemory(3, time.Minute).WithClock(clock.Now)
	ctx := context.Background()
	key := ratelimit.BallotKey("voter-1", "item-1")

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, key)
		if err != nil || !ok {
			t.Fatalf("attempt %d: expected allowed, got %v (%v)", i+1, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, key); ok {
		t.Error("expected 4th attempt to be limited")
	}
	if got := l.Remaining(key); got != 0 {
		t.Errorf("Remaining: got %d, want 0", got)
	}

	other := ratelimit.BallotKey("voter-1", "item-2")
	if ok, _ := l.Allow(ctx, other); !ok {
		t.Error("expected a different item to have its own window")
	}

	clock.Advance(time.Minute)
	if ok, _ := l.Allow(ctx, key); !ok {
		t.Error("expected a new window after expiry")
	}
	if got := l.Remaining(key); got != 2 {
		t.Errorf("Remaining after reset: got %d, want 2", got)
	}
}

func TestMemory_LazySweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := ratelimit.NewMemory(5, time.Minute).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if _, err := l.Allow(ctx, fmt.Sprintf("k%d", i)); err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
	}
	if l.Len() != 100 {
		t.Fatalf("expected 100 windows, got %d", l.Len())
	}

	clock.Advance(2 * time.Minute)
	if _, err := l.Allow(ctx, "fresh"); err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("expected expired windows to be swept, got %d", l.Len())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff, xri   string
		remoteAddr string
		want       string
	}{
		{name: "forwarded for", xff: "203.0.113.5, 10.0.0.1", remoteAddr: "10.0.0.2:1234", want: "203.0.113.5"},
		{name: "real ip", xri: " 198.51.100.7 ", remoteAddr: "10.0.0.2:1234", want: "198.51.100.7"},
		{name: "remote addr", remoteAddr: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "remote addr without port", remoteAddr: "192.0.2.9", want: "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ratelimit.ClientIP(r); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedis_Allow(t *testing.T) {
	addr := os.Getenv("BOARDHUB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BOARDHUB_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	prefix := "boardhub:test:" + uuid.NewString() + ":"
	l := ratelimit.NewRedis(rdb, prefix, 2, time.Minute)
	key := ratelimit.BallotKey("v", "i")
	t.Cleanup(func() { rdb.Del(context.Background(), prefix+key) })

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, key)
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !ok {
			t.Fatalf("attempt %d: expected allowed", i+1)
		}
	}
	ok, err := l.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if ok {
		t.Error("expected 3rd attempt to be limited")
	}

	ttl, err := rdb.TTL(ctx, prefix+key).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected TTL within window, got %v", ttl)
	}
}
