package idempotency

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/tourism-booking/internal/clock"
	"github.com/iliyamo/tourism-booking/internal/service"
)

var (
	_ service.IdempotencyStore = (*MemoryStore)(nil)
	_ service.IdempotencyStore = (*RedisStore)(nil)
)

type store interface {
	Claim(ctx context.Context, k string) (int64, bool, error)
	Complete(ctx context.Context, k string, bookingID int64) error
	Abandon(ctx context.Context, k string) error
}

func exerciseStore(t *testing.T, s store) {
	t.Helper()
	ctx := context.Background()
	k := "booking:7:" + uuid.NewString()

	id, claimed, err := s.Claim(ctx, k)
	if err != nil || !claimed || id != 0 {
		t.Fatalf("first claim: id=%d claimed=%v err=%v", id, claimed, err)
	}
	id, claimed, err = s.Claim(ctx, k)
	if err != nil || claimed || id != 0 {
		t.Fatalf("claim while pending: id=%d claimed=%v err=%v", id, claimed, err)
	}

	if err := s.Abandon(ctx, k); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, claimed, _ = s.Claim(ctx, k); !claimed {
		t.Fatalf("expected key to be claimable after abandon")
	}

	if err := s.Complete(ctx, k, 42); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := s.Abandon(ctx, k); err != nil {
		t.Fatalf("abandon completed: %v", err)
	}
	id, claimed, err = s.Claim(ctx, k)
	if err != nil || claimed || id != 42 {
		t.Fatalf("claim after complete: id=%d claimed=%v err=%v", id, claimed, err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(clock.NewSystem(), time.Hour))
}

func TestMemoryStoreExpires(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s := NewMemoryStore(clk, time.Minute)
	ctx := context.Background()

	if _, claimed, _ := s.Claim(ctx, "k"); !claimed {
		t.Fatalf("expected first claim")
	}
	_ = s.Complete(ctx, "k", 9)
	clk.Advance(2 * time.Minute)
	if _, claimed, _ := s.Claim(ctx, "k"); !claimed {
		t.Fatalf("expected expired key to be claimable")
	}
}

func TestMemoryStoreSweepsExpiredKeys(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s := NewMemoryStore(clk, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		key := fmt.Sprintf("key-%d", i)
		if _, claimed, _ := s.Claim(ctx, key); !claimed {
			t.Fatalf("claim %s failed", key)
		}
		if i%2 == 0 {
			_ = s.Complete(ctx, key, int64(i+1))
		}
	}
	if got := s.size(); got != 10000 {
		t.Fatalf("size before expiry = %d, want 10000", got)
	}

	clk.Advance(time.Hour)
	if _, claimed, _ := s.Claim(ctx, "fresh"); !claimed {
		t.Fatalf("expected fresh claim")
	}
	if got := s.size(); got != 1 {
		t.Fatalf("size after expiry = %d, want 1", got)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping Redis integration tests")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping Redis integration tests: %v", err)
	}
	exerciseStore(t, NewRedisStore(rdb, "idem-test", time.Minute))
}
