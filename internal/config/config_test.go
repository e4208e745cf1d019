package config

import (
	"testing"
	"time"
)

func TestLoadMemoryDriverSkipsDatabaseVars(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("DB_MIGRATE", "off")

	cfg := Load()
	if cfg.Driver != DriverMemory {
		t.Fatalf("driver = %q", cfg.Driver)
	}
	if cfg.Migrate {
		t.Fatalf("DB_MIGRATE=off must disable migrations")
	}
	if cfg.DBHost != "" || cfg.DatabaseURL != "" {
		t.Fatalf("memory driver must not read database vars: %+v", cfg)
	}
}

func TestLoadPostgresDriver(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db")

	cfg := Load()
	if cfg.DatabaseURL != "postgres://u:p@localhost:5432/db" {
		t.Fatalf("database url = %q", cfg.DatabaseURL)
	}
}

func TestLoadReservationConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadReservationConfig()
		if cfg.LockTimeout != 2*time.Second || cfg.MaxRetries != 3 || cfg.MaxStayNights != 30 {
			t.Fatalf("unexpected defaults %+v", cfg)
		}
	})
	t.Run("overrides and clamps", func(t *testing.T) {
		t.Setenv("LOCK_TIMEOUT", "750ms")
		t.Setenv("RESERVE_MAX_RETRIES", "-4")
		t.Setenv("MAX_STAY_NIGHTS", "0")
		t.Setenv("IDEMPOTENCY_TTL", "garbage")
		cfg := LoadReservationConfig()
		if cfg.LockTimeout != 750*time.Millisecond {
			t.Fatalf("lock timeout = %v", cfg.LockTimeout)
		}
		if cfg.MaxRetries != 0 || cfg.MaxStayNights != 1 {
			t.Fatalf("expected clamped values, got %+v", cfg)
		}
		if cfg.IdempotencyTTL != 24*time.Hour {
			t.Fatalf("malformed duration must fall back, got %v", cfg.IdempotencyTTL)
		}
	})
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_ENABLED", "no")
	cfg := LoadCacheConfig()
	if cfg.Enabled {
		t.Fatalf("CACHE_ENABLED=no must disable the cache")
	}
	if !cfg.Methods["GET"] || !cfg.Methods["HEAD"] || cfg.Methods["POST"] {
		t.Fatalf("unexpected methods %v", cfg.Methods)
	}
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "2")
	opts := RedisOptions()
	if opts.Addr != "cache:6380" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}
	t.Setenv("REDIS_HOST", "r")
	t.Setenv("REDIS_PORT", "1")
	if got := RedisOptions().Addr; got != "r:1" {
		t.Fatalf("host/port must win, got %q", got)
	}
}
