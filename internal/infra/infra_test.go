package infra

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestSchemaDeclaresReferenceGuard(t *testing.T) {
	ddl := Schema()
	for _, table := range []string{"users", "wallets", "transactions"} {
		if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema missing table %s", table)
		}
	}
	if !strings.Contains(ddl, "UNIQUE (reference, type)") {
		t.Fatalf("transactions must be unique per reference and type")
	}
}

func TestConstructorsRequireURL(t *testing.T) {
	if _, err := NewPostgresPool(context.Background(), "", PoolOptions{}); err == nil {
		t.Fatalf("expected error for empty database url")
	}
	if _, err := NewRedisClient(context.Background(), "", 0); err == nil {
		t.Fatalf("expected error for empty redis url")
	}
	if _, err := NewRedisClient(context.Background(), "://bad", time.Second); err == nil {
		t.Fatalf("expected error for malformed redis url")
	}
}

func TestRedisClientAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr(), time.Second)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Fatalf("unexpected value %q", got)
	}

	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedisClient(context.Background(), "redis://"+addr, 100*time.Millisecond); err == nil {
		t.Fatalf("expected ping failure once redis is gone")
	}
}
