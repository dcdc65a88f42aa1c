package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type idleState struct{}

func (idleState) StateName() string { return "TEST_IDLE" }

type amountState struct {
	Amount string `json:"amount"`
	Next   string `json:"next"`
}

func (amountState) StateName() string { return "TEST_AMOUNT" }

func init() {
	Register[idleState]("TEST_IDLE")
	Register[amountState]("TEST_AMOUNT")
}

func sample(id string, at time.Time) *Session {
	return &Session{
		ID:           id,
		PhoneNumber:  "2348030000000",
		State:        amountState{Amount: "500", Next: "CONFIRM"},
		Account:      &Account{UserID: "u1", WalletID: "w1", Address: "0xabc"},
		LastActivity: at.UTC(),
	}
}

func TestStateEnvelopeRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw, err := json.Marshal(sample("s1", at))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var probe map[string]json.RawMessage
	_ = json.Unmarshal(raw, &probe)
	var env struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(probe["state"], &env); err != nil || env.Name != "TEST_AMOUNT" {
		t.Fatalf("unexpected envelope %s (%v)", probe["state"], err)
	}

	var got Session
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	st, ok := got.State.(amountState)
	if !ok || st.Amount != "500" || st.Next != "CONFIRM" {
		t.Fatalf("unexpected state %#v", got.State)
	}
	if got.Account == nil || got.Account.Address != "0xabc" || !got.LastActivity.Equal(at) {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestUnknownStateFailsToDecode(t *testing.T) {
	var s Session
	err := json.Unmarshal([]byte(`{"id":"x","state":{"name":"NOPE"}}`), &s)
	if err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Register[idleState]("TEST_IDLE")
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s := sample("fresh", now)
	if err := store.Set(ctx, s); err != nil {
		t.Fatalf("set: %v", err)
	}
	s.Account.Address = "mutated"
	got, err := store.Get(ctx, "fresh")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Account.Address != "0xabc" {
		t.Fatalf("store must not alias caller memory, got %s", got.Account.Address)
	}
	if _, ok := got.State.(amountState); !ok {
		t.Fatalf("unexpected state %#v", got.State)
	}

	stale := sample("stale", now.Add(-2*time.Hour))
	stale.State = idleState{}
	if err := store.Set(ctx, stale); err != nil {
		t.Fatalf("set stale: %v", err)
	}

	removed, err := store.SweepExpired(ctx, now, time.Hour)
	if err != nil || removed != 1 {
		t.Fatalf("expected one swept session, got %d (%v)", removed, err)
	}
	if _, err := store.Get(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale session survived sweep: %v", err)
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh session swept: %v", err)
	}

	if err := store.Delete(ctx, "fresh"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "fresh"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	// A zero TTL writes keys without expiry so the sweep has work to do.
	exerciseStore(t, NewRedisStore(client, 0))
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, time.Hour)
	if err := store.Set(context.Background(), sample("ttl", time.Now())); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ttl := mr.TTL("ussd:session:ttl"); ttl != time.Hour {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if _, err := store.Get(context.Background(), "ttl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestLockerSerialisesSameSession(t *testing.T) {
	l := NewLocker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("same")
			defer unlock()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxSeen)
	}
	if l.Held() != 0 {
		t.Fatalf("locks leaked: %d", l.Held())
	}
}

func TestLockerAllowsDifferentSessions(t *testing.T) {
	l := NewLocker()
	unlockA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on b blocked behind a")
	}
	unlockA()
}
