package db

import (
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.ApplyMigrations(); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return database
}

func TestReserveExclusive(t *testing.T) {
	store := NewReservationStore(newTestDB(t))

	ok, err := store.Reserve("trade_slot", "MT5|XAUUSD", "worker-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first reserve: ok=%v err=%v", ok, err)
	}

	ok, err = store.Reserve("trade_slot", "MT5|XAUUSD", "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if ok {
		t.Fatal("second owner acquired a live reservation")
	}

	// Re-entry by the same owner refreshes instead of failing.
	ok, err = store.Reserve("trade_slot", "MT5|XAUUSD", "worker-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("re-entrant reserve: ok=%v err=%v", ok, err)
	}
}

func TestReserveAfterExpiry(t *testing.T) {
	store := NewReservationStore(newTestDB(t))
	base := time.Now()
	store.now = func() time.Time { return base }

	ok, err := store.Reserve("trade_slot", "MT5|EURUSD", "worker-a", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("first reserve: ok=%v err=%v", ok, err)
	}

	// Before expiry the slot stays held.
	store.now = func() time.Time { return base.Add(29 * time.Second) }
	if ok, _ := store.Reserve("trade_slot", "MT5|EURUSD", "worker-b", 30*time.Second); ok {
		t.Fatal("reservation stolen before expiry")
	}

	// At expiry a new owner takes over.
	store.now = func() time.Time { return base.Add(31 * time.Second) }
	ok, err = store.Reserve("trade_slot", "MT5|EURUSD", "worker-b", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("reserve after expiry: ok=%v err=%v", ok, err)
	}

	r, err := store.Get("trade_slot", "MT5|EURUSD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Owner != "worker-b" {
		t.Fatalf("owner = %q, want worker-b", r.Owner)
	}
}

func TestReleaseOnlyByOwner(t *testing.T) {
	store := NewReservationStore(newTestDB(t))

	if ok, _ := store.Reserve("trade_slot", "MT5|XAUUSD", "worker-a", time.Minute); !ok {
		t.Fatal("reserve failed")
	}

	// A stale worker releasing after losing the slot must be a no-op.
	if err := store.Release("trade_slot", "MT5|XAUUSD", "worker-b"); err != nil {
		t.Fatalf("foreign release: %v", err)
	}
	if _, err := store.Get("trade_slot", "MT5|XAUUSD"); err != nil {
		t.Fatal("reservation vanished after foreign release")
	}

	if err := store.Release("trade_slot", "MT5|XAUUSD", "worker-a"); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if _, err := store.Get("trade_slot", "MT5|XAUUSD"); err == nil {
		t.Fatal("reservation still present after owner release")
	}
}

func TestListActiveSkipsExpired(t *testing.T) {
	store := NewReservationStore(newTestDB(t))
	base := time.Now()
	store.now = func() time.Time { return base }

	store.Reserve("trade_slot", "MT5|XAUUSD", "worker-a", time.Second)
	store.Reserve("trade_slot", "MT5|EURUSD", "worker-a", time.Hour)

	store.now = func() time.Time { return base.Add(2 * time.Second) }
	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].ResourceID != "MT5|EURUSD" {
		t.Fatalf("active = %+v, want only MT5|EURUSD", active)
	}
}
