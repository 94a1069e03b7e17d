package session

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestRegistry() *Registry {
	return NewRegistry(6*time.Hour, zap.NewNop())
}

func TestPutReplacesSameUser(t *testing.T) {
	r := newTestRegistry()

	r.Put(&RoomContext{SessionID: "s1", UserID: "u1", RoomID: "R1"})
	displaced := r.Put(&RoomContext{SessionID: "s2", UserID: "u1", RoomID: "R1"})

	if displaced != "s1" {
		t.Fatalf("expected displaced session s1, got %q", displaced)
	}
	if r.Lookup("s1") != nil {
		t.Fatal("old session should be gone after replacement")
	}
	rc := r.Lookup("s2")
	if rc == nil || rc.RoomID != "R1" {
		t.Fatalf("expected new session for room R1, got %+v", rc)
	}
}

func TestPutKeepsDistinctUsers(t *testing.T) {
	r := newTestRegistry()

	r.Put(&RoomContext{SessionID: "s1", UserID: "u1"})
	displaced := r.Put(&RoomContext{SessionID: "s2", UserID: "u2"})

	if displaced != "" {
		t.Fatalf("expected no displacement, got %q", displaced)
	}
	if r.Lookup("s1") == nil || r.Lookup("s2") == nil {
		t.Fatal("both sessions should remain")
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	r := newTestRegistry()

	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	r.Put(&RoomContext{SessionID: "stale", UserID: "u1"})
	r.Put(&RoomContext{SessionID: "fresh", UserID: "u2"})

	// Touch "fresh" five hours later so only "stale" crosses the window.
	r.now = func() time.Time { return base.Add(5 * time.Hour) }
	r.Lookup("fresh")

	r.now = func() time.Time { return base.Add(7 * time.Hour) }
	removed := r.Sweep()

	if removed != 1 {
		t.Fatalf("expected 1 removed session, got %d", removed)
	}
	if r.Lookup("stale") != nil {
		t.Fatal("stale session should have been swept")
	}
	if r.Lookup("fresh") == nil {
		t.Fatal("fresh session should survive the sweep")
	}
}

func TestLookupRefreshesIdleWindow(t *testing.T) {
	r := newTestRegistry()

	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	r.Put(&RoomContext{SessionID: "s1", UserID: "u1"})

	// Keep touching within the window; the session must never expire.
	for i := 1; i <= 4; i++ {
		r.now = func() time.Time { return base.Add(time.Duration(i) * 5 * time.Hour) }
		if r.Lookup("s1") == nil {
			t.Fatalf("session expired despite activity at step %d", i)
		}
		r.Sweep()
	}
}
