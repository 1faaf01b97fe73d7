package statestore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/itsdevcoffee/hyprvoice/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEphemeralMarker(t *testing.T) {
	ctx := context.Background()
	cfg := config.StateStoreConfig{RetentionMode: "ephemeral"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	m, err := st.ActiveMarker(ctx)
	if err != nil {
		t.Fatalf("active marker: %v", err)
	}
	if m != nil {
		t.Fatalf("expected no marker, got %+v", m)
	}

	put := Marker{SessionID: "session-1", OwnerPID: 4242, StartedAt: time.Now()}
	if err := st.PutMarker(ctx, put); err != nil {
		t.Fatalf("put marker: %v", err)
	}
	m, err = st.ActiveMarker(ctx)
	if err != nil {
		t.Fatalf("active marker: %v", err)
	}
	if m == nil || m.SessionID != "session-1" || m.OwnerPID != 4242 {
		t.Fatalf("unexpected marker: %+v", m)
	}

	if err := st.ClearMarker(ctx); err != nil {
		t.Fatalf("clear marker: %v", err)
	}
	m, err = st.ActiveMarker(ctx)
	if err != nil {
		t.Fatalf("active marker: %v", err)
	}
	if m != nil {
		t.Fatalf("expected marker cleared, got %+v", m)
	}

	// Events are dropped in ephemeral mode.
	if err := st.AppendEvent(ctx, Event{SessionID: "session-1", Type: EventStarted}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := st.ListSessionEvents(ctx, "session-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	cfg := config.StateStoreConfig{Path: filepath.Join(tmp, "state.db"), RetentionMode: "session"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	started := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := st.PutMarker(ctx, Marker{SessionID: "session-a", OwnerPID: 100, StartedAt: started}); err != nil {
		t.Fatalf("put marker: %v", err)
	}
	// Replacing the marker keeps a single row.
	if err := st.PutMarker(ctx, Marker{SessionID: "session-b", OwnerPID: 200, StartedAt: started.Add(time.Minute)}); err != nil {
		t.Fatalf("replace marker: %v", err)
	}

	m, err := st.ActiveMarker(ctx)
	if err != nil {
		t.Fatalf("active marker: %v", err)
	}
	if m == nil {
		t.Fatal("expected marker")
	}
	if m.SessionID != "session-b" || m.OwnerPID != 200 {
		t.Fatalf("unexpected marker: %+v", m)
	}
	if !m.StartedAt.Equal(started.Add(time.Minute)) {
		t.Fatalf("unexpected started_at: %v", m.StartedAt)
	}

	if err := st.ClearMarker(ctx); err != nil {
		t.Fatalf("clear marker: %v", err)
	}
	m, err = st.ActiveMarker(ctx)
	if err != nil {
		t.Fatalf("active marker: %v", err)
	}
	if m != nil {
		t.Fatalf("expected marker cleared, got %+v", m)
	}
}

func TestAppendAndListEvents(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	cfg := config.StateStoreConfig{Path: filepath.Join(tmp, "state.db"), RetentionMode: "session"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sessionID := "session-123"
	for _, typ := range []string{EventStarted, EventStopped, EventTranscribed} {
		if err := st.AppendEvent(ctx, Event{SessionID: sessionID, Type: typ, Detail: "d"}); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	if err := st.AppendEvent(ctx, Event{SessionID: "other", Type: EventStarted}); err != nil {
		t.Fatalf("append other: %v", err)
	}

	events, err := st.ListSessionEvents(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != EventStarted || events[2].Type != EventTranscribed {
		t.Fatalf("unexpected ordering: %+v", events)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	cfg := config.StateStoreConfig{
		Path:          filepath.Join(tmp, "state.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxSessions:   1,
	}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	st.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := st.AppendEvent(ctx, Event{SessionID: "old-session", Type: EventStarted}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	st.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := st.AppendEvent(ctx, Event{SessionID: "new-session", Type: EventStarted}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := st.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := st.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatal("expected old session pruned")
	}
	events, err = st.ListSessionEvents(ctx, "new-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected new session kept, got %d events", len(events))
	}
}
