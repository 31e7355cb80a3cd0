package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
	delay   time.Duration
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func waitForEvents(t *testing.T, m *mockEventEmitter, n int) []*Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev := m.getEvents(); len(ev) >= n {
			return ev
		}
		time.Sleep(5 * time.Millisecond)
	}
	return m.getEvents()
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	// Should not panic
	EmitAsync(nil, NewEvent(EventApplicationSubmitted, "a1", "u1", "u1"), nil)

	emitter := &mockEventEmitter{}
	EmitAsync(emitter, nil, nil)
	time.Sleep(10 * time.Millisecond)
	if len(emitter.getEvents()) != 0 {
		t.Errorf("expected 0 events, got %d", len(emitter.getEvents()))
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{}
	EmitAsync(emitter, NewEvent(EventApplicationApproved, "app-1", "user-1", "admin-1"), zap.NewNop())

	events := waitForEvents(t, emitter, 1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != EventApplicationApproved {
		t.Errorf("event type = %q, want %q", ev.Type, EventApplicationApproved)
	}
	if ev.ResourceID != "app-1" || ev.UserID != "user-1" || ev.ActorID != "admin-1" {
		t.Errorf("event ids = %q/%q/%q", ev.ResourceID, ev.UserID, ev.ActorID)
	}
	if ev.ID == "" || ev.Source != Source || ev.OccurredAt.IsZero() {
		t.Errorf("event metadata not set: %+v", ev)
	}
}

func TestEmitAsync_ErrorIsLoggedNotReturned(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: context.DeadlineExceeded}
	EmitAsync(emitter, NewEvent(EventApplicationRejected, "a1", "u1", "u2"), zap.NewNop())
	if len(waitForEvents(t, emitter, 1)) != 1 {
		t.Error("emit should still have been attempted")
	}
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := &mockEventEmitter{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, NewEvent(EventApplicationSubmitted, "a", "u", "u"), nil)
		}()
	}
	wg.Wait()
	if got := len(waitForEvents(t, emitter, 10)); got != 10 {
		t.Errorf("expected 10 events, got %d", got)
	}
}

func TestMulti(t *testing.T) {
	a := &mockEventEmitter{}
	b := &mockEventEmitter{emitErr: errors.New("kafka down")}
	m := Multi(a, nil, b)
	err := m.Emit(context.Background(), NewEvent(EventApplicationSubmitted, "a1", "u1", "u1"))
	if err == nil {
		t.Error("Multi should return the failing emitter's error")
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Errorf("both emitters should receive the event: a=%d b=%d", len(a.getEvents()), len(b.getEvents()))
	}
}

func TestDrain_WaitsForInFlightEmits(t *testing.T) {
	emitter := &mockEventEmitter{delay: 50 * time.Millisecond}
	EmitAsync(emitter, NewEvent(EventApplicationApproved, "a1", "u1", "admin"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownDrainDuration)
	defer cancel()
	if err := Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(emitter.getEvents()) != 1 {
		t.Error("Drain returned before the emit finished")
	}
}

func TestDrain_RespectsContext(t *testing.T) {
	emitter := &mockEventEmitter{delay: time.Second}
	EmitAsync(emitter, NewEvent(EventApplicationSubmitted, "a1", "u1", "u1"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain = %v, want deadline exceeded", err)
	}
}
