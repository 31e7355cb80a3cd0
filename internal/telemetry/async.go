package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// emitTimeout bounds a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the longest Drain needs: one emit timeout.
const ShutdownDrainDuration = emitTimeout

var inflight sync.WaitGroup

// EmitAsync emits event in the background under its own timeout, detached from the
// request context, and logs a failure. Nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, event *Event, log *zap.Logger) {
	if emitter == nil || event == nil {
		return
	}
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil && log != nil {
			log.Warn("telemetry: async emit failed",
				zap.String("event_type", event.Type),
				zap.String("resource_id", event.ResourceID),
				zap.Error(err),
			)
		}
	}()
}

// Drain waits for every EmitAsync started so far, or until ctx is done.
// Call it after the HTTP server stops and before closing the emitters.
func Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
