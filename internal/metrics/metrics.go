package metrics

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Sync counts what the sync layer did since the process started.
type Sync struct {
	EventsDelivered Counter
	EventsSkipped   Counter
	HandlerPanics   Counter

	MutationsCommitted  Counter
	MutationsRolledBack Counter
}

// Default is shared by the dispatcher and the mutation coordinator.
var Default = &Sync{}

// MarshalLogObject lets a Sync be logged with zap.Object.
func (s *Sync) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("events_delivered", s.EventsDelivered.Load())
	enc.AddUint64("events_skipped", s.EventsSkipped.Load())
	enc.AddUint64("handler_panics", s.HandlerPanics.Load())
	enc.AddUint64("mutations_committed", s.MutationsCommitted.Load())
	enc.AddUint64("mutations_rolled_back", s.MutationsRolledBack.Load())
	return nil
}

func (s *Sync) Field() zap.Field {
	return zap.Object("sync", s)
}
