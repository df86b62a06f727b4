package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Bus delivers events synchronously to subscribers registered in-process.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Sink
	all      []Sink
	logger   hclog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger hclog.Logger) *Bus {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Bus{handlers: make(map[string][]Sink), logger: logger}
}

// Subscribe registers s for events named name. An empty name subscribes to
// every event.
func (b *Bus) Subscribe(name string, s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name == "" {
		b.all = append(b.all, s)
		return
	}
	b.handlers[name] = append(b.handlers[name], s)
}

// Emit hands e to every matching subscriber in registration order. All
// subscribers run even when one fails; the failures are joined.
func (b *Bus) Emit(ctx context.Context, e Event) error {
	b.mu.RLock()
	targets := make([]Sink, 0, len(b.handlers[e.Name])+len(b.all))
	targets = append(targets, b.handlers[e.Name]...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	start := time.Now()
	var errs []error
	for _, s := range targets {
		if err := s.Emit(ctx, e); err != nil {
			b.logger.Error("event subscriber failed", "event", e.Name, "event_id", e.ID, "error", err)
			errs = append(errs, err)
		}
	}

	b.logger.Debug("event dispatched",
		"event", e.Name,
		"event_id", e.ID,
		"subscribers", len(targets),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return errors.Join(errs...)
}
