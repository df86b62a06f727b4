// Package hooks reacts to gateway notifications.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/Mayank009/cashew/internal/billing"
)

// ErrUnhandledEvent is returned by Dispatch for event types with no hook.
var ErrUnhandledEvent = errors.New("hooks: unhandled event type")

// Hook handles one gateway event type.
type Hook interface {
	Handle(ctx context.Context, ev *billing.Event) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, ev *billing.Event) error

// Handle calls f.
func (f HookFunc) Handle(ctx context.Context, ev *billing.Event) error { return f(ctx, ev) }

// Dispatcher routes gateway events to their hooks by type.
type Dispatcher struct {
	mu     sync.RWMutex
	hooks  map[string]Hook
	logger hclog.Logger
}

// NewDispatcher creates a dispatcher with no hooks registered.
func NewDispatcher(logger hclog.Logger) *Dispatcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dispatcher{hooks: make(map[string]Hook), logger: logger}
}

// Register sets the hook for eventType, replacing any previous one.
func (d *Dispatcher) Register(eventType string, h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks[eventType] = h
}

// Handles reports whether a hook is registered for eventType.
func (d *Dispatcher) Handles(eventType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.hooks[eventType]
	return ok
}

// Dispatch runs the hook registered for ev.Type.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *billing.Event) error {
	if ev == nil {
		return fmt.Errorf("hooks: dispatch: %w: nil event", billing.ErrInvalidArgument)
	}

	d.mu.RLock()
	h, ok := d.hooks[ev.Type]
	d.mu.RUnlock()

	if !ok {
		d.logger.Debug("no hook for event", "event_id", ev.ID, "type", ev.Type)
		return fmt.Errorf("%w: %s", ErrUnhandledEvent, ev.Type)
	}

	if err := h.Handle(ctx, ev); err != nil {
		d.logger.Error("hook failed", "event_id", ev.ID, "type", ev.Type, "error", err)
		return err
	}

	d.logger.Info("hook handled event", "event_id", ev.ID, "type", ev.Type, "customer_id", ev.CustomerID)
	return nil
}
