// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/gateway"
)

// Fake is a gateway.Gateway driven by function fields. Unset functions
// return a not-found gateway error. Calls are recorded by operation name.
type Fake struct {
	CreateFunc      func(ctx context.Context, opts gateway.CreateOptions) (*billing.Customer, error)
	UpdateFunc      func(ctx context.Context, customerID string, opts gateway.UpdateOptions) (*billing.Customer, error)
	CancelFunc      func(ctx context.Context, customerID string, atPeriodEnd bool) (*billing.Subscription, error)
	InvoicesFunc    func(ctx context.Context, customerID string) ([]billing.Invoice, error)
	NextInvoiceFunc func(ctx context.Context, customerID string) (*billing.Invoice, error)
	EventFunc       func(ctx context.Context, eventID string) (*billing.Event, error)
	InvoiceItemFunc func(ctx context.Context, opts gateway.InvoiceItemOptions) (*billing.InvoiceItem, error)

	mu    sync.Mutex
	calls []string
}

var _ gateway.Gateway = (*Fake)(nil)

// Calls returns the operations invoked so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func notFound(op string) error {
	return &gateway.Error{Kind: gateway.KindNotFound, Op: op}
}

func (f *Fake) Create(ctx context.Context, opts gateway.CreateOptions) (*billing.Customer, error) {
	f.record("create")
	if f.CreateFunc == nil {
		return nil, notFound("create")
	}
	return f.CreateFunc(ctx, opts)
}

func (f *Fake) Update(ctx context.Context, customerID string, opts gateway.UpdateOptions) (*billing.Customer, error) {
	f.record("update")
	if f.UpdateFunc == nil {
		return nil, notFound("update")
	}
	return f.UpdateFunc(ctx, customerID, opts)
}

func (f *Fake) Cancel(ctx context.Context, customerID string, atPeriodEnd bool) (*billing.Subscription, error) {
	f.record("cancel")
	if f.CancelFunc == nil {
		return nil, notFound("cancel")
	}
	return f.CancelFunc(ctx, customerID, atPeriodEnd)
}

func (f *Fake) Invoices(ctx context.Context, customerID string) ([]billing.Invoice, error) {
	f.record("invoices")
	if f.InvoicesFunc == nil {
		return nil, notFound("invoices")
	}
	return f.InvoicesFunc(ctx, customerID)
}

func (f *Fake) NextInvoice(ctx context.Context, customerID string) (*billing.Invoice, error) {
	f.record("next invoice")
	if f.NextInvoiceFunc == nil {
		return nil, notFound("next invoice")
	}
	return f.NextInvoiceFunc(ctx, customerID)
}

func (f *Fake) Event(ctx context.Context, eventID string) (*billing.Event, error) {
	f.record("event")
	if f.EventFunc == nil {
		return nil, notFound("event")
	}
	return f.EventFunc(ctx, eventID)
}

func (f *Fake) InvoiceItem(ctx context.Context, opts gateway.InvoiceItemOptions) (*billing.InvoiceItem, error) {
	f.record("invoice item")
	if f.InvoiceItemFunc == nil {
		return nil, notFound("invoice item")
	}
	return f.InvoiceItemFunc(ctx, opts)
}
