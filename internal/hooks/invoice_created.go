package hooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/events"
	"github.com/Mayank009/cashew/internal/metrics"
	"github.com/Mayank009/cashew/internal/models"
)

// SubscriptionFinder resolves the local record owning a gateway customer.
type SubscriptionFinder interface {
	Subscription(ctx context.Context, id string, byCustomer bool) (*models.Subscription, error)
}

// InvoicePayload is the body of the invoice.created domain event.
type InvoicePayload struct {
	UserID         string    `json:"user_id"`
	InvoiceID      string    `json:"invoice_id"`
	CustomerID     string    `json:"customer_id"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Currency       string    `json:"currency"`
	Date           time.Time `json:"date"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	Total          int64     `json:"total"`
	Subtotal       int64     `json:"subtotal"`
	Discount       int64     `json:"discount"`
	HasDiscount    bool      `json:"has_discount"`
	FormattedTotal string    `json:"formatted_total"`
}

// NewInvoicePayload builds the event body for an invoice owned by userID.
func NewInvoicePayload(userID string, inv billing.Invoice) InvoicePayload {
	return InvoicePayload{
		UserID:         userID,
		InvoiceID:      inv.ID,
		CustomerID:     inv.CustomerID,
		SubscriptionID: inv.SubscriptionID,
		Currency:       inv.Currency,
		Date:           inv.Date,
		PeriodStart:    inv.PeriodStart,
		PeriodEnd:      inv.PeriodEnd,
		Total:          inv.Total,
		Subtotal:       inv.Subtotal,
		Discount:       inv.Discount(),
		HasDiscount:    inv.HasDiscount(),
		FormattedTotal: inv.FormattedTotal(),
	}
}

// Invoice converts the payload back into the value object.
func (p InvoicePayload) Invoice() billing.Invoice {
	return billing.Invoice{
		ID:             p.InvoiceID,
		CustomerID:     p.CustomerID,
		SubscriptionID: p.SubscriptionID,
		Currency:       p.Currency,
		Date:           p.Date,
		PeriodStart:    p.PeriodStart,
		PeriodEnd:      p.PeriodEnd,
		Total:          p.Total,
		Subtotal:       p.Subtotal,
		UserID:         p.UserID,
	}
}

// InvoiceCreated resolves the subscription owning a new gateway invoice and
// emits invoice.created. Trial subscriptions are not treated specially.
type InvoiceCreated struct {
	subs   SubscriptionFinder
	sink   events.Sink
	logger hclog.Logger
	now    func() time.Time
}

// NewInvoiceCreated creates the hook.
func NewInvoiceCreated(subs SubscriptionFinder, sink events.Sink, logger hclog.Logger) *InvoiceCreated {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &InvoiceCreated{subs: subs, sink: sink, logger: logger, now: time.Now}
}

// Handle implements Hook. A customer with no local subscription yields
// billing.ErrNotFound and nothing is emitted.
func (h *InvoiceCreated) Handle(ctx context.Context, ev *billing.Event) error {
	if ev == nil || ev.Invoice == nil {
		return fmt.Errorf("hooks: invoice created: %w: event carries no invoice", billing.ErrInvalidArgument)
	}

	customerID := ev.CustomerID
	if customerID == "" {
		customerID = ev.Invoice.CustomerID
	}

	sub, err := h.subs.Subscription(ctx, customerID, true)
	if err != nil {
		return fmt.Errorf("hooks: invoice created: customer %s: %w", customerID, err)
	}

	e, err := events.New(events.InvoiceCreated, sub.UserID, NewInvoicePayload(sub.UserID, *ev.Invoice), h.now())
	if err != nil {
		return fmt.Errorf("hooks: invoice created: %w", err)
	}

	// Only failures that would lose the invoice ask for redelivery; other
	// sinks are fire-and-forget.
	err = h.sink.Emit(ctx, e)
	metrics.RecordDomainEvent(events.InvoiceCreated, err)
	if err != nil {
		h.logger.Error("failed to emit event", "event", events.InvoiceCreated, "user_id", sub.UserID, "invoice_id", ev.Invoice.ID, "error", err)
		if errors.Is(err, events.ErrRedeliver) {
			return fmt.Errorf("hooks: invoice created: %w", err)
		}
		return nil
	}

	h.logger.Info("invoice matched", "user_id", sub.UserID, "invoice_id", ev.Invoice.ID, "event_id", e.ID)
	return nil
}
