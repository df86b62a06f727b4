package hooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/events"
)

// InvoiceRecorder persists invoices.
type InvoiceRecorder interface {
	StoreInvoice(ctx context.Context, userID string, inv billing.Invoice) (int64, error)
}

// Ledger is an events.Sink that records every invoice.created event in the
// local invoices table.
type Ledger struct {
	invoices InvoiceRecorder
	logger   hclog.Logger
}

// NewLedger creates the ledger subscriber.
func NewLedger(invoices InvoiceRecorder, logger hclog.Logger) *Ledger {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Ledger{invoices: invoices, logger: logger}
}

// Emit implements events.Sink. Redelivered invoices are ignored. A failed
// write is marked events.ErrRedeliver so the webhook is retried, unless the
// invoice itself is unusable.
func (l *Ledger) Emit(ctx context.Context, e events.Event) error {
	if e.Name != events.InvoiceCreated {
		return nil
	}

	var payload InvoicePayload
	if err := e.Decode(&payload); err != nil {
		return err
	}

	id, err := l.invoices.StoreInvoice(ctx, payload.UserID, payload.Invoice())
	if err != nil {
		if errors.Is(err, billing.ErrConflict) {
			l.logger.Debug("invoice already recorded", "invoice_id", payload.InvoiceID)
			return nil
		}
		if errors.Is(err, billing.ErrInvalidArgument) {
			return fmt.Errorf("hooks: record invoice %s: %w", payload.InvoiceID, err)
		}
		return fmt.Errorf("hooks: record invoice %s: %w: %w", payload.InvoiceID, events.ErrRedeliver, err)
	}

	l.logger.Info("invoice recorded", "user_id", payload.UserID, "invoice_id", payload.InvoiceID, "row_id", id)
	return nil
}
