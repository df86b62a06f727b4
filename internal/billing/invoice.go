// Package billing holds the gateway-independent value objects: customers,
// subscriptions, cards, invoices and events, with the pure computations the
// rest of the module relies on.
package billing

import (
	"time"

	"github.com/Mayank009/cashew/internal/money"
)

// InvoiceDateLayout is used by the formatted date accessors of Invoice.
const InvoiceDateLayout = "Jan 2, 2006"

// Invoice is a read-only view over one invoice, whether it came from the
// gateway or from the local invoices table. Amounts are in the currency's
// minor unit.
type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	Currency       string
	Date           time.Time
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Total          int64
	Subtotal       int64

	// Set only for invoices loaded from the local store.
	UserID    string
	CreatedAt time.Time
}

// DateEpoch returns the invoice date as unix seconds.
func (i Invoice) DateEpoch() int64 { return i.Date.Unix() }

// DateFormatted returns the invoice date as "Jan 2, 2006".
func (i Invoice) DateFormatted() string { return i.Date.Format(InvoiceDateLayout) }

func (i Invoice) PeriodStartEpoch() int64 { return i.PeriodStart.Unix() }

func (i Invoice) PeriodStartFormatted() string { return i.PeriodStart.Format(InvoiceDateLayout) }

func (i Invoice) PeriodEndEpoch() int64 { return i.PeriodEnd.Unix() }

func (i Invoice) PeriodEndFormatted() string { return i.PeriodEnd.Format(InvoiceDateLayout) }

// HasDiscount reports whether the invoice carries a discount worth showing.
// A fully discounted invoice (total 0) deliberately reports false.
func (i Invoice) HasDiscount() bool {
	return i.Total > 0 && i.Subtotal != i.Total
}

// Discount is always subtotal - total. Check HasDiscount before displaying it.
func (i Invoice) Discount() int64 {
	return i.Subtotal - i.Total
}

func (i Invoice) FormattedTotal() string { return money.Format(i.Total, i.Currency) }

func (i Invoice) FormattedSubtotal() string { return money.Format(i.Subtotal, i.Currency) }

func (i Invoice) FormattedDiscount() string { return money.Format(i.Discount(), i.Currency) }
