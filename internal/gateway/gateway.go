// Package gateway defines the contract a payment gateway adapter satisfies.
// Adapters translate gateway objects into billing values and gateway
// failures into *Error. They never touch local storage.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Mayank009/cashew/internal/billing"
)

// Gateway is implemented by concrete payment gateway adapters.
type Gateway interface {
	// Create registers a customer and starts its subscription.
	Create(ctx context.Context, opts CreateOptions) (*billing.Customer, error)

	// Update changes the customer's card, plan or quantity. When the
	// customer has no live subscription and a plan is given, a new one is
	// started.
	Update(ctx context.Context, customerID string, opts UpdateOptions) (*billing.Customer, error)

	// Cancel stops the customer's subscription, immediately or at the end
	// of the current period.
	Cancel(ctx context.Context, customerID string, atPeriodEnd bool) (*billing.Subscription, error)

	Invoices(ctx context.Context, customerID string) ([]billing.Invoice, error)

	// NextInvoice previews the customer's upcoming invoice.
	NextInvoice(ctx context.Context, customerID string) (*billing.Invoice, error)

	// Event fetches a notification by id from the gateway, which is how
	// webhook payloads are authenticated.
	Event(ctx context.Context, eventID string) (*billing.Event, error)

	InvoiceItem(ctx context.Context, opts InvoiceItemOptions) (*billing.InvoiceItem, error)
}

// CreateOptions describes a new customer and subscription.
type CreateOptions struct {
	Email       string `validate:"omitempty,email"`
	Description string
	// Source is a tokenized card collected client side.
	Source   string
	Plan     string `validate:"required"`
	Quantity int64  `validate:"gte=0"`
	// TrialEnd overrides the plan's trial. Nil keeps the plan default.
	TrialEnd *time.Time
	Metadata map[string]string
}

// UpdateOptions lists the fields to change. Zero values are left untouched.
type UpdateOptions struct {
	Source   string
	Plan     string
	Quantity int64 `validate:"gte=0"`
	// EndTrialNow ends a running trial immediately.
	EndTrialNow bool
	// Resume withdraws a pending cancellation at period end.
	Resume bool
	// TrialEnd applies only when a new subscription is started.
	TrialEnd *time.Time
}

// InvoiceItemOptions describes a one-off charge or credit.
type InvoiceItemOptions struct {
	CustomerID  string `validate:"required"`
	Amount      int64  `validate:"required"`
	Currency    string `validate:"required,len=3"`
	Description string
	InvoiceID   string
}

var validate = validator.New()

// Validate checks options before any remote call is made. Failures wrap
// billing.ErrInvalidArgument.
func Validate(opts any) error {
	if err := validate.Struct(opts); err != nil {
		return fmt.Errorf("%w: %v", billing.ErrInvalidArgument, err)
	}
	return nil
}
