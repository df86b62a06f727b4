package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/sony/gobreaker/v2"

	"github.com/Mayank009/cashew/internal/billing"
)

// BreakerSettings configures WithBreaker.
type BreakerSettings struct {
	Name string
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
	// Interval is the cyclic period of the closed state used to clear counts.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// FailureThreshold consecutive retryable failures trip the breaker.
	FailureThreshold uint32
	Logger           hclog.Logger
	OnStateChange    func(name string, from, to gobreaker.State)
}

// DefaultBreakerSettings returns sensible defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "gateway",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

type breakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[any]
}

// WithBreaker wraps next with a circuit breaker. Only retryable failures
// (transient, rate limited) count against the breaker; not-found or
// validation errors pass through without tripping it. While open, calls
// fail fast with a transient *Error.
func WithBreaker(next Gateway, s BreakerSettings) Gateway {
	def := DefaultBreakerSettings()
	if s.Name == "" {
		s.Name = def.Name
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = def.FailureThreshold
	}
	if s.Timeout <= 0 {
		s.Timeout = def.Timeout
	}
	logger := s.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if s.OnStateChange != nil {
				s.OnStateChange(name, from, to)
			}
		},
	}

	return &breakerGateway{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func call[T any](b *breakerGateway, op string, fn func() (T, error)) (T, error) {
	var zero T

	res, err := b.cb.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &Error{Kind: KindTransient, Op: op, Code: "circuit_open", Err: err}
		}
		return zero, err
	}

	v, _ := res.(T)
	return v, nil
}

func (b *breakerGateway) Create(ctx context.Context, opts CreateOptions) (*billing.Customer, error) {
	return call(b, "create", func() (*billing.Customer, error) { return b.next.Create(ctx, opts) })
}

func (b *breakerGateway) Update(ctx context.Context, customerID string, opts UpdateOptions) (*billing.Customer, error) {
	return call(b, "update", func() (*billing.Customer, error) { return b.next.Update(ctx, customerID, opts) })
}

func (b *breakerGateway) Cancel(ctx context.Context, customerID string, atPeriodEnd bool) (*billing.Subscription, error) {
	return call(b, "cancel", func() (*billing.Subscription, error) { return b.next.Cancel(ctx, customerID, atPeriodEnd) })
}

func (b *breakerGateway) Invoices(ctx context.Context, customerID string) ([]billing.Invoice, error) {
	return call(b, "invoices", func() ([]billing.Invoice, error) { return b.next.Invoices(ctx, customerID) })
}

func (b *breakerGateway) NextInvoice(ctx context.Context, customerID string) (*billing.Invoice, error) {
	return call(b, "next invoice", func() (*billing.Invoice, error) { return b.next.NextInvoice(ctx, customerID) })
}

func (b *breakerGateway) Event(ctx context.Context, eventID string) (*billing.Event, error) {
	return call(b, "event", func() (*billing.Event, error) { return b.next.Event(ctx, eventID) })
}

func (b *breakerGateway) InvoiceItem(ctx context.Context, opts InvoiceItemOptions) (*billing.InvoiceItem, error) {
	return call(b, "invoice item", func() (*billing.InvoiceItem, error) { return b.next.InvoiceItem(ctx, opts) })
}
