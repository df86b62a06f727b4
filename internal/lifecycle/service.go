// Package lifecycle drives subscription transitions: every flow calls the
// gateway first and then persists the gateway's answer explicitly.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/events"
	"github.com/Mayank009/cashew/internal/gateway"
	"github.com/Mayank009/cashew/internal/metrics"
	"github.com/Mayank009/cashew/internal/models"
)

// Store is the persistence the service needs.
type Store interface {
	Subscription(ctx context.Context, id string, byCustomer bool) (*models.Subscription, error)
	Create(ctx context.Context, userID string, customer *billing.Customer) (int64, error)
	Customer(ctx context.Context, userID string, customer *billing.Customer) error
	Subscribe(ctx context.Context, userID string, sub *billing.Subscription) error
	Update(ctx context.Context, userID string, customer *billing.Customer) error
	UpdateStatus(ctx context.Context, userID string, status billing.Status) error
	Resume(ctx context.Context, userID string) error
	Cancel(ctx context.Context, userID string, sub *billing.Subscription) error
	Expire(ctx context.Context, userID string) error
	StoreInvoice(ctx context.Context, userID string, inv billing.Invoice) (int64, error)
	Invoices(ctx context.Context, userID string, count int) ([]billing.Invoice, error)
	EndedCancellations(ctx context.Context, now time.Time) ([]string, error)
}

// Service orchestrates gateway and store calls. Flows for the same user are
// serialized within this process; across processes the last write wins.
type Service struct {
	gw     gateway.Gateway
	store  Store
	sink   events.Sink
	logger hclog.Logger
	now    func() time.Time
	locks  *keyedMutex
}

// New creates the service. sink may be nil, in which case lifecycle events
// are not emitted.
func New(gw gateway.Gateway, store Store, sink events.Sink, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		gw:     gw,
		store:  store,
		sink:   sink,
		logger: logger,
		now:    time.Now,
		locks:  newKeyedMutex(),
	}
}

// WithClock replaces the clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Subscribe starts a subscription for the user. A user with an existing
// record, including a canceled or expired one, is re-subscribed on the same
// gateway customer.
func (s *Service) Subscribe(ctx context.Context, userID string, opts gateway.CreateOptions) (*billing.Customer, error) {
	if userID == "" {
		return nil, fmt.Errorf("lifecycle: subscribe: %w: empty user id", billing.ErrInvalidArgument)
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	existing, err := s.store.Subscription(ctx, userID, false)
	switch {
	case err == nil:
		customer, err := s.gw.Update(ctx, existing.CustomerID, gateway.UpdateOptions{
			Source:   opts.Source,
			Plan:     opts.Plan,
			Quantity: opts.Quantity,
			TrialEnd: opts.TrialEnd,
		})
		if err != nil {
			return nil, s.fail("subscribe", fmt.Errorf("lifecycle: subscribe: %w", err))
		}
		if customer.Subscription == nil {
			return nil, s.fail("subscribe", fmt.Errorf("lifecycle: subscribe: %w: customer %s has no subscription", billing.ErrNotFound, customer.ID))
		}
		if err := s.store.Subscribe(ctx, userID, customer.Subscription); err != nil {
			return nil, s.fail("subscribe", fmt.Errorf("lifecycle: subscribe: %w", err))
		}
		if customer.Card != nil {
			if err := s.store.Customer(ctx, userID, customer); err != nil {
				return nil, s.fail("subscribe", fmt.Errorf("lifecycle: subscribe: %w", err))
			}
		}
		s.done("subscribe", userID)
		return customer, nil

	case errors.Is(err, billing.ErrNotFound):
		customer, err := s.gw.Create(ctx, opts)
		if err != nil {
			return nil, s.fail("subscribe", fmt.Errorf("lifecycle: subscribe: %w", err))
		}
		if _, err := s.store.Create(ctx, userID, customer); err != nil {
			return nil, s.fail("subscribe", fmt.Errorf("lifecycle: subscribe: %w", err))
		}
		s.done("subscribe", userID)
		return customer, nil

	default:
		return nil, s.fail("subscribe", fmt.Errorf("lifecycle: subscribe: %w", err))
	}
}

// UpdateCard replaces the card on file with a new tokenized card.
func (s *Service) UpdateCard(ctx context.Context, userID, source string) error {
	if source == "" {
		return fmt.Errorf("lifecycle: update card: %w: empty source", billing.ErrInvalidArgument)
	}
	return s.withRecord(ctx, "update card", userID, func(rec *models.Subscription) error {
		customer, err := s.gw.Update(ctx, rec.CustomerID, gateway.UpdateOptions{Source: source})
		if err != nil {
			return err
		}
		return s.store.Customer(ctx, userID, customer)
	})
}

// ChangePlan swaps plan and/or quantity. The record's pending end, if any,
// is cleared by the store update.
func (s *Service) ChangePlan(ctx context.Context, userID, plan string, quantity int64) error {
	return s.withRecord(ctx, "change plan", userID, func(rec *models.Subscription) error {
		customer, err := s.gw.Update(ctx, rec.CustomerID, gateway.UpdateOptions{Plan: plan, Quantity: quantity})
		if err != nil {
			return err
		}
		if customer.Subscription == nil {
			return fmt.Errorf("%w: customer %s has no subscription", billing.ErrNotFound, customer.ID)
		}
		return s.store.Update(ctx, userID, customer)
	})
}

// Cancel cancels at the gateway and records the effective end. An immediate
// cancellation also expires the record.
func (s *Service) Cancel(ctx context.Context, userID string, atPeriodEnd bool) error {
	return s.withRecord(ctx, "cancel", userID, func(rec *models.Subscription) error {
		sub, err := s.gw.Cancel(ctx, rec.CustomerID, atPeriodEnd)
		if err != nil {
			return err
		}
		if err := s.store.Cancel(ctx, userID, sub); err != nil {
			return err
		}
		s.emit(ctx, events.SubscriptionCanceled, userID, map[string]any{
			"at_period_end": atPeriodEnd,
			"ends_at":       sub.EndAt(s.now()),
		})

		if atPeriodEnd {
			return nil
		}
		if err := s.store.Expire(ctx, userID); err != nil {
			return err
		}
		s.emit(ctx, events.SubscriptionExpired, userID, map[string]any{"immediate": true})
		return nil
	})
}

// Resume withdraws a cancellation that has not taken effect yet.
func (s *Service) Resume(ctx context.Context, userID string) error {
	return s.withRecord(ctx, "resume", userID, func(rec *models.Subscription) error {
		if !rec.OnGracePeriod(s.now()) {
			return fmt.Errorf("%w: subscription of user %s is not in its grace period", billing.ErrInvalidArgument, userID)
		}

		customer, err := s.gw.Update(ctx, rec.CustomerID, gateway.UpdateOptions{Resume: true})
		if err != nil {
			return err
		}

		status := billing.StatusActive
		if customer.Subscription != nil && customer.Subscription.Status != "" {
			status = customer.Subscription.Status
		}

		if err := s.store.Resume(ctx, userID); err != nil {
			return err
		}
		if err := s.store.UpdateStatus(ctx, userID, status); err != nil {
			return err
		}
		s.emit(ctx, events.SubscriptionResumed, userID, map[string]any{"status": status})
		return nil
	})
}

// Expire marks the user's record expired. It does not call the gateway.
func (s *Service) Expire(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("lifecycle: expire: %w: empty user id", billing.ErrInvalidArgument)
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := s.store.Expire(ctx, userID); err != nil {
		return s.fail("expire", fmt.Errorf("lifecycle: expire: %w", err))
	}
	s.emit(ctx, events.SubscriptionExpired, userID, map[string]any{"immediate": false})
	s.done("expire", userID)
	return nil
}

// ExpireEnded expires every canceled subscription whose end has passed.
// Failures for one user do not stop the sweep; they are joined into the
// returned error.
func (s *Service) ExpireEnded(ctx context.Context) (int, error) {
	users, err := s.store.EndedCancellations(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("lifecycle: expire ended: %w", err)
	}

	if len(users) == 0 {
		s.logger.Info("no ended subscriptions to expire")
		return 0, nil
	}

	s.logger.Info("expiring ended subscriptions", "count", len(users))

	var (
		expired int
		errs    []error
	)
	for _, userID := range users {
		if err := s.Expire(ctx, userID); err != nil {
			errs = append(errs, err)
			continue
		}
		expired++
	}

	s.logger.Info("expiry sweep complete", "expired", expired, "failed", len(errs), "total", len(users))
	return expired, errors.Join(errs...)
}

// SyncInvoices copies the customer's gateway invoices into the local table.
// Invoices already stored are skipped. It returns the number of new rows.
func (s *Service) SyncInvoices(ctx context.Context, userID string) (int, error) {
	stored := 0
	err := s.withRecord(ctx, "sync invoices", userID, func(rec *models.Subscription) error {
		invoices, err := s.gw.Invoices(ctx, rec.CustomerID)
		if err != nil {
			return err
		}
		for _, inv := range invoices {
			if _, err := s.store.StoreInvoice(ctx, userID, inv); err != nil {
				if errors.Is(err, billing.ErrConflict) {
					continue
				}
				return err
			}
			stored++
		}
		return nil
	})
	return stored, err
}

// Invoices returns the user's most recent stored invoices.
func (s *Service) Invoices(ctx context.Context, userID string, count int) ([]billing.Invoice, error) {
	return s.store.Invoices(ctx, userID, count)
}

// UpcomingInvoice previews the user's next invoice at the gateway.
func (s *Service) UpcomingInvoice(ctx context.Context, userID string) (*billing.Invoice, error) {
	rec, err := s.store.Subscription(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: upcoming invoice: %w", err)
	}
	inv, err := s.gw.NextInvoice(ctx, rec.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: upcoming invoice: %w", err)
	}
	return inv, nil
}

// Charge adds a one-off line to the user's next invoice.
func (s *Service) Charge(ctx context.Context, userID string, amount int64, currency, description string) (*billing.InvoiceItem, error) {
	rec, err := s.store.Subscription(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: charge: %w", err)
	}
	item, err := s.gw.InvoiceItem(ctx, gateway.InvoiceItemOptions{
		CustomerID:  rec.CustomerID,
		Amount:      amount,
		Currency:    currency,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle: charge: %w", err)
	}
	return item, nil
}

func (s *Service) withRecord(ctx context.Context, op, userID string, fn func(rec *models.Subscription) error) error {
	if userID == "" {
		return fmt.Errorf("lifecycle: %s: %w: empty user id", op, billing.ErrInvalidArgument)
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	rec, err := s.store.Subscription(ctx, userID, false)
	if err != nil {
		return s.fail(op, fmt.Errorf("lifecycle: %s: %w", op, err))
	}

	if err := fn(rec); err != nil {
		return s.fail(op, fmt.Errorf("lifecycle: %s: %w", op, err))
	}

	s.done(op, userID)
	return nil
}

func (s *Service) emit(ctx context.Context, name, userID string, payload any) {
	if s.sink == nil {
		return
	}
	e, err := events.New(name, userID, payload, s.now())
	if err == nil {
		err = s.sink.Emit(ctx, e)
	}
	metrics.RecordDomainEvent(name, err)
	if err != nil {
		s.logger.Error("failed to emit event", "event", name, "user_id", userID, "error", err)
	}
}

func (s *Service) fail(op string, err error) error {
	metrics.RecordTransition(op, err)
	s.logger.Error("transition failed", "op", op, "error", err)
	return err
}

func (s *Service) done(op, userID string) {
	metrics.RecordTransition(op, nil)
	s.logger.Info("transition complete", "op", op, "user_id", userID)
}
