package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v79"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/gateway"
)

// normalize turns a stripe-go failure into a *gateway.Error.
func normalize(op string, err error) error {
	if err == nil {
		return nil
	}

	var serr *stripego.Error
	if errors.As(err, &serr) {
		return &gateway.Error{
			Kind: kindForStatus(serr.HTTPStatusCode),
			Op:   op,
			Code: string(serr.Code),
			Err:  err,
		}
	}

	if errors.Is(err, context.Canceled) {
		return &gateway.Error{Kind: gateway.KindPermanent, Op: op, Err: err}
	}

	// Network failures and timeouts never reached Stripe's error envelope.
	return &gateway.Error{Kind: gateway.KindTransient, Op: op, Err: err}
}

func kindForStatus(status int) gateway.Kind {
	switch {
	case status == http.StatusNotFound:
		return gateway.KindNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return gateway.KindUnauthorized
	case status == http.StatusTooManyRequests:
		return gateway.KindRateLimited
	case status >= 500, status == http.StatusConflict:
		return gateway.KindTransient
	default:
		return gateway.KindPermanent
	}
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func toSubscription(sub *stripego.Subscription) *billing.Subscription {
	if sub == nil {
		return nil
	}

	out := &billing.Subscription{
		ID:         sub.ID,
		Status:     billing.Status(sub.Status),
		TrialEnd:   unixTime(sub.TrialEnd),
		CurrentEnd: unixTime(sub.CurrentPeriodEnd),
	}

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.Quantity = item.Quantity
		switch {
		case item.Plan != nil:
			out.Plan = item.Plan.ID
		case item.Price != nil:
			out.Plan = item.Price.ID
		}
	}

	return out
}

func toCard(cus *stripego.Customer) *billing.Card {
	if cus.DefaultSource != nil && cus.DefaultSource.Card != nil {
		c := cus.DefaultSource.Card
		return &billing.Card{LastFour: c.Last4, ExpMonth: int(c.ExpMonth), ExpYear: int(c.ExpYear)}
	}

	if cus.InvoiceSettings != nil && cus.InvoiceSettings.DefaultPaymentMethod != nil &&
		cus.InvoiceSettings.DefaultPaymentMethod.Card != nil {
		c := cus.InvoiceSettings.DefaultPaymentMethod.Card
		return &billing.Card{LastFour: c.Last4, ExpMonth: int(c.ExpMonth), ExpYear: int(c.ExpYear)}
	}

	return nil
}

func firstSubscription(cus *stripego.Customer) *stripego.Subscription {
	if cus == nil || cus.Subscriptions == nil || len(cus.Subscriptions.Data) == 0 {
		return nil
	}
	return cus.Subscriptions.Data[0]
}

// toCustomer builds the customer value. sub may be nil, in which case the
// customer's first listed subscription is used.
func toCustomer(cus *stripego.Customer, sub *stripego.Subscription) *billing.Customer {
	if sub == nil {
		sub = firstSubscription(cus)
	}
	return &billing.Customer{
		ID:           cus.ID,
		Email:        cus.Email,
		Subscription: toSubscription(sub),
		Card:         toCard(cus),
	}
}

func toInvoice(inv *stripego.Invoice) billing.Invoice {
	out := billing.Invoice{
		ID:          inv.ID,
		Currency:    string(inv.Currency),
		Date:        time.Unix(inv.Created, 0).UTC(),
		PeriodStart: time.Unix(inv.PeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(inv.PeriodEnd, 0).UTC(),
		Total:       inv.Total,
		Subtotal:    inv.Subtotal,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	return out
}

func toEvent(ev *stripego.Event) (*billing.Event, error) {
	out := &billing.Event{
		ID:      ev.ID,
		Type:    string(ev.Type),
		Created: time.Unix(ev.Created, 0).UTC(),
	}
	if ev.Data == nil {
		return out, nil
	}

	if strings.HasPrefix(out.Type, "invoice.") {
		var inv stripego.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return nil, &gateway.Error{Kind: gateway.KindPermanent, Op: "decode event", Err: fmt.Errorf("invoice payload: %w", err)}
		}
		decoded := toInvoice(&inv)
		out.Invoice = &decoded
		out.CustomerID = decoded.CustomerID
		return out, nil
	}

	if customer, ok := ev.Data.Object["customer"].(string); ok {
		out.CustomerID = customer
	}
	return out, nil
}
