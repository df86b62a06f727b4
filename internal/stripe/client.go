// Package stripe implements gateway.Gateway on top of the Stripe API.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/gateway"
)

// NewAPI builds an authenticated Stripe client. The HTTP client bounds
// every gateway call with its own timeout.
func NewAPI(secretKey string, httpClient *http.Client) *client.API {
	return client.New(secretKey, stripego.NewBackends(httpClient))
}

// Gateway wraps Stripe API calls and normalizes the results.
type Gateway struct {
	api    *client.API
	logger hclog.Logger
}

var _ gateway.Gateway = (*Gateway)(nil)

// New creates a Stripe gateway from an already authenticated client.
func New(api *client.API, logger hclog.Logger) *Gateway {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Gateway{api: api, logger: logger}
}

// Create creates a Stripe customer and subscribes it to opts.Plan.
func (g *Gateway) Create(ctx context.Context, opts gateway.CreateOptions) (*billing.Customer, error) {
	if err := gateway.Validate(opts); err != nil {
		return nil, err
	}

	cp := &stripego.CustomerParams{}
	cp.Context = ctx
	if opts.Email != "" {
		cp.Email = stripego.String(opts.Email)
	}
	if opts.Description != "" {
		cp.Description = stripego.String(opts.Description)
	}
	if opts.Source != "" {
		cp.Source = stripego.String(opts.Source)
	}
	for k, v := range opts.Metadata {
		cp.AddMetadata(k, v)
	}
	cp.AddExpand("default_source")

	cus, err := g.api.Customers.New(cp)
	if err != nil {
		return nil, normalize("create customer", err)
	}

	sub, err := g.newSubscription(ctx, cus.ID, opts.Plan, opts.Quantity, opts.TrialEnd)
	if err != nil {
		return nil, err
	}

	g.logger.Info("created customer", "customer_id", cus.ID, "subscription_id", sub.ID, "plan", opts.Plan)
	return toCustomer(cus, sub), nil
}

// Update replaces the card and/or changes plan and quantity on the
// customer's current subscription item. Stripe does not list canceled
// subscriptions on the customer, so a customer without one gets a new
// subscription when opts.Plan is set.
func (g *Gateway) Update(ctx context.Context, customerID string, opts gateway.UpdateOptions) (*billing.Customer, error) {
	if customerID == "" {
		return nil, fmt.Errorf("stripe: update: %w: empty customer id", billing.ErrInvalidArgument)
	}
	if err := gateway.Validate(opts); err != nil {
		return nil, err
	}

	if opts.Source != "" {
		cp := &stripego.CustomerParams{Source: stripego.String(opts.Source)}
		cp.Context = ctx
		if _, err := g.api.Customers.Update(customerID, cp); err != nil {
			return nil, normalize("update customer", err)
		}
	}

	cus, err := g.customer(ctx, customerID)
	if err != nil {
		return nil, normalize("get customer", err)
	}

	sub := firstSubscription(cus)
	if sub == nil && opts.Plan != "" {
		sub, err = g.newSubscription(ctx, customerID, opts.Plan, opts.Quantity, opts.TrialEnd)
		if err != nil {
			return nil, err
		}
		g.logger.Info("resubscribed customer", "customer_id", customerID, "subscription_id", sub.ID, "plan", opts.Plan)
		return toCustomer(cus, sub), nil
	}
	if sub != nil && (opts.Plan != "" || opts.Quantity > 0 || opts.EndTrialNow || opts.Resume) {
		sp := &stripego.SubscriptionParams{}
		sp.Context = ctx
		if opts.Plan != "" || opts.Quantity > 0 {
			item := &stripego.SubscriptionItemsParams{}
			if sub.Items != nil && len(sub.Items.Data) > 0 {
				item.ID = stripego.String(sub.Items.Data[0].ID)
			}
			if opts.Plan != "" {
				item.Plan = stripego.String(opts.Plan)
			}
			item.Quantity = quantity(opts.Quantity)
			sp.Items = []*stripego.SubscriptionItemsParams{item}
		}
		if opts.EndTrialNow {
			sp.TrialEndNow = stripego.Bool(true)
		}
		if opts.Resume {
			sp.CancelAtPeriodEnd = stripego.Bool(false)
		}

		sub, err = g.api.Subscriptions.Update(sub.ID, sp)
		if err != nil {
			return nil, normalize("update subscription", err)
		}
	}

	return toCustomer(cus, sub), nil
}

// Cancel cancels the customer's subscription. With atPeriodEnd the
// subscription stays active until the current period ends.
func (g *Gateway) Cancel(ctx context.Context, customerID string, atPeriodEnd bool) (*billing.Subscription, error) {
	if customerID == "" {
		return nil, fmt.Errorf("stripe: cancel: %w: empty customer id", billing.ErrInvalidArgument)
	}

	cus, err := g.customer(ctx, customerID)
	if err != nil {
		return nil, normalize("get customer", err)
	}

	current := firstSubscription(cus)
	if current == nil {
		return nil, &gateway.Error{Kind: gateway.KindNotFound, Op: "cancel", Code: "no_subscription"}
	}

	var sub *stripego.Subscription
	if atPeriodEnd {
		sp := &stripego.SubscriptionParams{CancelAtPeriodEnd: stripego.Bool(true)}
		sp.Context = ctx
		sub, err = g.api.Subscriptions.Update(current.ID, sp)
	} else {
		cp := &stripego.SubscriptionCancelParams{}
		cp.Context = ctx
		sub, err = g.api.Subscriptions.Cancel(current.ID, cp)
	}
	if err != nil {
		return nil, normalize("cancel subscription", err)
	}

	g.logger.Info("canceled subscription", "customer_id", customerID, "subscription_id", sub.ID, "at_period_end", atPeriodEnd)
	return toSubscription(sub), nil
}

// Invoices lists every invoice of the customer, newest first.
func (g *Gateway) Invoices(ctx context.Context, customerID string) ([]billing.Invoice, error) {
	if customerID == "" {
		return nil, fmt.Errorf("stripe: invoices: %w: empty customer id", billing.ErrInvalidArgument)
	}

	params := &stripego.InvoiceListParams{Customer: stripego.String(customerID)}
	params.Context = ctx

	var invoices []billing.Invoice
	it := g.api.Invoices.List(params)
	for it.Next() {
		invoices = append(invoices, toInvoice(it.Invoice()))
	}
	if err := it.Err(); err != nil {
		return nil, normalize("list invoices", err)
	}

	return invoices, nil
}

// NextInvoice previews the customer's upcoming invoice.
func (g *Gateway) NextInvoice(ctx context.Context, customerID string) (*billing.Invoice, error) {
	if customerID == "" {
		return nil, fmt.Errorf("stripe: next invoice: %w: empty customer id", billing.ErrInvalidArgument)
	}

	params := &stripego.InvoiceUpcomingParams{Customer: stripego.String(customerID)}
	params.Context = ctx

	inv, err := g.api.Invoices.Upcoming(params)
	if err != nil {
		return nil, normalize("upcoming invoice", err)
	}

	out := toInvoice(inv)
	return &out, nil
}

// Event fetches an event by id. invoice.* events carry the decoded invoice.
func (g *Gateway) Event(ctx context.Context, eventID string) (*billing.Event, error) {
	if eventID == "" {
		return nil, fmt.Errorf("stripe: event: %w: empty event id", billing.ErrInvalidArgument)
	}

	params := &stripego.EventParams{}
	params.Context = ctx

	ev, err := g.api.Events.Get(eventID, params)
	if err != nil {
		return nil, normalize("get event", err)
	}

	return toEvent(ev)
}

// InvoiceItem adds a one-off line to the customer's next invoice.
func (g *Gateway) InvoiceItem(ctx context.Context, opts gateway.InvoiceItemOptions) (*billing.InvoiceItem, error) {
	if err := gateway.Validate(opts); err != nil {
		return nil, err
	}

	params := &stripego.InvoiceItemParams{
		Customer: stripego.String(opts.CustomerID),
		Amount:   stripego.Int64(opts.Amount),
		Currency: stripego.String(strings.ToLower(opts.Currency)),
	}
	params.Context = ctx
	if opts.Description != "" {
		params.Description = stripego.String(opts.Description)
	}
	if opts.InvoiceID != "" {
		params.Invoice = stripego.String(opts.InvoiceID)
	}

	item, err := g.api.InvoiceItems.New(params)
	if err != nil {
		return nil, normalize("create invoice item", err)
	}

	out := &billing.InvoiceItem{
		ID:          item.ID,
		CustomerID:  opts.CustomerID,
		Amount:      item.Amount,
		Currency:    string(item.Currency),
		Description: item.Description,
	}
	if item.Invoice != nil {
		out.InvoiceID = item.Invoice.ID
	}
	return out, nil
}

func (g *Gateway) newSubscription(ctx context.Context, customerID, plan string, qty int64, trialEnd *time.Time) (*stripego.Subscription, error) {
	sp := &stripego.SubscriptionParams{
		Customer: stripego.String(customerID),
		Items: []*stripego.SubscriptionItemsParams{
			{Plan: stripego.String(plan), Quantity: quantity(qty)},
		},
	}
	sp.Context = ctx
	if trialEnd != nil {
		sp.TrialEnd = stripego.Int64(trialEnd.Unix())
	}

	sub, err := g.api.Subscriptions.New(sp)
	if err != nil {
		return nil, normalize("create subscription", err)
	}
	return sub, nil
}

func (g *Gateway) customer(ctx context.Context, customerID string) (*stripego.Customer, error) {
	params := &stripego.CustomerParams{}
	params.Context = ctx
	params.AddExpand("default_source")
	params.AddExpand("subscriptions")
	params.AddExpand("invoice_settings.default_payment_method")

	return g.api.Customers.Get(customerID, params)
}

// ValidateSignature checks the Stripe-Signature header of a webhook payload.
func ValidateSignature(payload []byte, header, secret string) error {
	if err := webhook.ValidatePayload(payload, header, secret); err != nil {
		return fmt.Errorf("stripe: validate webhook signature: %w", err)
	}
	return nil
}

// ParseWebhookEvent extracts the event id and type from a raw webhook body.
// The event itself is re-fetched from the API before it is trusted.
func ParseWebhookEvent(body []byte) (id, eventType string, err error) {
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", "", fmt.Errorf("stripe: parse webhook event: %w", err)
	}
	if envelope.ID == "" {
		return "", "", fmt.Errorf("stripe: parse webhook event: %w: missing id", billing.ErrInvalidArgument)
	}
	return envelope.ID, envelope.Type, nil
}

func quantity(q int64) *int64 {
	if q <= 0 {
		return nil
	}
	return stripego.Int64(q)
}
