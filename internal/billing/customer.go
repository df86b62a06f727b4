package billing

import "time"

// Card is the customer's default payment card.
type Card struct {
	LastFour string
	ExpMonth int
	ExpYear  int
}

// ExpiresOn returns the last calendar day the card is valid, in UTC.
// The zero time is returned when the expiry is unknown.
func (c Card) ExpiresOn() time.Time {
	if c.ExpYear == 0 || c.ExpMonth < 1 || c.ExpMonth > 12 {
		return time.Time{}
	}
	firstOfNext := time.Date(c.ExpYear, time.Month(c.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1)
}

// Customer is a gateway customer with its (optional) subscription and card.
type Customer struct {
	ID           string
	Email        string
	Subscription *Subscription
	Card         *Card
}

// LastFour returns the card's last four digits or "" without a card.
func (c Customer) LastFour() string {
	if c.Card == nil {
		return ""
	}
	return c.Card.LastFour
}

// EventInvoiceCreated is the gateway notification emitted when an invoice
// is drafted for a customer.
const EventInvoiceCreated = "invoice.created"

// Event is a gateway notification.
type Event struct {
	ID         string
	Type       string
	CustomerID string
	Created    time.Time

	// Set for invoice.* events.
	Invoice *Invoice
}

// InvoiceItem is a one-off line added to a customer's upcoming invoice.
type InvoiceItem struct {
	ID          string
	CustomerID  string
	InvoiceID   string
	Amount      int64
	Currency    string
	Description string
}
