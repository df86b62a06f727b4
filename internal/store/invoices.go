package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Mayank009/cashew/internal/billing"
)

const defaultInvoiceCount = 10

// StoreInvoice inserts an invoice for the user. The discount column always
// holds subtotal minus total.
func (s *SubscriptionStore) StoreInvoice(ctx context.Context, userID string, inv billing.Invoice) (int64, error) {
	if userID == "" || inv.ID == "" {
		return 0, fmt.Errorf("store: store invoice: %w", billing.ErrInvalidArgument)
	}

	query := fmt.Sprintf(`INSERT INTO %s (user_id, customer_id, subscription_id, invoice_id, currency, date, period_start, period_end, total, subtotal, discount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
RETURNING id`, s.tables.Invoices)

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		userID,
		inv.CustomerID,
		inv.SubscriptionID,
		inv.ID,
		inv.Currency,
		inv.Date.UTC(),
		inv.PeriodStart.UTC(),
		inv.PeriodEnd.UTC(),
		inv.Total,
		inv.Subtotal,
		inv.Discount(),
		s.timestamp(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("store: store invoice %s: %w", inv.ID, billing.ErrConflict)
		}
		return 0, fmt.Errorf("store: store invoice: %w", err)
	}

	return id, nil
}

// Invoices returns up to count invoices of the user, most recent first.
// A count of zero or less means ten.
func (s *SubscriptionStore) Invoices(ctx context.Context, userID string, count int) ([]billing.Invoice, error) {
	if userID == "" {
		return nil, fmt.Errorf("store: list invoices: %w", billing.ErrInvalidArgument)
	}
	if count <= 0 {
		count = defaultInvoiceCount
	}

	query := fmt.Sprintf(`SELECT user_id, customer_id, subscription_id, invoice_id, currency, date, period_start, period_end, total, subtotal, created_at
FROM %s
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`, s.tables.Invoices)

	rows, err := s.db.QueryContext(ctx, query, userID, count)
	if err != nil {
		return nil, fmt.Errorf("store: list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		var (
			inv            billing.Invoice
			subscriptionID sql.NullString
		)

		if err := rows.Scan(
			&inv.UserID,
			&inv.CustomerID,
			&subscriptionID,
			&inv.ID,
			&inv.Currency,
			&inv.Date,
			&inv.PeriodStart,
			&inv.PeriodEnd,
			&inv.Total,
			&inv.Subtotal,
			&inv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan invoice: %w", err)
		}

		inv.SubscriptionID = subscriptionID.String
		invoices = append(invoices, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate invoices: %w", err)
	}

	return invoices, nil
}
