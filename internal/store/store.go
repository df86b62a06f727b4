package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/config"
	"github.com/Mayank009/cashew/internal/models"
)

const uniqueViolation = "23505"

const subscriptionColumns = `id, user_id, customer_id, subscription_id, plan, quantity, status,
  trial_ends_at, subscription_ends_at, last_four, card_exp_date,
  created_at, updated_at, subscribed_at, canceled_at, expired_at`

// SubscriptionStore persists subscription and invoice records. Every
// mutation is keyed by user id and relies on row-level atomicity only.
type SubscriptionStore struct {
	db     *sql.DB
	tables config.Tables
	now    func() time.Time
}

// New creates a SubscriptionStore using the provided sql.DB connection and
// the table names resolved at startup.
func New(db *sql.DB, tables config.Tables) (*SubscriptionStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return &SubscriptionStore{db: db, tables: tables, now: time.Now}, nil
}

// WithClock replaces the clock used for timestamps and lifecycle end dates.
func (s *SubscriptionStore) WithClock(now func() time.Time) *SubscriptionStore {
	s.now = now
	return s
}

func (s *SubscriptionStore) timestamp() time.Time {
	return s.now().UTC()
}

// Subscription returns the record of a user, or of a gateway customer when
// byCustomer is set.
func (s *SubscriptionStore) Subscription(ctx context.Context, id string, byCustomer bool) (*models.Subscription, error) {
	if id == "" {
		return nil, fmt.Errorf("store: get subscription: %w: empty id", billing.ErrInvalidArgument)
	}

	column := "user_id"
	if byCustomer {
		column = "customer_id"
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, subscriptionColumns, s.tables.Subscriptions, column)

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: get subscription by %s: %w", column, billing.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get subscription by %s: %w", column, err)
	}

	return sub, nil
}

// Create inserts the record for a new gateway customer. Status and trial end
// are stored exactly as the gateway reported them.
func (s *SubscriptionStore) Create(ctx context.Context, userID string, customer *billing.Customer) (int64, error) {
	if userID == "" || customer == nil || customer.ID == "" || customer.Subscription == nil {
		return 0, fmt.Errorf("store: create subscription: %w", billing.ErrInvalidArgument)
	}

	sub := customer.Subscription
	now := s.timestamp()

	query := fmt.Sprintf(`INSERT INTO %s (user_id, customer_id, subscription_id, plan, quantity, status, trial_ends_at, last_four, card_exp_date, subscribed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10, $10)
RETURNING id`, s.tables.Subscriptions)

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		userID,
		customer.ID,
		sub.ID,
		sub.Plan,
		sub.Quantity,
		string(sub.Status),
		sub.TrialEnd,
		lastFour(customer.Card),
		cardExpiry(customer.Card),
		now,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("store: create subscription: %w", billing.ErrConflict)
		}
		return 0, fmt.Errorf("store: create subscription: %w", err)
	}

	return id, nil
}

// Customer refreshes the gateway customer id and card details.
func (s *SubscriptionStore) Customer(ctx context.Context, userID string, customer *billing.Customer) error {
	if userID == "" || customer == nil || customer.ID == "" {
		return fmt.Errorf("store: update customer: %w", billing.ErrInvalidArgument)
	}

	query := fmt.Sprintf(`UPDATE %s SET customer_id = $1, last_four = $2, card_exp_date = $3, updated_at = $4 WHERE user_id = $5`,
		s.tables.Subscriptions)

	return s.execForUser(ctx, "update customer", query,
		customer.ID,
		lastFour(customer.Card),
		cardExpiry(customer.Card),
		s.timestamp(),
		userID,
	)
}

// Subscribe records a (re)activated subscription and clears any pending end.
func (s *SubscriptionStore) Subscribe(ctx context.Context, userID string, sub *billing.Subscription) error {
	if userID == "" || sub == nil {
		return fmt.Errorf("store: subscribe: %w", billing.ErrInvalidArgument)
	}

	query := fmt.Sprintf(`UPDATE %s SET subscription_id = $1, trial_ends_at = $2, plan = $3, quantity = $4, status = $5, subscription_ends_at = NULL, subscribed_at = $6, updated_at = $6 WHERE user_id = $7`,
		s.tables.Subscriptions)

	return s.execForUser(ctx, "subscribe", query,
		sub.ID,
		sub.TrialEnd,
		sub.Plan,
		sub.Quantity,
		string(sub.Status),
		s.timestamp(),
		userID,
	)
}

// Update refreshes subscription and card fields from the gateway customer.
// It never stops a subscription: subscription_ends_at is always cleared.
func (s *SubscriptionStore) Update(ctx context.Context, userID string, customer *billing.Customer) error {
	if userID == "" || customer == nil || customer.Subscription == nil {
		return fmt.Errorf("store: update subscription: %w", billing.ErrInvalidArgument)
	}

	sub := customer.Subscription
	query := fmt.Sprintf(`UPDATE %s SET subscription_id = $1, trial_ends_at = $2, plan = $3, quantity = $4, status = $5, last_four = $6, card_exp_date = $7, subscription_ends_at = NULL, updated_at = $8 WHERE user_id = $9`,
		s.tables.Subscriptions)

	return s.execForUser(ctx, "update subscription", query,
		sub.ID,
		sub.TrialEnd,
		sub.Plan,
		sub.Quantity,
		string(sub.Status),
		lastFour(customer.Card),
		cardExpiry(customer.Card),
		s.timestamp(),
		userID,
	)
}

// UpdateStatus changes the status only.
func (s *SubscriptionStore) UpdateStatus(ctx context.Context, userID string, status billing.Status) error {
	if userID == "" || status == "" {
		return fmt.Errorf("store: update status: %w", billing.ErrInvalidArgument)
	}

	query := fmt.Sprintf(`UPDATE %s SET status = $1, updated_at = $2 WHERE user_id = $3`, s.tables.Subscriptions)
	return s.execForUser(ctx, "update status", query, string(status), s.timestamp(), userID)
}

// Resume clears the pending end and cancellation stamp. The status is left
// untouched; callers pair it with UpdateStatus.
func (s *SubscriptionStore) Resume(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("store: resume: %w", billing.ErrInvalidArgument)
	}

	query := fmt.Sprintf(`UPDATE %s SET subscription_ends_at = NULL, canceled_at = NULL, updated_at = $1 WHERE user_id = $2`, s.tables.Subscriptions)
	return s.execForUser(ctx, "resume", query, s.timestamp(), userID)
}

// Cancel marks the record canceled and stores the subscription's effective
// end as subscription_ends_at.
func (s *SubscriptionStore) Cancel(ctx context.Context, userID string, sub *billing.Subscription) error {
	if userID == "" || sub == nil {
		return fmt.Errorf("store: cancel: %w", billing.ErrInvalidArgument)
	}

	now := s.timestamp()
	query := fmt.Sprintf(`UPDATE %s SET subscription_ends_at = $1, status = $2, canceled_at = $3, updated_at = $3 WHERE user_id = $4`, s.tables.Subscriptions)

	return s.execForUser(ctx, "cancel", query,
		sub.EndAt(now),
		string(billing.StatusCanceled),
		now,
		userID,
	)
}

// Expire marks the record expired.
func (s *SubscriptionStore) Expire(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("store: expire: %w", billing.ErrInvalidArgument)
	}

	query := fmt.Sprintf(`UPDATE %s SET status = $1, expired_at = $2, subscription_ends_at = NULL, updated_at = $2 WHERE user_id = $3`, s.tables.Subscriptions)
	return s.execForUser(ctx, "expire", query, string(billing.StatusExpired), s.timestamp(), userID)
}

// EachWithCard streams every record with a card on file to fn, one at a
// time. A non-empty userID restricts the scan to that user. An error from fn
// stops the scan and is returned.
func (s *SubscriptionStore) EachWithCard(ctx context.Context, userID string, fn func(models.Subscription) error) error {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE last_four IS NOT NULL`, subscriptionColumns, s.tables.Subscriptions)
	args := []any{}
	if userID != "" {
		query += ` AND user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: list card subscriptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return fmt.Errorf("store: scan subscription: %w", err)
		}
		if err := fn(*sub); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: iterate card subscriptions: %w", err)
	}

	return nil
}

// EndedCancellations returns the users whose canceled subscription ended at
// or before now.
func (s *SubscriptionStore) EndedCancellations(ctx context.Context, now time.Time) ([]string, error) {
	query := fmt.Sprintf(`SELECT user_id FROM %s WHERE status = $1 AND subscription_ends_at IS NOT NULL AND subscription_ends_at <= $2 ORDER BY subscription_ends_at`,
		s.tables.Subscriptions)

	rows, err := s.db.QueryContext(ctx, query, string(billing.StatusCanceled), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: list ended cancellations: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("store: scan ended cancellation: %w", err)
		}
		users = append(users, userID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate ended cancellations: %w", err)
	}

	return users, nil
}

func (s *SubscriptionStore) execForUser(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s: %w", op, billing.ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub            models.Subscription
		subscriptionID sql.NullString
		plan           sql.NullString
		status         string
		trialEndsAt    sql.NullTime
		endsAt         sql.NullTime
		last           sql.NullString
		cardExp        sql.NullTime
		subscribedAt   sql.NullTime
		canceledAt     sql.NullTime
		expiredAt      sql.NullTime
	)

	if err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.CustomerID,
		&subscriptionID,
		&plan,
		&sub.Quantity,
		&status,
		&trialEndsAt,
		&endsAt,
		&last,
		&cardExp,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&subscribedAt,
		&canceledAt,
		&expiredAt,
	); err != nil {
		return nil, err
	}

	sub.SubscriptionID = subscriptionID.String
	sub.Plan = plan.String
	sub.Status = billing.Status(status)
	sub.TrialEndsAt = nullTimePtr(trialEndsAt)
	sub.EndsAt = nullTimePtr(endsAt)
	sub.LastFour = nullStringPtr(last)
	sub.CardExpDate = nullTimePtr(cardExp)
	sub.SubscribedAt = nullTimePtr(subscribedAt)
	sub.CanceledAt = nullTimePtr(canceledAt)
	sub.ExpiredAt = nullTimePtr(expiredAt)

	return &sub, nil
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func lastFour(card *billing.Card) *string {
	if card == nil || card.LastFour == "" {
		return nil
	}
	v := card.LastFour
	return &v
}

func cardExpiry(card *billing.Card) *time.Time {
	if card == nil {
		return nil
	}
	exp := card.ExpiresOn()
	if exp.IsZero() {
		return nil
	}
	return &exp
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
