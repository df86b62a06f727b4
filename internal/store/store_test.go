package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/config"
	"github.com/Mayank009/cashew/internal/models"
)

var fixedNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*SubscriptionStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	s, err := New(db, config.DefaultTables())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	s.WithClock(func() time.Time { return fixedNow })

	return s, mock
}

func subscriptionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "customer_id", "subscription_id", "plan", "quantity", "status",
		"trial_ends_at", "subscription_ends_at", "last_four", "card_exp_date",
		"created_at", "updated_at", "subscribed_at", "canceled_at", "expired_at",
	})
}

func timePtr(t time.Time) *time.Time { return &t }

func TestNewStoreValidation(t *testing.T) {
	if _, err := New(nil, config.DefaultTables()); err == nil {
		t.Fatal("expected error when db is nil")
	}

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	if _, err := New(db, config.Tables{Subscriptions: "subs", Invoices: "bad name"}); err == nil {
		t.Fatal("expected error for invalid table name")
	}
}

func TestSubscriptionEmptyID(t *testing.T) {
	s, mock := newTestStore(t)

	_, err := s.Subscription(context.Background(), "", false)
	if !errors.Is(err, billing.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubscriptionByCustomer(t *testing.T) {
	s, mock := newTestStore(t)

	rows := subscriptionRows().AddRow(
		7, "u1", "cus_1", "sub_1", "pro", 2, "active",
		nil, nil, "4242", time.Date(2027, 2, 28, 0, 0, 0, 0, time.UTC),
		fixedNow, fixedNow, fixedNow, nil, nil,
	)
	mock.ExpectQuery(`SELECT .* FROM cashew_subscriptions WHERE customer_id = \$1`).
		WithArgs("cus_1").
		WillReturnRows(rows)

	sub, err := s.Subscription(context.Background(), "cus_1", true)
	if err != nil {
		t.Fatalf("Subscription returned error: %v", err)
	}

	if sub.UserID != "u1" || sub.Status != billing.StatusActive || sub.Quantity != 2 {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	if sub.LastFour == nil || *sub.LastFour != "4242" {
		t.Fatalf("expected last four 4242, got %v", sub.LastFour)
	}
	if sub.EndsAt != nil || sub.TrialEndsAt != nil {
		t.Fatalf("expected nil end dates, got %v %v", sub.EndsAt, sub.TrialEndsAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubscriptionNotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT .* FROM cashew_subscriptions WHERE user_id = \$1`).
		WithArgs("ghost").
		WillReturnRows(subscriptionRows())

	_, err := s.Subscription(context.Background(), "ghost", false)
	if !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateStoresRawTrialEnd(t *testing.T) {
	s, mock := newTestStore(t)

	pastTrial := fixedNow.AddDate(0, 0, -3)
	customer := &billing.Customer{
		ID: "cus_1",
		Subscription: &billing.Subscription{
			ID:         "sub_1",
			Plan:       "pro",
			Quantity:   1,
			Status:     billing.StatusActive,
			TrialEnd:   timePtr(pastTrial),
			CurrentEnd: timePtr(fixedNow.AddDate(0, 1, 0)),
		},
		Card: &billing.Card{LastFour: "4242", ExpMonth: 2, ExpYear: 2027},
	}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO cashew_subscriptions (user_id, customer_id`)).
		WithArgs("u1", "cus_1", "sub_1", "pro", int64(1), "active",
			pastTrial, "4242", time.Date(2027, 2, 28, 0, 0, 0, 0, time.UTC), fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	id, err := s.Create(context.Background(), "u1", customer)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateConflict(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO cashew_subscriptions`)).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := s.Create(context.Background(), "u1", &billing.Customer{
		ID:           "cus_1",
		Subscription: &billing.Subscription{ID: "sub_1", Status: billing.StatusActive},
	})
	if !errors.Is(err, billing.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCancelStoresEffectiveEnd(t *testing.T) {
	trialEnd := fixedNow.AddDate(0, 0, 5)
	periodEnd := fixedNow.AddDate(0, 1, 0)

	cases := []struct {
		name string
		sub  *billing.Subscription
		want time.Time
	}{
		{
			name: "trial still running",
			sub:  &billing.Subscription{TrialEnd: timePtr(trialEnd), CurrentEnd: timePtr(periodEnd)},
			want: trialEnd,
		},
		{
			name: "trial over",
			sub:  &billing.Subscription{TrialEnd: timePtr(fixedNow.AddDate(0, 0, -1)), CurrentEnd: timePtr(periodEnd)},
			want: periodEnd,
		},
		{
			name: "no trial",
			sub:  &billing.Subscription{CurrentEnd: timePtr(periodEnd)},
			want: periodEnd,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newTestStore(t)

			mock.ExpectExec(`UPDATE cashew_subscriptions SET subscription_ends_at = \$1, status = \$2, canceled_at = \$3`).
				WithArgs(tc.want, "canceled", fixedNow, "u1").
				WillReturnResult(sqlmock.NewResult(0, 1))

			if err := s.Cancel(context.Background(), "u1", tc.sub); err != nil {
				t.Fatalf("Cancel returned error: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestUpdateClearsSubscriptionEnd(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE cashew_subscriptions SET .* subscription_ends_at = NULL, updated_at = \$8 WHERE user_id = \$9`).
		WithArgs("sub_2", nil, "team", int64(5), "active", "1881", nil, fixedNow, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Update(context.Background(), "u1", &billing.Customer{
		ID:           "cus_1",
		Subscription: &billing.Subscription{ID: "sub_2", Plan: "team", Quantity: 5, Status: billing.StatusActive},
		Card:         &billing.Card{LastFour: "1881"},
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubscribeClearsSubscriptionEnd(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE cashew_subscriptions SET .* subscription_ends_at = NULL, subscribed_at = \$6`).
		WithArgs("sub_3", nil, "pro", int64(1), "trialing", fixedNow, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Subscribe(context.Background(), "u1", &billing.Subscription{
		ID: "sub_3", Plan: "pro", Quantity: 1, Status: billing.StatusTrialing,
	})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResumeLeavesStatus(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE cashew_subscriptions SET subscription_ends_at = NULL, canceled_at = NULL, updated_at = \$1 WHERE user_id = \$2`).
		WithArgs(fixedNow, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Resume(context.Background(), "u1"); err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExpireClearsSubscriptionEnd(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE cashew_subscriptions SET status = \$1, expired_at = \$2, subscription_ends_at = NULL, updated_at = \$2 WHERE user_id = \$3`).
		WithArgs("expired", fixedNow, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Expire(context.Background(), "u1"); err != nil {
		t.Fatalf("Expire returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMutationsOnMissingUser(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE cashew_subscriptions SET status = \$1, expired_at = \$2`).
		WithArgs("expired", fixedNow, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Expire(context.Background(), "ghost")
	if !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.UpdateStatus(context.Background(), "", billing.StatusActive); !errors.Is(err, billing.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestUpdateStatusError(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE cashew_subscriptions SET status = \$1, updated_at = \$2 WHERE user_id = \$3`).
		WithArgs("past_due", fixedNow, "u1").
		WillReturnError(errors.New("boom"))

	if err := s.UpdateStatus(context.Background(), "u1", billing.Status("past_due")); err == nil {
		t.Fatal("expected error when exec fails")
	}
}

func TestEachWithCardFiltersUser(t *testing.T) {
	s, mock := newTestStore(t)

	rows := subscriptionRows().AddRow(
		1, "u1", "cus_1", "sub_1", "pro", 1, "active",
		nil, nil, "4242", time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
		fixedNow, fixedNow, nil, nil, nil,
	)
	mock.ExpectQuery(`SELECT .* FROM cashew_subscriptions WHERE last_four IS NOT NULL AND user_id = \$1 ORDER BY id`).
		WithArgs("u1").
		WillReturnRows(rows)

	var seen []models.Subscription
	err := s.EachWithCard(context.Background(), "u1", func(sub models.Subscription) error {
		seen = append(seen, sub)
		return nil
	})
	if err != nil {
		t.Fatalf("EachWithCard returned error: %v", err)
	}
	if len(seen) != 1 || seen[0].CardExpDate == nil {
		t.Fatalf("unexpected rows: %+v", seen)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEachWithCardStopsOnCallbackError(t *testing.T) {
	s, mock := newTestStore(t)

	rows := subscriptionRows().
		AddRow(1, "u1", "cus_1", "sub_1", "pro", 1, "active", nil, nil, "4242", nil, fixedNow, fixedNow, nil, nil, nil).
		AddRow(2, "u2", "cus_2", "sub_2", "pro", 1, "active", nil, nil, "1881", nil, fixedNow, fixedNow, nil, nil, nil)
	mock.ExpectQuery(`SELECT .* FROM cashew_subscriptions WHERE last_four IS NOT NULL ORDER BY id`).
		WillReturnRows(rows)

	stop := errors.New("stop")
	calls := 0
	err := s.EachWithCard(context.Background(), "", func(models.Subscription) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 callback, got %d", calls)
	}
}

func TestEndedCancellations(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT user_id FROM cashew_subscriptions WHERE status = \$1 AND subscription_ends_at IS NOT NULL`).
		WithArgs("canceled", fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1").AddRow("u2"))

	users, err := s.EndedCancellations(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("EndedCancellations returned error: %v", err)
	}
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Fatalf("unexpected users: %v", users)
	}
}

func TestFindUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	users, err := NewUsers(db)
	if err != nil {
		t.Fatalf("NewUsers returned error: %v", err)
	}

	mock.ExpectQuery(`SELECT id::text, COALESCE\(name, ''\), email FROM users`).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).AddRow("7", "Ada", "ada@example.com"))
	mock.ExpectQuery(`SELECT id::text, COALESCE\(name, ''\), email FROM users`).
		WithArgs("8").
		WillReturnError(sql.ErrNoRows)

	user, err := users.Find(context.Background(), "7")
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if user.Email != "ada@example.com" || user.Name != "Ada" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := users.Find(context.Background(), "8"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func invoiceRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"user_id", "customer_id", "subscription_id", "invoice_id", "currency", "date",
		"period_start", "period_end", "total", "subtotal", "created_at",
	})
}

func TestStoreInvoiceNormalizesTimes(t *testing.T) {
	s, mock := newTestStore(t)

	berlin := time.FixedZone("CET", 3600)
	date := time.Date(2026, 5, 1, 1, 0, 0, 0, berlin)
	start := time.Date(2026, 5, 1, 0, 30, 0, 0, berlin)
	end := time.Date(2026, 6, 1, 0, 30, 0, 0, berlin)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO cashew_invoices (user_id, customer_id`)).
		WithArgs("u1", "cus_1", "sub_1", "in_1", "usd",
			date.UTC(), start.UTC(), end.UTC(), int64(800), int64(1000), int64(200), fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := s.StoreInvoice(context.Background(), "u1", billing.Invoice{
		ID: "in_1", CustomerID: "cus_1", SubscriptionID: "sub_1", Currency: "usd",
		Date: date, PeriodStart: start, PeriodEnd: end, Total: 800, Subtotal: 1000,
	})
	if err != nil {
		t.Fatalf("StoreInvoice returned error: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreInvoiceDiscountOnFreeInvoice(t *testing.T) {
	s, mock := newTestStore(t)

	date := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	// A fully discounted invoice still records the whole subtotal as discount.
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO cashew_invoices`)).
		WithArgs("u1", "cus_1", "", "in_free", "usd",
			date, date, date, int64(0), int64(1500), int64(1500), fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))

	_, err := s.StoreInvoice(context.Background(), "u1", billing.Invoice{
		ID: "in_free", CustomerID: "cus_1", Currency: "usd",
		Date: date, PeriodStart: date, PeriodEnd: date, Total: 0, Subtotal: 1500,
	})
	if err != nil {
		t.Fatalf("StoreInvoice returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreInvoiceConflict(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO cashew_invoices`)).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := s.StoreInvoice(context.Background(), "u1", billing.Invoice{ID: "in_1"})
	if !errors.Is(err, billing.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if _, err := s.StoreInvoice(context.Background(), "u1", billing.Invoice{}); !errors.Is(err, billing.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestInvoicesLimitAndOrder(t *testing.T) {
	s, mock := newTestStore(t)

	newer := fixedNow.Add(-time.Hour)
	older := fixedNow.Add(-2 * time.Hour)

	// The user has five invoices; the database applies the limit.
	mock.ExpectQuery(`SELECT .* FROM cashew_invoices WHERE user_id = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs("u1", 2).
		WillReturnRows(invoiceRows().
			AddRow("u1", "cus_1", "sub_1", "in_5", "usd", newer, newer, newer, int64(1000), int64(1000), newer).
			AddRow("u1", "cus_1", nil, "in_4", "usd", older, older, older, int64(900), int64(1000), older))

	invoices, err := s.Invoices(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("Invoices returned error: %v", err)
	}
	if len(invoices) != 2 {
		t.Fatalf("expected 2 invoices, got %d", len(invoices))
	}
	if invoices[0].ID != "in_5" || invoices[1].ID != "in_4" {
		t.Fatalf("expected newest first, got %s, %s", invoices[0].ID, invoices[1].ID)
	}
	if invoices[1].SubscriptionID != "" {
		t.Fatalf("expected empty subscription id for NULL column, got %q", invoices[1].SubscriptionID)
	}
	if invoices[1].Discount() != 100 {
		t.Fatalf("expected discount 100, got %d", invoices[1].Discount())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInvoicesDefaultCount(t *testing.T) {
	for _, count := range []int{0, -3} {
		s, mock := newTestStore(t)

		mock.ExpectQuery(`SELECT .* FROM cashew_invoices`).
			WithArgs("u1", 10).
			WillReturnRows(invoiceRows())

		invoices, err := s.Invoices(context.Background(), "u1", count)
		if err != nil {
			t.Fatalf("Invoices(%d) returned error: %v", count, err)
		}
		if len(invoices) != 0 {
			t.Fatalf("expected no invoices, got %d", len(invoices))
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations for count %d: %v", count, err)
		}
	}
}
