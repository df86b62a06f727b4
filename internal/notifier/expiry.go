// Package notifier runs the card expiry reminder batch.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/metrics"
	"github.com/Mayank009/cashew/internal/models"
)

// CardSource streams subscription records that have a card on file.
type CardSource interface {
	EachWithCard(ctx context.Context, userID string, fn func(models.Subscription) error) error
}

// UserLookup resolves the profile a reminder is addressed to.
type UserLookup interface {
	Find(ctx context.Context, userID string) (*models.User, error)
}

// Mailer sends the card expiry reminder.
type Mailer interface {
	CardExpiring(ctx context.Context, user models.User) error
}

// DeliveryError records one reminder that could not be sent. It never
// aborts the run.
type DeliveryError struct {
	UserID         string
	SubscriptionID int64
	Stage          string // "lookup" or "send"
	Err            error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notifier: %s for user %s (subscription %d): %v", e.Stage, e.UserID, e.SubscriptionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Result summarizes one run.
type Result struct {
	Scanned  int
	Matched  int
	Notified int
	Failed   int
	Errors   []*DeliveryError
}

// ExpiryNotifier mails users whose card expires a configured number of days
// from today.
type ExpiryNotifier struct {
	cards  CardSource
	users  UserLookup
	mailer Mailer
	logger hclog.Logger
	now    func() time.Time
	loc    *time.Location
}

// New creates a notifier. Days are counted in UTC unless WithClock sets a
// location.
func New(cards CardSource, users UserLookup, mailer Mailer, logger hclog.Logger) *ExpiryNotifier {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ExpiryNotifier{
		cards:  cards,
		users:  users,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
		loc:    time.UTC,
	}
}

// WithClock sets the clock and the location "today" is taken in.
func (n *ExpiryNotifier) WithClock(now func() time.Time, loc *time.Location) *ExpiryNotifier {
	n.now = now
	if loc != nil {
		n.loc = loc
	}
	return n
}

// Run notifies every user whose card expires exactly d days from today for
// some d in intervals. A non-empty userID limits the run to that user.
// Per-subscription failures are collected in the Result; only a failure to
// read the subscriptions aborts the run.
func (n *ExpiryNotifier) Run(ctx context.Context, intervals []int, userID string) (Result, error) {
	wanted := make(map[int]struct{}, len(intervals))
	for _, d := range intervals {
		if d < 0 {
			return Result{}, fmt.Errorf("notifier: %w: negative interval %d", billing.ErrInvalidArgument, d)
		}
		wanted[d] = struct{}{}
	}

	today := n.now().In(n.loc)
	n.logger.Info("starting card expiry run", "intervals", intervals, "user_id", userID, "today", today.Format(time.DateOnly))

	var res Result
	err := n.cards.EachWithCard(ctx, userID, func(sub models.Subscription) error {
		res.Scanned++

		if sub.CardExpDate == nil {
			n.logger.Debug("no card expiry on file", "user_id", sub.UserID)
			return nil
		}

		daysLeft := DaysBetween(today, *sub.CardExpDate)
		if _, ok := wanted[daysLeft]; !ok {
			return nil
		}
		res.Matched++

		if derr := n.notify(ctx, sub, daysLeft); derr != nil {
			n.logger.Error("card expiry reminder failed", "user_id", sub.UserID, "stage", derr.Stage, "error", derr.Err)
			metrics.RecordCardExpiryNotification(derr)
			res.Failed++
			res.Errors = append(res.Errors, derr)
			return nil
		}

		metrics.RecordCardExpiryNotification(nil)
		res.Notified++
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("notifier: scan subscriptions: %w", err)
	}

	n.logger.Info("card expiry run complete",
		"scanned", res.Scanned,
		"matched", res.Matched,
		"notified", res.Notified,
		"failed", res.Failed,
	)

	return res, nil
}

func (n *ExpiryNotifier) notify(ctx context.Context, sub models.Subscription, daysLeft int) *DeliveryError {
	user, err := n.users.Find(ctx, sub.UserID)
	if err != nil {
		return &DeliveryError{UserID: sub.UserID, SubscriptionID: sub.ID, Stage: "lookup", Err: err}
	}

	profile := *user
	profile.DaysLeft = daysLeft

	n.logger.Info("sending card expiry reminder", "user_id", sub.UserID, "days_left", daysLeft)
	if err := n.mailer.CardExpiring(ctx, profile); err != nil {
		return &DeliveryError{UserID: sub.UserID, SubscriptionID: sub.ID, Stage: "send", Err: err}
	}

	return nil
}

// DaysBetween returns the number of calendar days from the date of from to
// the date of to. Times of day are ignored, so the result is a whole-day
// difference; it is negative when to is before from.
func DaysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
