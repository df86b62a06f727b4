package models

import (
	"time"

	"github.com/Mayank009/cashew/internal/billing"
)

// Subscription mirrors one row of the subscriptions table: the durable
// projection of a gateway customer and its subscription.
type Subscription struct {
	ID             int64          `json:"id"`
	UserID         string         `json:"user_id"`
	CustomerID     string         `json:"customer_id"`
	SubscriptionID string         `json:"subscription_id,omitempty"`
	Plan           string         `json:"plan,omitempty"`
	Quantity       int64          `json:"quantity"`
	Status         billing.Status `json:"status"`
	TrialEndsAt    *time.Time     `json:"trial_ends_at,omitempty"`
	EndsAt         *time.Time     `json:"subscription_ends_at,omitempty"`
	LastFour       *string        `json:"last_four,omitempty"`
	CardExpDate    *time.Time     `json:"card_exp_date,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	SubscribedAt   *time.Time     `json:"subscribed_at,omitempty"`
	CanceledAt     *time.Time     `json:"canceled_at,omitempty"`
	ExpiredAt      *time.Time     `json:"expired_at,omitempty"`
}

// OnTrial reports whether the trial end is still ahead of now.
func (s Subscription) OnTrial(now time.Time) bool {
	return s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
}

// OnGracePeriod reports whether a canceled subscription still grants access.
func (s Subscription) OnGracePeriod(now time.Time) bool {
	return s.Status == billing.StatusCanceled && s.EndsAt != nil && s.EndsAt.After(now)
}

// Active reports whether the user currently has access.
func (s Subscription) Active(now time.Time) bool {
	switch s.Status {
	case billing.StatusActive, billing.StatusTrialing:
		return true
	case billing.StatusCanceled:
		return s.OnGracePeriod(now)
	default:
		return false
	}
}

// User is the profile the card-expiry mail is addressed to.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	DaysLeft int    `json:"days_left,omitempty"`
}
