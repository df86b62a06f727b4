package billing

import "time"

// SubscriptionDateLayout is used by the formatted accessors of Subscription.
const SubscriptionDateLayout = "2006-01-02"

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// Subscription is the gateway's view of a subscription at one point in time.
type Subscription struct {
	ID       string
	Plan     string
	Quantity int64
	Status   Status

	// Nil when the gateway did not report the field.
	TrialEnd   *time.Time
	CurrentEnd *time.Time
}

// TrialEndEpoch returns the trial end in unix seconds, or nil.
func (s Subscription) TrialEndEpoch() *int64 { return epoch(s.TrialEnd) }

// TrialEndFormatted returns the trial end as "2006-01-02", or "" when unset.
func (s Subscription) TrialEndFormatted() string { return formatted(s.TrialEnd) }

func (s Subscription) CurrentEndEpoch() *int64 { return epoch(s.CurrentEnd) }

func (s Subscription) CurrentEndFormatted() string { return formatted(s.CurrentEnd) }

// EndAt returns the date access stops as seen at now: the trial end while
// the trial is still running, otherwise the end of the current period.
func (s Subscription) EndAt(now time.Time) *time.Time {
	if s.TrialEnd != nil && s.TrialEnd.After(now) {
		return s.TrialEnd
	}
	return s.CurrentEnd
}

// End is EndAt evaluated at the current instant.
func (s Subscription) End() *time.Time { return s.EndAt(time.Now()) }

func (s Subscription) EndEpoch() *int64 { return epoch(s.End()) }

func (s Subscription) EndFormatted() string { return formatted(s.End()) }

func epoch(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.Unix()
	return &v
}

func formatted(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(SubscriptionDateLayout)
}
