package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionEndAt(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	periodEnd := now.AddDate(0, 0, 20)

	t.Run("running trial wins", func(t *testing.T) {
		trialEnd := now.AddDate(0, 0, 5)
		sub := Subscription{TrialEnd: &trialEnd, CurrentEnd: &periodEnd}

		end := sub.EndAt(now)
		require.NotNil(t, end)
		assert.True(t, end.Equal(trialEnd))
	})

	t.Run("past trial falls back to period end", func(t *testing.T) {
		trialEnd := now.AddDate(0, 0, -1)
		sub := Subscription{TrialEnd: &trialEnd, CurrentEnd: &periodEnd}

		end := sub.EndAt(now)
		require.NotNil(t, end)
		assert.True(t, end.Equal(periodEnd))
	})

	t.Run("trial ending exactly now is over", func(t *testing.T) {
		trialEnd := now
		sub := Subscription{TrialEnd: &trialEnd, CurrentEnd: &periodEnd}
		assert.True(t, sub.EndAt(now).Equal(periodEnd))
	})

	t.Run("no trial", func(t *testing.T) {
		sub := Subscription{CurrentEnd: &periodEnd}
		assert.True(t, sub.EndAt(now).Equal(periodEnd))
	})

	t.Run("nothing known", func(t *testing.T) {
		assert.Nil(t, Subscription{}.EndAt(now))
		assert.Nil(t, Subscription{}.EndEpoch())
		assert.Equal(t, "", Subscription{}.EndFormatted())
	})
}

func TestSubscriptionAccessors(t *testing.T) {
	trialEnd := time.Date(2030, time.January, 15, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2030, time.February, 1, 0, 0, 0, 0, time.UTC)
	sub := Subscription{TrialEnd: &trialEnd, CurrentEnd: &periodEnd}

	require.NotNil(t, sub.TrialEndEpoch())
	assert.Equal(t, trialEnd.Unix(), *sub.TrialEndEpoch())
	assert.Equal(t, "2030-01-15", sub.TrialEndFormatted())
	assert.Equal(t, "2030-02-01", sub.CurrentEndFormatted())
	assert.Equal(t, periodEnd.Unix(), *sub.CurrentEndEpoch())

	// The trial is in the future relative to the wall clock.
	assert.Equal(t, "2030-01-15", sub.EndFormatted())
	assert.Equal(t, trialEnd.Unix(), *sub.EndEpoch())
}

func TestCardExpiresOn(t *testing.T) {
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), Card{ExpMonth: 2, ExpYear: 2025}.ExpiresOn())
	assert.Equal(t, time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), Card{ExpMonth: 12, ExpYear: 2024}.ExpiresOn())
	assert.True(t, Card{LastFour: "4242"}.ExpiresOn().IsZero())
}

func TestCustomerLastFour(t *testing.T) {
	assert.Equal(t, "", Customer{}.LastFour())
	assert.Equal(t, "4242", Customer{Card: &Card{LastFour: "4242"}}.LastFour())
}
