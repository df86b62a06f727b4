package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceDiscount(t *testing.T) {
	t.Run("zero total never has a discount", func(t *testing.T) {
		for _, subtotal := range []int64{0, 500, 9999} {
			inv := Invoice{Total: 0, Subtotal: subtotal, Currency: "usd"}
			assert.False(t, inv.HasDiscount(), "subtotal %d", subtotal)
			assert.Equal(t, subtotal, inv.Discount())
		}
	})

	t.Run("equal totals", func(t *testing.T) {
		inv := Invoice{Total: 1500, Subtotal: 1500, Currency: "usd"}
		assert.False(t, inv.HasDiscount())
		assert.Equal(t, int64(0), inv.Discount())
		assert.Equal(t, "0.00", inv.FormattedDiscount())
	})

	t.Run("discounted", func(t *testing.T) {
		inv := Invoice{Total: 1200, Subtotal: 1500, Currency: "usd"}
		assert.True(t, inv.HasDiscount())
		assert.Equal(t, int64(300), inv.Discount())
		assert.Equal(t, "12.00", inv.FormattedTotal())
		assert.Equal(t, "15.00", inv.FormattedSubtotal())
		assert.Equal(t, "3.00", inv.FormattedDiscount())
	})
}

func TestInvoiceDates(t *testing.T) {
	date := time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC)
	inv := Invoice{
		Date:        date,
		PeriodStart: date.AddDate(0, -1, 0),
		PeriodEnd:   date,
	}

	assert.Equal(t, date.Unix(), inv.DateEpoch())
	assert.Equal(t, "Mar 5, 2024", inv.DateFormatted())
	assert.Equal(t, "Feb 5, 2024", inv.PeriodStartFormatted())
	assert.Equal(t, date.AddDate(0, -1, 0).Unix(), inv.PeriodStartEpoch())
	assert.Equal(t, "Mar 5, 2024", inv.PeriodEndFormatted())
	assert.Equal(t, date.Unix(), inv.PeriodEndEpoch())
}
