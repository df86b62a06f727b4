package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/webhooks/stripe", "200", 0.1)
	RecordHTTPRequest("POST", "/webhooks/stripe", "200", 0.2)
	RecordHTTPRequest("POST", "/webhooks/stripe", "422", 0.05)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/webhooks/stripe", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/webhooks/stripe", "422")))
}

func TestRecordCardExpiryNotification(t *testing.T) {
	CardExpiryNotificationsTotal.Reset()

	RecordCardExpiryNotification(nil)
	RecordCardExpiryNotification(errors.New("smtp down"))
	RecordCardExpiryNotification(nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(CardExpiryNotificationsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(CardExpiryNotificationsTotal.WithLabelValues("failed")))
}

func TestRecordWebhookEvent(t *testing.T) {
	WebhookEventsTotal.Reset()

	RecordWebhookEvent("invoice.created", "dispatched")
	RecordWebhookEvent("customer.updated", "ignored")

	assert.Equal(t, float64(1), testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("invoice.created", "dispatched")))
	assert.Equal(t, float64(1), testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("customer.updated", "ignored")))
}

func TestSetBreakerOpen(t *testing.T) {
	SetBreakerOpen("stripe", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(GatewayBreakerOpen.WithLabelValues("stripe")))

	SetBreakerOpen("stripe", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(GatewayBreakerOpen.WithLabelValues("stripe")))
}
