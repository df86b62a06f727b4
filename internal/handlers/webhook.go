package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/events"
	"github.com/Mayank009/cashew/internal/gateway"
	"github.com/Mayank009/cashew/internal/hooks"
	"github.com/Mayank009/cashew/internal/metrics"
	stripeClient "github.com/Mayank009/cashew/internal/stripe"
)

const maxWebhookBody = 65536

// EventFetcher loads the authoritative copy of a gateway event.
type EventFetcher interface {
	Event(ctx context.Context, eventID string) (*billing.Event, error)
}

// EventDispatcher runs the hook registered for an event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev *billing.Event) error
}

// StripeWebhook accepts Stripe notifications. The body is only used for its
// event id: the event is re-fetched from the gateway before dispatch. When
// secret is set the Stripe-Signature header must verify as well.
func StripeWebhook(fetcher EventFetcher, dispatcher EventDispatcher, secret string, logger hclog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			metrics.RecordWebhookEvent("unknown", "rejected")
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		if secret != "" {
			if err := stripeClient.ValidateSignature(body, r.Header.Get("Stripe-Signature"), secret); err != nil {
				logger.Warn("rejected webhook with bad signature", "error", err)
				metrics.RecordWebhookEvent("unknown", "rejected")
				http.Error(w, "invalid signature", http.StatusBadRequest)
				return
			}
		}

		id, eventType, err := stripeClient.ParseWebhookEvent(body)
		if err != nil {
			logger.Warn("rejected malformed webhook", "error", err)
			metrics.RecordWebhookEvent("unknown", "rejected")
			http.Error(w, "invalid webhook payload", http.StatusBadRequest)
			return
		}

		log := logger.With("event_id", id, "type", eventType)

		ev, err := fetcher.Event(r.Context(), id)
		if err != nil {
			code := http.StatusInternalServerError
			switch {
			case gateway.Retryable(err):
				code = http.StatusServiceUnavailable
			case errors.Is(err, gateway.ErrNotFound):
				code = http.StatusBadRequest
			}
			log.Error("failed to fetch webhook event", "error", err, "status", code)
			metrics.RecordWebhookEvent(eventType, "rejected")
			http.Error(w, http.StatusText(code), code)
			return
		}

		err = dispatcher.Dispatch(r.Context(), ev)
		code, outcome := dispatchStatus(err)

		switch outcome {
		case "dispatched":
			log.Info("webhook event handled")
		case "ignored":
			log.Debug("webhook event ignored")
		default:
			log.Error("webhook event failed", "error", err, "status", code)
		}
		metrics.RecordWebhookEvent(ev.Type, outcome)

		if code != http.StatusOK {
			http.Error(w, http.StatusText(code), code)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": outcome})
	}
}

// dispatchStatus maps a hook result to the HTTP answer the gateway sees.
// Stripe retries anything but 2xx, so only transient failures should
// produce a retryable status.
func dispatchStatus(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, "dispatched"
	case errors.Is(err, hooks.ErrUnhandledEvent):
		return http.StatusOK, "ignored"
	case gateway.Retryable(err), errors.Is(err, events.ErrRedeliver):
		return http.StatusServiceUnavailable, "failed"
	case errors.Is(err, billing.ErrInvalidArgument):
		return http.StatusBadRequest, "rejected"
	case errors.Is(err, billing.ErrNotFound):
		return http.StatusUnprocessableEntity, "failed"
	default:
		return http.StatusInternalServerError, "failed"
	}
}
