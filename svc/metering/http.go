package metering

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/logger"
)

// WebhookHandler applies payment webhooks parsed by p. Gateways retry on 5xx,
// so only failures worth retrying get one.
//
//	200 payment result applied (or already applied)
//	202 event carries no payment result
//	400 bad signature or payload
//	404 unknown subscription
//	409 subscription state rejects the result
//	500 anything else
func (s *Service) WebhookHandler(gateway string, p billing.WebhookParser) http.HandlerFunc {
	log := s.logger.With(logger.Component("webhook"), slog.String("gateway", gateway))

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sub, handled, err := s.billing.HandleWebhook(ctx, p, r)
		if err != nil {
			code := webhookStatus(err)
			level := slog.LevelWarn
			if code >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.Log(ctx, level, "webhook rejected", slog.Int("status", code), logger.Error(err))
			http.Error(w, http.StatusText(code), code)
			return
		}
		if !handled {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		log.InfoContext(ctx, "webhook applied",
			logger.SubscriptionID(sub.ID),
			logger.TenantID(sub.TenantID),
			logger.Status(sub.Status.String()),
		)
		w.WriteHeader(http.StatusOK)
	}
}

func webhookStatus(err error) int {
	switch {
	case errors.Is(err, billing.ErrWebhookVerificationFailed),
		errors.Is(err, billing.ErrMalformedWebhook),
		errors.Is(err, billing.ErrMissingTransactionID):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
