package billing

import (
	"context"
	"errors"
	"net/http"
)

// WebhookParser turns a verified gateway webhook into a PaymentResult.
// Events that are not payment outcomes yield ErrIgnoredWebhookEvent.
type WebhookParser interface {
	ParseRequest(req *http.Request) (PaymentResult, error)
}

// HandleWebhook parses req with p and applies the result. Ignored events are
// not an error and return a zero Subscription.
func (s *Service) HandleWebhook(ctx context.Context, p WebhookParser, req *http.Request) (Subscription, bool, error) {
	res, err := p.ParseRequest(req)
	if err != nil {
		if IsIgnored(err) {
			return Subscription{}, false, nil
		}
		return Subscription{}, false, err
	}
	sub, err := s.HandlePaymentResult(ctx, res)
	if err != nil {
		return Subscription{}, false, err
	}
	return sub, true, nil
}

// IsIgnored reports whether err only says the webhook carried no payment result.
func IsIgnored(err error) bool {
	return errors.Is(err, ErrIgnoredWebhookEvent)
}
