package billing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for Stripe webhooks.
type StripeConfig struct {
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// StripeWebhooks verifies Stripe events and maps invoice events to payment
// results. The subscription is taken from the invoice metadata key
// subscription_id.
type StripeWebhooks struct {
	secret string
}

// NewStripeWebhooks creates a Stripe webhook parser.
func NewStripeWebhooks(cfg StripeConfig) (*StripeWebhooks, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	return &StripeWebhooks{secret: cfg.WebhookSecret}, nil
}

type stripeInvoice struct {
	ID         string            `json:"id"`
	AmountPaid int64             `json:"amount_paid"`
	AmountDue  int64             `json:"amount_due"`
	Metadata   map[string]string `json:"metadata"`
	// LastFinalizationError is set by Stripe when the invoice could not be charged.
	LastFinalizationError *struct {
		Code string `json:"code"`
	} `json:"last_finalization_error"`
}

// ParseRequest verifies the Stripe-Signature header and parses the body.
func (s *StripeWebhooks) ParseRequest(req *http.Request) (PaymentResult, error) {
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("%w: %w", ErrMalformedWebhook, err)
	}
	return s.Parse(payload, req.Header.Get("Stripe-Signature"))
}

// Parse verifies payload against signature and maps it to a PaymentResult.
func (s *StripeWebhooks) Parse(payload []byte, signature string) (PaymentResult, error) {
	// Endpoints pinned to any API version are accepted; only invoice id,
	// amounts and metadata are read.
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return PaymentResult{}, fmt.Errorf("%w: %w", ErrWebhookVerificationFailed, err)
	}

	var success bool
	switch string(event.Type) {
	case "invoice.paid":
		success = true
	case "invoice.payment_failed":
		success = false
	default:
		return PaymentResult{}, fmt.Errorf("%w: %s", ErrIgnoredWebhookEvent, event.Type)
	}

	if event.Data == nil {
		return PaymentResult{}, fmt.Errorf("%w: event has no data", ErrMalformedWebhook)
	}
	var inv stripeInvoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return PaymentResult{}, fmt.Errorf("%w: %w", ErrMalformedWebhook, err)
	}

	subID, err := uuid.Parse(inv.Metadata["subscription_id"])
	if err != nil {
		return PaymentResult{}, fmt.Errorf("%w: metadata.subscription_id: %w", ErrMalformedWebhook, err)
	}

	// Every delivery attempt of a failed invoice is its own event, so the event
	// id identifies the billing attempt.
	res := PaymentResult{
		SubscriptionID: subID,
		Success:        success,
		TransactionID:  event.ID,
	}
	if success {
		res.Amount = decimal.NewFromInt(inv.AmountPaid).Shift(-2)
	} else {
		res.Amount = decimal.NewFromInt(inv.AmountDue).Shift(-2)
		res.FailureCode = "payment_failed"
		if inv.LastFinalizationError != nil && strings.TrimSpace(inv.LastFinalizationError.Code) != "" {
			res.FailureCode = inv.LastFinalizationError.Code
		}
	}
	return res, nil
}
