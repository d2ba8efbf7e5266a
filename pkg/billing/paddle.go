package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaddleConfig holds configuration for Paddle webhooks.
type PaddleConfig struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
}

// PaddleWebhooks verifies Paddle notifications and maps transaction events to
// payment results. The subscription is taken from the transaction's
// custom_data.subscription_id, set when the checkout was created.
type PaddleWebhooks struct {
	verifier *paddle.WebhookVerifier
}

// NewPaddleWebhooks creates a Paddle webhook parser.
func NewPaddleWebhooks(cfg PaddleConfig) (*PaddleWebhooks, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	return &PaddleWebhooks{verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret)}, nil
}

type paddleNotification struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Data      struct {
		ID         string            `json:"id"`
		CustomData map[string]string `json:"custom_data"`
		Details    struct {
			Totals struct {
				Total string `json:"total"`
			} `json:"totals"`
		} `json:"details"`
		Payments []struct {
			ErrorCode string `json:"error_code"`
		} `json:"payments"`
	} `json:"data"`
}

// ParseRequest verifies the Paddle-Signature header and parses the body.
func (p *PaddleWebhooks) ParseRequest(req *http.Request) (PaymentResult, error) {
	valid, err := p.verifier.Verify(req)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("%w: %w", ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return PaymentResult{}, ErrWebhookVerificationFailed
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("%w: %w", ErrMalformedWebhook, err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	return parsePaddle(body)
}

func parsePaddle(body []byte) (PaymentResult, error) {
	var n paddleNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return PaymentResult{}, fmt.Errorf("%w: %w", ErrMalformedWebhook, err)
	}

	var success bool
	switch n.EventType {
	case "transaction.completed":
		success = true
	case "transaction.payment_failed":
		success = false
	default:
		return PaymentResult{}, fmt.Errorf("%w: %s", ErrIgnoredWebhookEvent, n.EventType)
	}

	subID, err := uuid.Parse(n.Data.CustomData["subscription_id"])
	if err != nil {
		return PaymentResult{}, fmt.Errorf("%w: custom_data.subscription_id: %w", ErrMalformedWebhook, err)
	}

	res := PaymentResult{
		SubscriptionID: subID,
		Success:        success,
		TransactionID:  n.EventID,
	}
	if res.TransactionID == "" {
		res.TransactionID = n.Data.ID
	}
	if !success && len(n.Data.Payments) > 0 {
		res.FailureCode = n.Data.Payments[len(n.Data.Payments)-1].ErrorCode
	}
	if total := n.Data.Details.Totals.Total; total != "" {
		// Paddle reports totals in the lowest currency unit.
		if minor, err := decimal.NewFromString(total); err == nil {
			res.Amount = minor.Shift(-2)
		}
	}
	return res, nil
}
