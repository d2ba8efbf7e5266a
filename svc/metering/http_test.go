package metering_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/billing"
)

type parserFunc func(*http.Request) (billing.PaymentResult, error)

func (f parserFunc) ParseRequest(r *http.Request) (billing.PaymentResult, error) {
	return f(r)
}

func TestService_WebhookHandler(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sub, err := f.svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
	require.NoError(t, err)

	failure := billing.PaymentResult{SubscriptionID: sub.ID, TransactionID: "txn_1", FailureCode: "card_declined"}

	tests := []struct {
		name   string
		parser parserFunc
		want   int
	}{
		{
			name:   "applied",
			parser: func(*http.Request) (billing.PaymentResult, error) { return failure, nil },
			want:   http.StatusOK,
		},
		{
			name:   "redelivery",
			parser: func(*http.Request) (billing.PaymentResult, error) { return failure, nil },
			want:   http.StatusOK,
		},
		{
			name: "ignored event",
			parser: func(*http.Request) (billing.PaymentResult, error) {
				return billing.PaymentResult{}, billing.ErrIgnoredWebhookEvent
			},
			want: http.StatusAccepted,
		},
		{
			name: "bad signature",
			parser: func(*http.Request) (billing.PaymentResult, error) {
				return billing.PaymentResult{}, billing.ErrWebhookVerificationFailed
			},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown subscription",
			parser: func(*http.Request) (billing.PaymentResult, error) {
				return billing.PaymentResult{SubscriptionID: uuid.New(), TransactionID: "txn_2"}, nil
			},
			want: http.StatusNotFound,
		},
		{
			name: "store failure",
			parser: func(*http.Request) (billing.PaymentResult, error) {
				return billing.PaymentResult{}, fmt.Errorf("read body: %w", context.DeadlineExceeded)
			},
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/test", nil)
		f.svc.WebhookHandler("test", tt.parser)(rec, req)
		assert.Equal(t, tt.want, rec.Code, tt.name)
	}

	got, err := f.svc.Subscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPastDue, got.Status)
	assert.Equal(t, 1, got.ConsecutiveFailures)
}
