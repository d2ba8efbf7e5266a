package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment records one billing attempt or credit note.
type Payment struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	Kind           PaymentKind
	Amount         decimal.Decimal
	Currency       string
	Status         PaymentStatus
	TransactionID  string
	FailureCode    string
	CreatedAt      time.Time
}

// PaymentResult is the signal the payment processor sends after a billing attempt.
type PaymentResult struct {
	SubscriptionID uuid.UUID
	Success        bool
	TransactionID  string
	FailureCode    string
	// Amount is optional; the subscription amount is recorded when zero.
	Amount decimal.Decimal
}
