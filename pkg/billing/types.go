package billing

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusTrialing  Status = "trialing"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCancelled:
		return true
	default:
		return false
	}
}

// Entitling reports whether the subscription's plan governs quotas.
// Past-due tenants fall back to the free tier.
func (s Status) Entitling() bool {
	return s == StatusTrialing || s == StatusActive
}

// PaymentStatus is the outcome of a billing attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentKind tells what a payment record was for.
type PaymentKind string

const (
	PaymentKindRenewal         PaymentKind = "renewal"
	PaymentKindProrationCharge PaymentKind = "proration_charge"
	PaymentKindProrationCredit PaymentKind = "proration_credit"
)

// Direction tells whether a plan change charges the tenant, credits it, or neither.
type Direction string

const (
	DirectionNone   Direction = "none"
	DirectionCharge Direction = "charge"
	DirectionCredit Direction = "credit"
)
