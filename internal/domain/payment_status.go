package domain

import "fmt"

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentInTransit  PaymentStatus = "IN_TRANSIT"
	PaymentPaid       PaymentStatus = "PAID"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentCancelled  PaymentStatus = "CANCELLED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing, PaymentFailed, PaymentCancelled},
	PaymentProcessing: {PaymentInTransit, PaymentFailed},
	PaymentInTransit:  {PaymentPaid, PaymentFailed},
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentInTransit, PaymentPaid, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed || s == PaymentCancelled
}

// Outstanding reports whether money is owed but not yet received.
func (s PaymentStatus) Outstanding() bool {
	return s == PaymentPending || s == PaymentProcessing || s == PaymentInTransit
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// EnsurePaymentTransition returns an error describing an illegal transition.
func EnsurePaymentTransition(from, to PaymentStatus) error {
	if !to.Valid() {
		return fmt.Errorf("invalid payment status %q", to)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("invalid payment transition %s -> %s", from, to)
	}
	return nil
}
