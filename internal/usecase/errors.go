package usecase

import (
	"fmt"

	"billz/internal/domain/model"
)

// PaymentRequiredError tells the caller to (re)pay against Requirements.
// Missing is set when no proof was presented at all; otherwise Reason says
// why the presented proof was rejected.
type PaymentRequiredError struct {
	Requirements *model.PaymentRequirements
	Missing      bool
	Reason       string
}

// ReasonInvalidPayment is reported when the protocol rejects a proof without saying why.
const ReasonInvalidPayment = "invalid_payment"

func (e *PaymentRequiredError) Error() string {
	if e.Missing {
		return "payment required"
	}
	return fmt.Sprintf("invalid payment: %s", e.Reason)
}
