package payment

import (
	"fmt"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
)

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	PaymentID string
	From      models.PaymentStatus
	To        models.PaymentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("payment %s cannot move from %s to %s", e.PaymentID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return apperror.ErrInvalidTransition }

// PlanTransition returns the statuses a payment passes through to get from
// one status to another. pending to approved or failed goes through
// processing. The second value is false when the target is unreachable.
func PlanTransition(from, to models.PaymentStatus) ([]models.PaymentStatus, bool) {
	if from == to || !to.IsValid() {
		return nil, false
	}

	switch from {
	case models.PaymentStatusPending:
		switch to {
		case models.PaymentStatusProcessing, models.PaymentStatusCancelled:
			return []models.PaymentStatus{to}, true
		case models.PaymentStatusApproved, models.PaymentStatusFailed:
			return []models.PaymentStatus{models.PaymentStatusProcessing, to}, true
		}
	case models.PaymentStatusProcessing:
		switch to {
		case models.PaymentStatusApproved, models.PaymentStatusFailed, models.PaymentStatusCancelled:
			return []models.PaymentStatus{to}, true
		}
	case models.PaymentStatusApproved:
		if to == models.PaymentStatusRefunded {
			return []models.PaymentStatus{to}, true
		}
	}
	return nil, false
}

// CanTransition reports whether PlanTransition finds a path.
func CanTransition(from, to models.PaymentStatus) bool {
	_, ok := PlanTransition(from, to)
	return ok
}
