package orders

import (
	"fmt"

	"github.com/alex-brain/marketplace-backend/internal/apperr"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// next is the forward-only happy path: pending -> processing -> shipped ->
// delivered, one step at a time.
var next = map[Status]Status{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// Transition validates a status change. forced is the privileged cancellation
// path, which may cancel from any non-terminal state; everyone else may only
// cancel a pending order.
func Transition(from, to Status, forced bool) error {
	if from.Terminal() {
		return &apperr.InvalidTransitionError{From: string(from), To: string(to)}
	}
	if to == StatusCancelled {
		if forced || from == StatusPending {
			return nil
		}
		return &apperr.InvalidTransitionError{From: string(from), To: string(to)}
	}
	if next[from] == to {
		return nil
	}
	return &apperr.InvalidTransitionError{From: string(from), To: string(to)}
}
