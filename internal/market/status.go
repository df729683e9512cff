package market

type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusShipped        Status = "SHIPPED"
	StatusDelivered      Status = "DELIVERED"
	StatusPaymentFailed  Status = "PAYMENT_FAILED"
	StatusCancelled      Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusCreated:        {StatusPaymentPending: true, StatusCancelled: true},
	StatusPaymentPending: {StatusConfirmed: true, StatusPaymentFailed: true, StatusCancelled: true},
	StatusPaymentFailed:  {StatusCancelled: true},
	StatusConfirmed:      {StatusShipped: true},
	StatusShipped:        {StatusDelivered: true},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Fulfillment transitions are the subset an admin or farmer may drive by
// hand; payment resolution owns the rest.
func IsFulfillment(from, to Status) bool {
	switch {
	case from == StatusConfirmed && to == StatusShipped:
		return true
	case from == StatusShipped && to == StatusDelivered:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}
