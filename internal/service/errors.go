package service

import "errors"

var (
	// ErrInvalidCustomerID is returned when customer ID is empty.
	ErrInvalidCustomerID = errors.New("invalid customer id")

	// ErrInvalidOrderID is returned when order ID is empty.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidDeliveryID is returned when delivery ID is empty.
	ErrInvalidDeliveryID = errors.New("invalid delivery id")

	// ErrInvalidServiceType is returned when the service type is unknown.
	ErrInvalidServiceType = errors.New("invalid service type")

	// ErrInvalidAddress is returned when a required address is missing.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidAmount is returned when the base amount is negative or malformed.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrCustomerHasActiveOrder is returned when the customer already has a
	// non-terminal order. At most one active order per customer.
	ErrCustomerHasActiveOrder = errors.New("customer already has an active order")

	// ErrOrderNoLongerAvailable is returned when an accept loses the race:
	// the order left pending before the conditional update landed. Routine
	// contention, not a fault.
	ErrOrderNoLongerAvailable = errors.New("order no longer available")

	// ErrOrderNotCancellable is returned when cancelling a terminal order.
	ErrOrderNotCancellable = errors.New("order cannot be cancelled in current state")

	// ErrServiceTypeMismatch is returned when a rider accepts an order of a
	// service type it does not serve.
	ErrServiceTypeMismatch = errors.New("rider does not serve this service type")

	// ErrInconsistentState is returned when the compensating rollback after
	// a failed delivery insert itself fails, leaving an order confirmed with
	// no delivery. Operator intervention is required.
	ErrInconsistentState = errors.New("order stuck in inconsistent state")
)
