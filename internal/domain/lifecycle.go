package domain

import "errors"

// ErrTransitionNotPermitted is returned when a requested status transition is
// not allowed by the lifecycle tables. Transitions are rejected synchronously
// and never partially applied.
var ErrTransitionNotPermitted = errors.New("transition not permitted")

// orderTransitions lists the permitted forward moves for each order status.
// cancelled is handled separately: it is reachable from any non-terminal
// status. preparing may be skipped for service types without a preparation
// phase, which is why confirmed permits picked directly.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed},
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusPicked},
	OrderStatusPreparing: {OrderStatusPicked},
	OrderStatusPicked:    {OrderStatusInTransit, OrderStatusCompleted},
	OrderStatusInTransit: {OrderStatusDelivered, OrderStatusCompleted},
	OrderStatusDelivered: {OrderStatusCompleted},
	OrderStatusCompleted: nil,
	OrderStatusCancelled: nil,
}

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusAccepted:  {DeliveryStatusPickedUp},
	DeliveryStatusPickedUp:  {DeliveryStatusInTransit, DeliveryStatusCompleted},
	DeliveryStatusInTransit: {DeliveryStatusCompleted},
	DeliveryStatusCompleted: nil,
	DeliveryStatusCancelled: nil,
}

// orderStatusRank is a total order over statuses. The sync layer uses it to
// reject events that would regress a client's visible state; events from the
// two channels are not guaranteed to arrive in order.
var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusConfirmed: 1,
	OrderStatusPreparing: 2,
	OrderStatusPicked:    3,
	OrderStatusInTransit: 4,
	OrderStatusDelivered: 5,
	OrderStatusCompleted: 6,
	OrderStatusCancelled: 7,
}

var deliveryStatusRank = map[DeliveryStatus]int{
	DeliveryStatusAccepted:  0,
	DeliveryStatusPickedUp:  1,
	DeliveryStatusInTransit: 2,
	DeliveryStatusCompleted: 3,
	DeliveryStatusCancelled: 4,
}

// IsTerminalOrderStatus reports whether s is terminal.
func IsTerminalOrderStatus(s OrderStatus) bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransitionOrder reports whether an order may move from one status to
// another.
func CanTransitionOrder(from, to OrderStatus) bool {
	if to == OrderStatusCancelled {
		return !IsTerminalOrderStatus(from)
	}
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionDelivery reports whether a delivery may move from one status
// to another.
func CanTransitionDelivery(from, to DeliveryStatus) bool {
	if to == DeliveryStatusCancelled {
		return from != DeliveryStatusCompleted && from != DeliveryStatusCancelled
	}
	for _, next := range deliveryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderStatusRank returns the position of s in the lifecycle, or -1 for an
// unknown status.
func OrderStatusRank(s OrderStatus) int {
	if r, ok := orderStatusRank[s]; ok {
		return r
	}
	return -1
}

// DeliveryStatusRank returns the position of s in the lifecycle, or -1 for
// an unknown status.
func DeliveryStatusRank(s DeliveryStatus) int {
	if r, ok := deliveryStatusRank[s]; ok {
		return r
	}
	return -1
}
