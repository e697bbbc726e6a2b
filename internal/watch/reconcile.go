// Package watch implements the per-session sync clients that keep a
// customer's or rider's view of an order consistent with server state. Two
// channels feed the same state: change-feed events (push) and fixed-interval
// polling. Neither is ordered or duplicate-free, so every inbound update
// passes through a single reconciliation function that is idempotent and
// never regresses visible status.
package watch

import (
	"dispatch/internal/domain"
)

// Snapshot is a client's last observed view of one order.
type Snapshot struct {
	Order        *domain.Order
	Delivery     *domain.Delivery
	OrderDeleted bool // the order row was removed (cancellation)
}

// Effect identifies a one-shot transition a client reacts to exactly once,
// no matter how many times or in what order the channels report it.
type Effect string

const (
	EffectRiderAccepted Effect = "rider_accepted"
	EffectPickedUp      Effect = "picked_up"
	EffectDelivered     Effect = "delivered"
	EffectCompleted     Effect = "completed"
	EffectCancelled     Effect = "cancelled"
)

// Reconcile merges a candidate update into the previous snapshot and returns
// the effects whose transition was crossed by this update. It is pure and
// channel-agnostic: the caller feeds it events and poll reads alike.
//
// Status comparison is structural over the fields that matter for each
// transition (acceptance is is_accepted together with rider_id, not
// full-object equality), and monotone: a candidate describing an earlier
// lifecycle position than the snapshot is stale and does not replace it.
func Reconcile(prev, candidate Snapshot) (Snapshot, []Effect) {
	next := prev

	if candidate.OrderDeleted {
		next.OrderDeleted = true
	}

	if candidate.Order != nil && !regressesOrder(next.Order, candidate.Order) {
		next.Order = candidate.Order
	}

	if candidate.Delivery != nil && !regressesDelivery(next.Delivery, candidate.Delivery) {
		next.Delivery = candidate.Delivery
	}

	return next, diffEffects(prev, next)
}

func regressesOrder(current, candidate *domain.Order) bool {
	if current == nil {
		return false
	}
	return domain.OrderStatusRank(candidate.Status) < domain.OrderStatusRank(current.Status)
}

func regressesDelivery(current, candidate *domain.Delivery) bool {
	if current == nil {
		return false
	}
	if domain.DeliveryStatusRank(candidate.Status) < domain.DeliveryStatusRank(current.Status) {
		return true
	}
	// Flags are monotonic; a candidate that unsets one is stale.
	if current.IsPickedUp && !candidate.IsPickedUp {
		return true
	}
	if current.IsCompleted && !candidate.IsCompleted {
		return true
	}
	return false
}

func diffEffects(prev, next Snapshot) []Effect {
	var effects []Effect

	if !accepted(prev) && accepted(next) {
		effects = append(effects, EffectRiderAccepted)
	}
	if !pickedUp(prev) && pickedUp(next) {
		effects = append(effects, EffectPickedUp)
	}
	if !orderReached(prev, domain.OrderStatusDelivered) && orderReached(next, domain.OrderStatusDelivered) {
		effects = append(effects, EffectDelivered)
	}
	if !completed(prev) && completed(next) {
		effects = append(effects, EffectCompleted)
	}
	if !cancelled(prev) && cancelled(next) {
		effects = append(effects, EffectCancelled)
	}

	return effects
}

func accepted(s Snapshot) bool {
	return s.Delivery != nil && s.Delivery.IsAccepted && s.Delivery.RiderID != ""
}

func pickedUp(s Snapshot) bool {
	return s.Delivery != nil && s.Delivery.IsPickedUp
}

func completed(s Snapshot) bool {
	if s.Delivery != nil && s.Delivery.IsCompleted {
		return true
	}
	return orderReached(s, domain.OrderStatusCompleted) && !cancelled(s)
}

func cancelled(s Snapshot) bool {
	if s.OrderDeleted {
		return true
	}
	if s.Order != nil && s.Order.Status == domain.OrderStatusCancelled {
		return true
	}
	return s.Delivery != nil && s.Delivery.Status == domain.DeliveryStatusCancelled
}

func orderReached(s Snapshot, status domain.OrderStatus) bool {
	if s.Order == nil {
		return false
	}
	if s.Order.Status == domain.OrderStatusCancelled {
		return s.Order.Status == status
	}
	return domain.OrderStatusRank(s.Order.Status) >= domain.OrderStatusRank(status)
}
