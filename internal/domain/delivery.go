package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryStatus mirrors the fulfilment progress of an accepted order.
type DeliveryStatus string

const (
	DeliveryStatusAccepted  DeliveryStatus = "accepted"
	DeliveryStatusPickedUp  DeliveryStatus = "picked_up"
	DeliveryStatusInTransit DeliveryStatus = "in_transit"
	DeliveryStatusCompleted DeliveryStatus = "completed"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

// Delivery records a rider's acceptance and fulfilment of exactly one order.
// Its existence is the acceptance fact: RiderID and IsAccepted are set at
// creation and never change. The boolean progress flags are monotonic.
type Delivery struct {
	ID          string
	OrderID     string
	RiderID     string
	IsAssigned  bool
	IsAccepted  bool
	IsPickedUp  bool
	IsCompleted bool
	Status      DeliveryStatus
	Earnings    decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Terminal reports whether the delivery has reached a terminal status.
func (d *Delivery) Terminal() bool {
	return d.Status == DeliveryStatusCompleted || d.Status == DeliveryStatusCancelled
}
