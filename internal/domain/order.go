package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the current lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusPicked    OrderStatus = "picked"
	OrderStatusInTransit OrderStatus = "in_transit"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ServiceType represents the kind of service an order requests.
type ServiceType string

const (
	ServiceTypeDelivery    ServiceType = "delivery"
	ServiceTypePlumbing    ServiceType = "plumbing"
	ServiceTypeAircon      ServiceType = "aircon"
	ServiceTypeElectrician ServiceType = "electrician"
	ServiceTypeOther       ServiceType = "other"
)

// ValidServiceType reports whether s is a known service type.
func ValidServiceType(s ServiceType) bool {
	switch s {
	case ServiceTypeDelivery, ServiceTypePlumbing, ServiceTypeAircon,
		ServiceTypeElectrician, ServiceTypeOther:
		return true
	}
	return false
}

// Order represents a customer's service/delivery request.
type Order struct {
	ID              string
	Number          string // human-readable, unique, client-visible (ORD-xxxxxx-xxxxxxxx)
	CustomerID      string
	ServiceType     ServiceType
	PickupAddress   string // pickup address, or the service address for non-delivery types
	DeliveryAddress string
	Description     string // item or problem description
	ReceiverName    string
	ReceiverPhone   string
	ServiceFee      decimal.Decimal
	BaseAmount      decimal.Decimal
	Total           decimal.Decimal // ServiceFee + BaseAmount
	Status          OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether the order has reached a terminal status.
func (o *Order) Terminal() bool {
	return IsTerminalOrderStatus(o.Status)
}
