package repository

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// OrderRepository defines the persistence operations for orders.
type OrderRepository interface {
	// Create persists a new order.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by ID.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetActiveByCustomer retrieves the customer's non-terminal order.
	// Returns nil if the customer has no active order.
	GetActiveByCustomer(ctx context.Context, customerID string) (*domain.Order, error)

	// ListPendingByServiceType retrieves pending orders for a service type,
	// oldest first. This is the rider eligibility view.
	ListPendingByServiceType(ctx context.Context, serviceType domain.ServiceType) ([]*domain.Order, error)

	// ListPendingOlderThan retrieves pending orders created before now-age.
	ListPendingOlderThan(ctx context.Context, age time.Duration) ([]*domain.Order, error)

	// UpdateStatus sets the order status unconditionally.
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error

	// UpdateStatusIf sets the order status only if the current status still
	// equals from. Returns false when zero rows were affected, i.e. the
	// precondition no longer held at write time.
	UpdateStatusIf(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error)

	// Delete removes the order row. Cancellation is destructive; any
	// delivery row referencing the order is left in place.
	Delete(ctx context.Context, id string) error
}
