package repository

import (
	"context"

	"dispatch/internal/domain"
)

// DeliveryRepository defines the persistence operations for deliveries.
type DeliveryRepository interface {
	// Create persists a new delivery. Fails if a delivery already exists
	// for the same order (1:1, created once).
	Create(ctx context.Context, delivery *domain.Delivery) error

	// GetByID retrieves a delivery by ID.
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)

	// GetByOrderID retrieves the delivery for an order.
	// Returns nil if the order has not been accepted.
	GetByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error)

	// Update updates an existing delivery.
	Update(ctx context.Context, delivery *domain.Delivery) error
}
