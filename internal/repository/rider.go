package repository

import (
	"context"

	"dispatch/internal/domain"
)

// RiderRepository defines the persistence operations for riders.
type RiderRepository interface {
	// Create adds a new rider.
	Create(ctx context.Context, rider *domain.Rider) error

	// GetByID retrieves a rider by ID.
	GetByID(ctx context.Context, id string) (*domain.Rider, error)

	// GetByPhone retrieves a rider by phone number.
	GetByPhone(ctx context.Context, phone string) (*domain.Rider, error)
}
