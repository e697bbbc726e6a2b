package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// DeliveryRepository is a PostgreSQL implementation of repository.DeliveryRepository.
type DeliveryRepository struct {
	q Querier
}

// NewDeliveryRepository creates a new PostgreSQL delivery repository.
func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{q: db}
}

// NewDeliveryRepositoryWithTx creates a delivery repository using a transaction.
func NewDeliveryRepositoryWithTx(tx *sql.Tx) *DeliveryRepository {
	return &DeliveryRepository{q: tx}
}

const deliveryColumns = `id, order_id, rider_id, is_assigned, is_accepted, is_picked_up, is_completed, status, earnings, created_at, updated_at`

// Create persists a new delivery. The deliveries table carries a unique
// index on order_id so a second insert for the same order fails.
func (r *DeliveryRepository) Create(ctx context.Context, delivery *domain.Delivery) error {
	query := `
		INSERT INTO deliveries (` + deliveryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.ExecContext(ctx, query,
		delivery.ID,
		delivery.OrderID,
		delivery.RiderID,
		delivery.IsAssigned,
		delivery.IsAccepted,
		delivery.IsPickedUp,
		delivery.IsCompleted,
		delivery.Status,
		delivery.Earnings,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrAlreadyExists
	}
	return err
}

// GetByID retrieves a delivery by ID.
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`

	delivery, err := r.scanOne(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

// GetByOrderID retrieves the delivery for an order.
// Returns nil if the order has not been accepted.
func (r *DeliveryRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE order_id = $1`

	delivery, err := r.scanOne(r.q.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return delivery, err
}

// Update updates an existing delivery. The identity fields (order, rider,
// acceptance) are immutable after creation and are not part of the update.
func (r *DeliveryRepository) Update(ctx context.Context, delivery *domain.Delivery) error {
	query := `
		UPDATE deliveries
		SET is_picked_up = $1, is_completed = $2, status = $3, earnings = $4, updated_at = $5
		WHERE id = $6
	`

	result, err := r.q.ExecContext(ctx, query,
		delivery.IsPickedUp,
		delivery.IsCompleted,
		delivery.Status,
		delivery.Earnings,
		time.Now(),
		delivery.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *DeliveryRepository) scanOne(row *sql.Row) (*domain.Delivery, error) {
	var delivery domain.Delivery
	err := row.Scan(
		&delivery.ID,
		&delivery.OrderID,
		&delivery.RiderID,
		&delivery.IsAssigned,
		&delivery.IsAccepted,
		&delivery.IsPickedUp,
		&delivery.IsCompleted,
		&delivery.Status,
		&delivery.Earnings,
		&delivery.CreatedAt,
		&delivery.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &delivery, nil
}
