package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// OrderRepository is a PostgreSQL implementation of repository.OrderRepository.
type OrderRepository struct {
	q Querier
}

// NewOrderRepository creates a new PostgreSQL order repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{q: db}
}

// NewOrderRepositoryWithTx creates an order repository using a transaction.
func NewOrderRepositoryWithTx(tx *sql.Tx) *OrderRepository {
	return &OrderRepository{q: tx}
}

const orderColumns = `id, number, customer_id, service_type, pickup_address, delivery_address, description, receiver_name, receiver_phone, service_fee, base_amount, total, status, created_at, updated_at`

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.q.ExecContext(ctx, query,
		order.ID,
		order.Number,
		order.CustomerID,
		order.ServiceType,
		order.PickupAddress,
		order.DeliveryAddress,
		order.Description,
		order.ReceiverName,
		order.ReceiverPhone,
		order.ServiceFee,
		order.BaseAmount,
		order.Total,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrAlreadyExists
	}
	return err
}

// GetByID retrieves an order by ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// GetActiveByCustomer retrieves the customer's non-terminal order.
// Returns nil if the customer has no active order.
func (r *OrderRepository) GetActiveByCustomer(ctx context.Context, customerID string) (*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 AND status NOT IN ('completed', 'cancelled')
		ORDER BY created_at DESC LIMIT 1
	`
	order, err := r.scanOne(r.q.QueryRowContext(ctx, query, customerID))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return order, err
}

// ListPendingByServiceType retrieves pending orders for a service type, oldest first.
func (r *OrderRepository) ListPendingByServiceType(ctx context.Context, serviceType domain.ServiceType) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE status = 'pending' AND service_type = $1
		ORDER BY created_at ASC LIMIT 100
	`
	rows, err := r.q.QueryContext(ctx, query, serviceType)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// ListPendingOlderThan retrieves pending orders created before now-age.
func (r *OrderRepository) ListPendingOlderThan(ctx context.Context, age time.Duration) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC LIMIT 100
	`
	rows, err := r.q.QueryContext(ctx, query, time.Now().Add(-age))
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// UpdateStatus sets the order status unconditionally.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := r.q.ExecContext(ctx, query, status, time.Now(), id)
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

// UpdateStatusIf sets the order status only if the current status still
// equals from. The affected-row count is the arbiter: zero rows means the
// precondition no longer held at write time.
func (r *OrderRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	result, err := r.q.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// Delete removes the order row.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *OrderRepository) scan(row rowScanner, order *domain.Order) error {
	return row.Scan(
		&order.ID,
		&order.Number,
		&order.CustomerID,
		&order.ServiceType,
		&order.PickupAddress,
		&order.DeliveryAddress,
		&order.Description,
		&order.ReceiverName,
		&order.ReceiverPhone,
		&order.ServiceFee,
		&order.BaseAmount,
		&order.Total,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
}

func (r *OrderRepository) scanOne(row *sql.Row) (*domain.Order, error) {
	var order domain.Order
	if err := r.scan(row, &order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) scanAll(rows *sql.Rows) ([]*domain.Order, error) {
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var order domain.Order
		if err := r.scan(rows, &order); err != nil {
			return nil, err
		}
		orders = append(orders, &order)
	}
	return orders, rows.Err()
}
