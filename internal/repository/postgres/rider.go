package postgres

import (
	"context"
	"database/sql"
	"errors"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// RiderRepository is a PostgreSQL implementation of repository.RiderRepository.
type RiderRepository struct {
	q Querier
}

// NewRiderRepository creates a new PostgreSQL rider repository.
func NewRiderRepository(db *sql.DB) *RiderRepository {
	return &RiderRepository{q: db}
}

// Create adds a new rider.
func (r *RiderRepository) Create(ctx context.Context, rider *domain.Rider) error {
	query := `INSERT INTO riders (id, name, phone, service_type, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.ExecContext(ctx, query, rider.ID, rider.Name, rider.Phone, rider.ServiceType, rider.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrAlreadyExists
	}
	return err
}

// GetByID retrieves a rider by ID.
func (r *RiderRepository) GetByID(ctx context.Context, id string) (*domain.Rider, error) {
	query := `SELECT id, COALESCE(name, ''), COALESCE(phone, ''), service_type, created_at FROM riders WHERE id = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// GetByPhone retrieves a rider by phone number.
func (r *RiderRepository) GetByPhone(ctx context.Context, phone string) (*domain.Rider, error) {
	query := `SELECT id, COALESCE(name, ''), COALESCE(phone, ''), service_type, created_at FROM riders WHERE phone = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, phone))
}

func (r *RiderRepository) scanOne(row *sql.Row) (*domain.Rider, error) {
	var rider domain.Rider
	err := row.Scan(&rider.ID, &rider.Name, &rider.Phone, &rider.ServiceType, &rider.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &rider, nil
}
