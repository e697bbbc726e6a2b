package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domain"
)

const eligiblePoolPrefix = "pool:eligible:"

// PoolStore tracks the set of pending order IDs per service type. It is a
// fast membership mirror of the eligible order pool: the dispatch services
// maintain it, the rider listing reads Members and the requeue sweep reads
// Contains to restore lost entries.
type PoolStore struct {
	client *redis.Client
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(client *redis.Client) *PoolStore {
	return &PoolStore{client: client}
}

func poolKey(serviceType domain.ServiceType) string {
	return eligiblePoolPrefix + string(serviceType)
}

// Add puts an order into the eligible pool for its service type.
func (s *PoolStore) Add(ctx context.Context, serviceType domain.ServiceType, orderID string) error {
	return s.client.SAdd(ctx, poolKey(serviceType), orderID).Err()
}

// Remove takes an order out of the eligible pool.
func (s *PoolStore) Remove(ctx context.Context, serviceType domain.ServiceType, orderID string) error {
	return s.client.SRem(ctx, poolKey(serviceType), orderID).Err()
}

// Contains reports whether an order is currently in the pool.
func (s *PoolStore) Contains(ctx context.Context, serviceType domain.ServiceType, orderID string) (bool, error) {
	return s.client.SIsMember(ctx, poolKey(serviceType), orderID).Result()
}

// Members returns all order IDs in the pool for a service type.
func (s *PoolStore) Members(ctx context.Context, serviceType domain.ServiceType) ([]string, error) {
	return s.client.SMembers(ctx, poolKey(serviceType)).Result()
}
