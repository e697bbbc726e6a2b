package tests

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/feed"
	"dispatch/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK ORDER REPOSITORY
// ──────────────────────────────────────────────

// MockOrderRepository is a mock implementation of OrderRepository. The
// conditional update is atomic under the mutex, so concurrent accept races
// behave like the real rows-affected arbiter.
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order

	// Counters for verification
	UpdateStatusIfCallCount int32
	DeleteCallCount         int32

	// Error injection. UpdateStatusIfError fails every conditional update;
	// FailStatusUpdateFrom fails only the updates leaving that status, which
	// lets a test break the compensating rollback without breaking the claim.
	UpdateStatusIfError   error
	DeleteError           error
	FailStatusUpdateFrom  domain.OrderStatus
	FailStatusUpdateError error
}

// NewMockOrderRepository creates a new mock order repository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

// AddOrder adds an order to the mock repository.
func (m *MockOrderRepository) AddOrder(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
}

// GetOrder returns the stored order for test assertions.
func (m *MockOrderRepository) GetOrder(id string) *domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[id]
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; ok {
		return repository.ErrAlreadyExists
	}
	m.orders[order.ID] = order
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *order
	return &copy, nil
}

func (m *MockOrderRepository) GetActiveByCustomer(ctx context.Context, customerID string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.CustomerID == customerID && !domain.IsTerminalOrderStatus(o.Status) {
			copy := *o
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *MockOrderRepository) ListPendingByServiceType(ctx context.Context, serviceType domain.ServiceType) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Order
	for _, o := range m.orders {
		if o.ServiceType == serviceType && o.Status == domain.OrderStatusPending {
			copy := *o
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockOrderRepository) ListPendingOlderThan(ctx context.Context, age time.Duration) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-age)
	var result []*domain.Order
	for _, o := range m.orders {
		if o.Status == domain.OrderStatusPending && o.CreatedAt.Before(cutoff) {
			copy := *o
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = time.Now()
	return nil
}

func (m *MockOrderRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	atomic.AddInt32(&m.UpdateStatusIfCallCount, 1)
	if m.UpdateStatusIfError != nil {
		return false, m.UpdateStatusIfError
	}
	if m.FailStatusUpdateFrom != "" && from == m.FailStatusUpdateFrom {
		return false, m.FailStatusUpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	order.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockOrderRepository) Delete(ctx context.Context, id string) error {
	atomic.AddInt32(&m.DeleteCallCount, 1)
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

// ──────────────────────────────────────────────
// MOCK DELIVERY REPOSITORY
// ──────────────────────────────────────────────

// MockDeliveryRepository is a mock implementation of DeliveryRepository.
type MockDeliveryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*domain.Delivery

	// Counters for verification
	CreateCallCount int32

	// Error injection. CreateHook, when set, runs before the insert and its
	// error is returned; it can mutate other mocks to stage interleavings.
	CreateError error
	UpdateError error
	CreateHook  func(delivery *domain.Delivery) error
}

// NewMockDeliveryRepository creates a new mock delivery repository.
func NewMockDeliveryRepository() *MockDeliveryRepository {
	return &MockDeliveryRepository{
		deliveries: make(map[string]*domain.Delivery),
	}
}

// AddDelivery adds a delivery to the mock repository.
func (m *MockDeliveryRepository) AddDelivery(delivery *domain.Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[delivery.ID] = delivery
}

// GetDelivery returns the stored delivery for test assertions.
func (m *MockDeliveryRepository) GetDelivery(id string) *domain.Delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deliveries[id]
}

func (m *MockDeliveryRepository) Create(ctx context.Context, delivery *domain.Delivery) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	if m.CreateHook != nil {
		if err := m.CreateHook(delivery); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deliveries {
		if d.OrderID == delivery.OrderID {
			return repository.ErrAlreadyExists
		}
	}
	m.deliveries[delivery.ID] = delivery
	return nil
}

func (m *MockDeliveryRepository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	delivery, ok := m.deliveries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *delivery
	return &copy, nil
}

func (m *MockDeliveryRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.deliveries {
		if d.OrderID == orderID {
			copy := *d
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *MockDeliveryRepository) Update(ctx context.Context, delivery *domain.Delivery) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deliveries[delivery.ID]; !ok {
		return repository.ErrNotFound
	}
	copy := *delivery
	m.deliveries[delivery.ID] = &copy
	return nil
}

// ──────────────────────────────────────────────
// MOCK RIDER REPOSITORY
// ──────────────────────────────────────────────

// MockRiderRepository is a mock implementation of RiderRepository.
type MockRiderRepository struct {
	mu     sync.RWMutex
	riders map[string]*domain.Rider
}

// NewMockRiderRepository creates a new mock rider repository.
func NewMockRiderRepository() *MockRiderRepository {
	return &MockRiderRepository{
		riders: make(map[string]*domain.Rider),
	}
}

// AddRider adds a rider to the mock repository.
func (m *MockRiderRepository) AddRider(rider *domain.Rider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riders[rider.ID] = rider
}

func (m *MockRiderRepository) Create(ctx context.Context, rider *domain.Rider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riders[rider.ID] = rider
	return nil
}

func (m *MockRiderRepository) GetByID(ctx context.Context, id string) (*domain.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rider, ok := m.riders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *rider
	return &copy, nil
}

func (m *MockRiderRepository) GetByPhone(ctx context.Context, phone string) (*domain.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.riders {
		if r.Phone == phone {
			copy := *r
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ──────────────────────────────────────────────
// MOCK CUSTOMER REPOSITORY
// ──────────────────────────────────────────────

// MockCustomerRepository is a mock implementation of CustomerRepository.
type MockCustomerRepository struct {
	mu        sync.RWMutex
	customers map[string]*domain.Customer
}

// NewMockCustomerRepository creates a new mock customer repository.
func NewMockCustomerRepository() *MockCustomerRepository {
	return &MockCustomerRepository{
		customers: make(map[string]*domain.Customer),
	}
}

// AddCustomer adds a customer to the mock repository.
func (m *MockCustomerRepository) AddCustomer(customer *domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[customer.ID] = customer
}

func (m *MockCustomerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[customer.ID] = customer
	return nil
}

func (m *MockCustomerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	customer, ok := m.customers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *customer
	return &copy, nil
}

func (m *MockCustomerRepository) GetByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.customers {
		if c.Phone == phone {
			copy := *c
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ──────────────────────────────────────────────
// MOCK FEED PUBLISHER
// ──────────────────────────────────────────────

// PublishedEvent pairs an event with the channel it was published to.
type PublishedEvent struct {
	Channel string
	Event   feed.Event
}

// MockPublisher records published events for verification.
type MockPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, channel string, ev feed.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, PublishedEvent{Channel: channel, Event: ev})
	return nil
}

// Events returns a snapshot of all published events.
func (m *MockPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]PublishedEvent, len(m.events))
	copy(result, m.events)
	return result
}

// EventsOn returns the events published to a channel.
func (m *MockPublisher) EventsOn(channel string) []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []PublishedEvent
	for _, e := range m.events {
		if e.Channel == channel {
			result = append(result, e)
		}
	}
	return result
}

// ──────────────────────────────────────────────
// MOCK ELIGIBLE POOL
// ──────────────────────────────────────────────

// MockPool records pool membership changes.
type MockPool struct {
	mu      sync.Mutex
	members map[string]bool
}

// NewMockPool creates a new mock pool.
func NewMockPool() *MockPool {
	return &MockPool{members: make(map[string]bool)}
}

func (m *MockPool) Add(ctx context.Context, serviceType domain.ServiceType, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[string(serviceType)+":"+orderID] = true
	return nil
}

func (m *MockPool) Remove(ctx context.Context, serviceType domain.ServiceType, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, string(serviceType)+":"+orderID)
	return nil
}

func (m *MockPool) Contains(ctx context.Context, serviceType domain.ServiceType, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[string(serviceType)+":"+orderID], nil
}

func (m *MockPool) Members(ctx context.Context, serviceType domain.ServiceType) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := string(serviceType) + ":"
	var ids []string
	for k := range m.members {
		if strings.HasPrefix(k, prefix) {
			ids = append(ids, strings.TrimPrefix(k, prefix))
		}
	}
	return ids, nil
}

// Has reports pool membership for test assertions.
func (m *MockPool) Has(serviceType domain.ServiceType, orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[string(serviceType)+":"+orderID]
}
