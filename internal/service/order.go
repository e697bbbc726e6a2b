package service

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dispatch/internal/domain"
	"dispatch/internal/feed"
	"dispatch/internal/repository"
)

// serviceFees is the flat service fee charged per service type.
var serviceFees = map[domain.ServiceType]decimal.Decimal{
	domain.ServiceTypeDelivery:    decimal.NewFromInt(49),
	domain.ServiceTypePlumbing:    decimal.NewFromInt(99),
	domain.ServiceTypeAircon:      decimal.NewFromInt(129),
	domain.ServiceTypeElectrician: decimal.NewFromInt(99),
	domain.ServiceTypeOther:       decimal.NewFromInt(79),
}

// OrderService handles order creation, lookup and cancellation.
type OrderService struct {
	orderRepo    repository.OrderRepository
	deliveryRepo repository.DeliveryRepository
	customerRepo repository.CustomerRepository
	publisher    feed.Publisher
	pool         EligiblePool
	notification *NotificationService
	logger       zerolog.Logger
}

// NewOrderService creates a new OrderService.
func NewOrderService(
	orderRepo repository.OrderRepository,
	deliveryRepo repository.DeliveryRepository,
	customerRepo repository.CustomerRepository,
	publisher feed.Publisher,
	pool EligiblePool,
	notification *NotificationService,
	logger zerolog.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:    orderRepo,
		deliveryRepo: deliveryRepo,
		customerRepo: customerRepo,
		publisher:    publisher,
		pool:         pool,
		notification: notification,
		logger:       logger.With().Str("component", "orders").Logger(),
	}
}

// CreateOrderRequest contains the parameters for creating an order.
type CreateOrderRequest struct {
	CustomerID      string
	ServiceType     domain.ServiceType
	PickupAddress   string
	DeliveryAddress string
	Description     string
	ReceiverName    string
	ReceiverPhone   string
	BaseAmount      decimal.Decimal
}

// CreateOrder creates a pending order and publishes it to the eligible pool
// for its service type. At most one non-terminal order per customer is
// enforced here, not left to client-side gating.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, err
	}

	if _, err := s.customerRepo.GetByID(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	active, err := s.orderRepo.GetActiveByCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrCustomerHasActiveOrder
	}

	fee := serviceFees[req.ServiceType]
	now := time.Now()
	order := &domain.Order{
		ID:              uuid.New().String(),
		Number:          generateOrderNumber(),
		CustomerID:      req.CustomerID,
		ServiceType:     req.ServiceType,
		PickupAddress:   req.PickupAddress,
		DeliveryAddress: req.DeliveryAddress,
		Description:     req.Description,
		ReceiverName:    req.ReceiverName,
		ReceiverPhone:   req.ReceiverPhone,
		ServiceFee:      fee,
		BaseAmount:      req.BaseAmount,
		Total:           fee.Add(req.BaseAmount),
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	if s.pool != nil {
		_ = s.pool.Add(ctx, order.ServiceType, order.ID)
	}

	s.publishOrderEvent(ctx, feed.EventInsert, nil, order, feed.OrderChannel(order.ID))
	s.publishOrderEvent(ctx, feed.EventInsert, nil, order, feed.EligibleChannel(order.ServiceType))

	s.logger.Info().Str("order_id", order.ID).Str("number", order.Number).
		Str("service_type", string(order.ServiceType)).Msg("order created")

	return order, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	return s.orderRepo.GetByID(ctx, orderID)
}

// CancelOrderRequest contains the parameters for cancelling an order.
type CancelOrderRequest struct {
	OrderID     string
	CancelledBy string // customer or rider ID, carried in notifications
}

// CancelOrder cancels a non-terminal order. The order row is deleted; a
// delivery row created by an earlier acceptance is kept as the durable
// earnings record, flipped to cancelled but never removed.
func (s *OrderService) CancelOrder(ctx context.Context, req CancelOrderRequest) error {
	if req.OrderID == "" {
		return ErrInvalidOrderID
	}

	order, err := s.orderRepo.GetByID(ctx, req.OrderID)
	if err != nil {
		return err
	}

	if !domain.CanTransitionOrder(order.Status, domain.OrderStatusCancelled) {
		return ErrOrderNotCancellable
	}

	delivery, err := s.deliveryRepo.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		return err
	}
	if delivery != nil && !delivery.Terminal() {
		delivery.Status = domain.DeliveryStatusCancelled
		if err := s.deliveryRepo.Update(ctx, delivery); err != nil {
			return err
		}
	}

	if err := s.orderRepo.Delete(ctx, req.OrderID); err != nil {
		return err
	}

	if s.pool != nil {
		_ = s.pool.Remove(ctx, order.ServiceType, order.ID)
	}

	s.publishOrderEvent(ctx, feed.EventDelete, order, nil, feed.OrderChannel(order.ID))
	s.publishOrderEvent(ctx, feed.EventDelete, order, nil, feed.EligibleChannel(order.ServiceType))

	if delivery != nil && s.publisher != nil {
		if ev, evErr := feed.NewEvent(feed.EventUpdate, feed.TableDeliveries, nil, delivery); evErr == nil {
			_ = s.publisher.Publish(ctx, feed.OrderChannel(order.ID), ev)
		}
	}

	if s.notification != nil {
		_ = s.notification.NotifyOrderCancelled(ctx, order, delivery, req.CancelledBy)
	}

	s.logger.Info().Str("order_id", order.ID).Str("cancelled_by", req.CancelledBy).Msg("order cancelled")

	return nil
}

// ListEligibleOrders returns the pending orders a rider of the given service
// type may claim, oldest first. The Redis membership mirror serves the read
// when it is warm; the database remains authoritative when the mirror is
// cold or unreadable.
func (s *OrderService) ListEligibleOrders(ctx context.Context, serviceType domain.ServiceType) ([]*domain.Order, error) {
	if !domain.ValidServiceType(serviceType) {
		return nil, ErrInvalidServiceType
	}

	if s.pool != nil {
		if orders, ok := s.listFromPool(ctx, serviceType); ok {
			return orders, nil
		}
	}
	return s.orderRepo.ListPendingByServiceType(ctx, serviceType)
}

// listFromPool resolves the pool mirror's member IDs against the order store.
// Stale members (claimed or cancelled since they were added) are pruned on
// read. Returns ok=false when the caller should fall back to the database.
func (s *OrderService) listFromPool(ctx context.Context, serviceType domain.ServiceType) ([]*domain.Order, bool) {
	ids, err := s.pool.Members(ctx, serviceType)
	if err != nil {
		s.logger.Debug().Err(err).Msg("pool read failed, serving from database")
		return nil, false
	}
	if len(ids) == 0 {
		// An empty mirror is indistinguishable from a cold one.
		return nil, false
	}

	orders := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		order, err := s.orderRepo.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && order.Status != domain.OrderStatusPending) {
			_ = s.pool.Remove(ctx, serviceType, id)
			continue
		}
		if err != nil {
			return nil, false
		}
		orders = append(orders, order)
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, true
}

func (s *OrderService) validateCreateRequest(req CreateOrderRequest) error {
	if req.CustomerID == "" {
		return ErrInvalidCustomerID
	}
	if !domain.ValidServiceType(req.ServiceType) {
		return ErrInvalidServiceType
	}
	if req.PickupAddress == "" {
		return ErrInvalidAddress
	}
	if req.ServiceType == domain.ServiceTypeDelivery && req.DeliveryAddress == "" {
		return ErrInvalidAddress
	}
	if req.BaseAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (s *OrderService) publishOrderEvent(ctx context.Context, kind feed.EventKind, oldOrder, newOrder *domain.Order, channel string) {
	if s.publisher == nil {
		return
	}
	var oldRow, newRow any
	if oldOrder != nil {
		oldRow = oldOrder
	}
	if newOrder != nil {
		newRow = newOrder
	}
	ev, err := feed.NewEvent(kind, feed.TableOrders, oldRow, newRow)
	if err != nil {
		return
	}
	_ = s.publisher.Publish(ctx, channel, ev)
}

// generateOrderNumber builds the client-visible order number, e.g.
// ORD-9f86d0-20857134.
func generateOrderNumber() string {
	id := uuid.New()
	hex := strings.ReplaceAll(id.String(), "-", "")
	n := binary.BigEndian.Uint32(id[12:16]) % 100000000
	return "ORD-" + hex[:6] + "-" + padDigits(n)
}

func padDigits(n uint32) string {
	digits := []byte("00000000")
	for i := 7; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}
