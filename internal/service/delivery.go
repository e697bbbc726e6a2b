package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dispatch/internal/domain"
	"dispatch/internal/feed"
	"dispatch/internal/repository"
)

// DeliveryService handles rider progress updates on an accepted order:
// preparing, pickup, transit, delivered and completion. Every transition is
// validated against the lifecycle tables before any write.
type DeliveryService struct {
	orderRepo    repository.OrderRepository
	deliveryRepo repository.DeliveryRepository
	publisher    feed.Publisher
	notification *NotificationService
	logger       zerolog.Logger
}

// NewDeliveryService creates a new DeliveryService.
func NewDeliveryService(
	orderRepo repository.OrderRepository,
	deliveryRepo repository.DeliveryRepository,
	publisher feed.Publisher,
	notification *NotificationService,
	logger zerolog.Logger,
) *DeliveryService {
	return &DeliveryService{
		orderRepo:    orderRepo,
		deliveryRepo: deliveryRepo,
		publisher:    publisher,
		notification: notification,
		logger:       logger.With().Str("component", "delivery").Logger(),
	}
}

// GetDelivery retrieves a delivery by ID.
func (s *DeliveryService) GetDelivery(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	if deliveryID == "" {
		return nil, ErrInvalidDeliveryID
	}
	return s.deliveryRepo.GetByID(ctx, deliveryID)
}

// MarkPreparing moves a confirmed order into preparation. The delivery is
// untouched; preparation precedes pickup.
func (s *DeliveryService) MarkPreparing(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	return s.advanceOrder(ctx, orderID, domain.OrderStatusPreparing)
}

// MarkPickedUp records that the rider picked up the order. Repeating the
// call is a no-op: the flag is monotonic.
func (s *DeliveryService) MarkPickedUp(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	if deliveryID == "" {
		return nil, ErrInvalidDeliveryID
	}

	delivery, err := s.deliveryRepo.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	if delivery.IsPickedUp {
		return delivery, nil
	}

	if !domain.CanTransitionDelivery(delivery.Status, domain.DeliveryStatusPickedUp) {
		return nil, fmt.Errorf("%w: delivery %s to %s", domain.ErrTransitionNotPermitted, delivery.Status, domain.DeliveryStatusPickedUp)
	}

	delivery.IsPickedUp = true
	delivery.Status = domain.DeliveryStatusPickedUp
	delivery.UpdatedAt = time.Now()

	if err := s.deliveryRepo.Update(ctx, delivery); err != nil {
		return nil, err
	}

	if _, err := s.advanceOrder(ctx, delivery.OrderID, domain.OrderStatusPicked); err != nil {
		return nil, err
	}

	s.publishDeliveryUpdate(ctx, delivery)
	return delivery, nil
}

// MarkInTransit records that the rider is on the way.
func (s *DeliveryService) MarkInTransit(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	if deliveryID == "" {
		return nil, ErrInvalidDeliveryID
	}

	delivery, err := s.deliveryRepo.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	if delivery.Status == domain.DeliveryStatusInTransit {
		return delivery, nil
	}

	if !domain.CanTransitionDelivery(delivery.Status, domain.DeliveryStatusInTransit) {
		return nil, fmt.Errorf("%w: delivery %s to %s", domain.ErrTransitionNotPermitted, delivery.Status, domain.DeliveryStatusInTransit)
	}

	delivery.Status = domain.DeliveryStatusInTransit
	delivery.UpdatedAt = time.Now()

	if err := s.deliveryRepo.Update(ctx, delivery); err != nil {
		return nil, err
	}

	if _, err := s.advanceOrder(ctx, delivery.OrderID, domain.OrderStatusInTransit); err != nil {
		return nil, err
	}

	s.publishDeliveryUpdate(ctx, delivery)
	return delivery, nil
}

// MarkDelivered records hand-off to the receiver. The order moves to
// delivered; the delivery stays in transit until completion confirms it.
func (s *DeliveryService) MarkDelivered(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	if deliveryID == "" {
		return nil, ErrInvalidDeliveryID
	}

	delivery, err := s.deliveryRepo.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	if _, err := s.advanceOrder(ctx, delivery.OrderID, domain.OrderStatusDelivered); err != nil {
		return nil, err
	}

	return delivery, nil
}

// CompleteOrder completes a delivery and its order. Idempotent: a second
// call returns the unchanged state with no error.
func (s *DeliveryService) CompleteOrder(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	if deliveryID == "" {
		return nil, ErrInvalidDeliveryID
	}

	delivery, err := s.deliveryRepo.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	if delivery.IsCompleted {
		return delivery, nil
	}

	if !domain.CanTransitionDelivery(delivery.Status, domain.DeliveryStatusCompleted) {
		return nil, fmt.Errorf("%w: delivery %s to %s", domain.ErrTransitionNotPermitted, delivery.Status, domain.DeliveryStatusCompleted)
	}

	delivery.IsCompleted = true
	delivery.Status = domain.DeliveryStatusCompleted
	delivery.UpdatedAt = time.Now()

	if err := s.deliveryRepo.Update(ctx, delivery); err != nil {
		return nil, err
	}

	order, err := s.advanceOrder(ctx, delivery.OrderID, domain.OrderStatusCompleted)
	if err != nil {
		return nil, err
	}

	s.publishDeliveryUpdate(ctx, delivery)

	if s.notification != nil && order != nil {
		_ = s.notification.NotifyOrderCompleted(ctx, order, delivery)
	}

	s.logger.Info().Str("delivery_id", delivery.ID).Str("order_id", delivery.OrderID).Msg("order completed")

	return delivery, nil
}

// advanceOrder validates and applies an order status transition, publishing
// the update to the order channel. Already being at the target status is a
// no-op, which keeps the progress operations idempotent.
func (s *DeliveryService) advanceOrder(ctx context.Context, orderID string, to domain.OrderStatus) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == to {
		return order, nil
	}

	if !domain.CanTransitionOrder(order.Status, to) {
		return nil, fmt.Errorf("%w: order %s to %s", domain.ErrTransitionNotPermitted, order.Status, to)
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, to); err != nil {
		return nil, err
	}

	updated := *order
	updated.Status = to
	updated.UpdatedAt = time.Now()

	if s.publisher != nil {
		if ev, evErr := feed.NewEvent(feed.EventUpdate, feed.TableOrders, order, &updated); evErr == nil {
			_ = s.publisher.Publish(ctx, feed.OrderChannel(orderID), ev)
		}
	}

	return &updated, nil
}

func (s *DeliveryService) publishDeliveryUpdate(ctx context.Context, delivery *domain.Delivery) {
	if s.publisher == nil {
		return
	}
	ev, err := feed.NewEvent(feed.EventUpdate, feed.TableDeliveries, nil, delivery)
	if err != nil {
		return
	}
	_ = s.publisher.Publish(ctx, feed.OrderChannel(delivery.OrderID), ev)
}
