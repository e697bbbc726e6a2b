package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dispatch/internal/domain"
	"dispatch/internal/feed"
	"dispatch/internal/repository"
)

// EligiblePool is the fast membership mirror of pending orders per service
// type. The dispatch services maintain it on order transitions; the rider
// listing reads Members and the requeue sweep reads Contains.
type EligiblePool interface {
	Add(ctx context.Context, serviceType domain.ServiceType, orderID string) error
	Remove(ctx context.Context, serviceType domain.ServiceType, orderID string) error
	Contains(ctx context.Context, serviceType domain.ServiceType, orderID string) (bool, error)
	Members(ctx context.Context, serviceType domain.ServiceType) ([]string, error)
}

// DispatchService resolves the race when riders attempt to accept the same
// pending order, guaranteeing at most one winner. The order row is never
// locked: the conditional status update is the arbiter.
type DispatchService struct {
	orderRepo    repository.OrderRepository
	deliveryRepo repository.DeliveryRepository
	riderRepo    repository.RiderRepository
	publisher    feed.Publisher
	pool         EligiblePool
	notification *NotificationService
	riderShare   decimal.Decimal // fraction of the service fee paid out as earnings
	logger       zerolog.Logger
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(
	orderRepo repository.OrderRepository,
	deliveryRepo repository.DeliveryRepository,
	riderRepo repository.RiderRepository,
	publisher feed.Publisher,
	pool EligiblePool,
	notification *NotificationService,
	riderShare decimal.Decimal,
	logger zerolog.Logger,
) *DispatchService {
	return &DispatchService{
		orderRepo:    orderRepo,
		deliveryRepo: deliveryRepo,
		riderRepo:    riderRepo,
		publisher:    publisher,
		pool:         pool,
		notification: notification,
		riderShare:   riderShare,
		logger:       logger.With().Str("component", "dispatch").Logger(),
	}
}

// AcceptOrder lets a rider claim a pending order. Exactly one concurrent
// caller wins; the rest get ErrOrderNoLongerAvailable.
//
// The claim is a conditional update of the order status from pending to
// confirmed; only the caller whose update affected a row inserts the
// delivery. If the delivery insert fails the order status is rolled back to
// pending so the order re-enters the eligible pool instead of being stranded
// confirmed with no delivery.
func (s *DispatchService) AcceptOrder(ctx context.Context, orderID, riderID string) (*domain.Delivery, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}

	rider, err := s.riderRepo.GetByID(ctx, riderID)
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if rider.ServiceType != order.ServiceType {
		return nil, ErrServiceTypeMismatch
	}

	if order.Status != domain.OrderStatusPending {
		return nil, ErrOrderNoLongerAvailable
	}

	won, err := s.orderRepo.UpdateStatusIf(ctx, orderID, domain.OrderStatusPending, domain.OrderStatusConfirmed)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another rider got there first. Routine, not logged as an error.
		s.logger.Debug().Str("order_id", orderID).Str("rider_id", riderID).Msg("accept lost race")
		return nil, ErrOrderNoLongerAvailable
	}

	now := time.Now()
	delivery := &domain.Delivery{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		RiderID:     riderID,
		IsAssigned:  true,
		IsAccepted:  true,
		Status:      domain.DeliveryStatusAccepted,
		Earnings:    order.ServiceFee.Mul(s.riderShare).Round(2),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.deliveryRepo.Create(ctx, delivery); err != nil {
		return nil, s.rollbackAccept(ctx, orderID, err)
	}

	if s.pool != nil {
		_ = s.pool.Remove(ctx, order.ServiceType, orderID)
	}

	confirmed := *order
	confirmed.Status = domain.OrderStatusConfirmed
	confirmed.UpdatedAt = now
	s.publishOrderUpdate(ctx, order, &confirmed)
	s.publishDeliveryInsert(ctx, delivery)
	s.publishEligibleRemoval(ctx, &confirmed)

	if s.notification != nil {
		_ = s.notification.NotifyRiderAccepted(ctx, &confirmed, rider)
	}

	return delivery, nil
}

// rollbackAccept compensates a failed delivery insert by returning the order
// to pending. If the rollback itself fails, the order is stranded confirmed
// with no delivery and the failure is escalated as a fatal inconsistency.
func (s *DispatchService) rollbackAccept(ctx context.Context, orderID string, cause error) error {
	rolledBack, rbErr := s.orderRepo.UpdateStatusIf(ctx, orderID, domain.OrderStatusConfirmed, domain.OrderStatusPending)
	if rbErr == nil && rolledBack {
		s.logger.Warn().Str("order_id", orderID).Err(cause).Msg("delivery insert failed; order returned to pending")
		return cause
	}

	if rbErr == nil {
		// Zero rows with no error: a cancel that raced the claim deleted the
		// order row, which is also what broke the insert. Nothing is
		// stranded, the claim simply lost.
		if _, getErr := s.orderRepo.GetByID(ctx, orderID); errors.Is(getErr, repository.ErrNotFound) {
			s.logger.Debug().Str("order_id", orderID).Msg("order cancelled during claim")
			return ErrOrderNoLongerAvailable
		}
	}

	s.logger.Error().
		Str("order_id", orderID).
		AnErr("cause", cause).
		AnErr("rollback_error", rbErr).
		Msg("delivery insert failed and status rollback failed; order stranded confirmed")
	return fmt.Errorf("%w: order %s: delivery insert failed (%v)", ErrInconsistentState, orderID, cause)
}

// Requeue republishes a pending order to its eligible channel so riders
// whose subscription dropped see it again. Membership in the pool mirror is
// restored on the way, so the rider listing converges too.
func (s *DispatchService) Requeue(ctx context.Context, order *domain.Order) error {
	if order.Status != domain.OrderStatusPending {
		return nil
	}

	if s.pool != nil {
		if in, err := s.pool.Contains(ctx, order.ServiceType, order.ID); err == nil && !in {
			_ = s.pool.Add(ctx, order.ServiceType, order.ID)
		}
	}

	ev, err := feed.NewEvent(feed.EventInsert, feed.TableOrders, nil, order)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, feed.EligibleChannel(order.ServiceType), ev)
}

func (s *DispatchService) publishOrderUpdate(ctx context.Context, oldOrder, newOrder *domain.Order) {
	if s.publisher == nil {
		return
	}
	ev, err := feed.NewEvent(feed.EventUpdate, feed.TableOrders, oldOrder, newOrder)
	if err != nil {
		return
	}
	_ = s.publisher.Publish(ctx, feed.OrderChannel(newOrder.ID), ev)
}

func (s *DispatchService) publishDeliveryInsert(ctx context.Context, delivery *domain.Delivery) {
	if s.publisher == nil {
		return
	}
	ev, err := feed.NewEvent(feed.EventInsert, feed.TableDeliveries, nil, delivery)
	if err != nil {
		return
	}
	_ = s.publisher.Publish(ctx, feed.OrderChannel(delivery.OrderID), ev)
}

func (s *DispatchService) publishEligibleRemoval(ctx context.Context, order *domain.Order) {
	if s.publisher == nil {
		return
	}
	ev, err := feed.NewEvent(feed.EventDelete, feed.TableOrders, order, nil)
	if err != nil {
		return
	}
	_ = s.publisher.Publish(ctx, feed.EligibleChannel(order.ServiceType), ev)
}
