package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dispatch/internal/domain"
	"dispatch/internal/feed"
	"dispatch/internal/service"
)

func newDispatchService(orderRepo *MockOrderRepository, deliveryRepo *MockDeliveryRepository, riderRepo *MockRiderRepository, publisher *MockPublisher, pool *MockPool) *service.DispatchService {
	notification := service.NewNotificationService(zerolog.Nop())
	return service.NewDispatchService(
		orderRepo, deliveryRepo, riderRepo,
		publisher, pool, notification,
		decimal.NewFromFloat(0.8), zerolog.Nop(),
	)
}

func pendingOrder(id string, serviceType domain.ServiceType) *domain.Order {
	now := time.Now()
	return &domain.Order{
		ID:            id,
		Number:        "ORD-abc123-45678901",
		CustomerID:    "customer-1",
		ServiceType:   serviceType,
		PickupAddress: "12 North St",
		ServiceFee:    decimal.NewFromInt(49),
		BaseAmount:    decimal.NewFromInt(100),
		Total:         decimal.NewFromInt(149),
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func addRider(riderRepo *MockRiderRepository, id string, serviceType domain.ServiceType) {
	riderRepo.AddRider(&domain.Rider{
		ID:          id,
		Name:        "Rider " + id,
		Phone:       "555-" + id,
		ServiceType: serviceType,
	})
}

// Two riders race for the same order: exactly one wins, the loser sees the
// order as no longer available, and exactly one delivery exists afterwards.
func TestAcceptOrderTwoRiderRace(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	deliveryRepo := NewMockDeliveryRepository()
	riderRepo := NewMockRiderRepository()
	publisher := NewMockPublisher()
	pool := NewMockPool()
	svc := newDispatchService(orderRepo, deliveryRepo, riderRepo, publisher, pool)

	order := pendingOrder("order-1", domain.ServiceTypeDelivery)
	orderRepo.AddOrder(order)
	_ = pool.Add(context.Background(), order.ServiceType, order.ID)
	addRider(riderRepo, "rider-a", domain.ServiceTypeDelivery)
	addRider(riderRepo, "rider-b", domain.ServiceTypeDelivery)

	var wg sync.WaitGroup
	results := make(map[string]error, 2)
	var mu sync.Mutex

	for _, riderID := range []string{"rider-a", "rider-b"} {
		wg.Add(1)
		go func(riderID string) {
			defer wg.Done()
			_, err := svc.AcceptOrder(context.Background(), "order-1", riderID)
			mu.Lock()
			results[riderID] = err
			mu.Unlock()
		}(riderID)
	}
	wg.Wait()

	var winners, losers int
	for riderID, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, service.ErrOrderNoLongerAvailable):
			losers++
		default:
			t.Fatalf("rider %s: unexpected error: %v", riderID, err)
		}
	}
	if winners != 1 || losers != 1 {
		t.Fatalf("expected 1 winner and 1 loser, got %d winners and %d losers", winners, losers)
	}

	if got := orderRepo.GetOrder("order-1").Status; got != domain.OrderStatusConfirmed {
		t.Errorf("order status = %s, want confirmed", got)
	}
	if got := deliveryRepo.CreateCallCount; got != 1 {
		t.Errorf("delivery Create called %d times, want 1", got)
	}
	delivery, err := deliveryRepo.GetByOrderID(context.Background(), "order-1")
	if err != nil || delivery == nil {
		t.Fatalf("expected a delivery for order-1, got %v, %v", delivery, err)
	}
	if !delivery.IsAccepted || delivery.RiderID == "" {
		t.Errorf("delivery not marked accepted: %+v", delivery)
	}
	if pool.Has(domain.ServiceTypeDelivery, "order-1") {
		t.Error("claimed order still in eligible pool")
	}
}

// Many riders race for the same order; the conditional update must admit at
// most one winner regardless of interleaving.
func TestAcceptOrderAtMostOneWinner(t *testing.T) {
	const riders = 32

	orderRepo := NewMockOrderRepository()
	deliveryRepo := NewMockDeliveryRepository()
	riderRepo := NewMockRiderRepository()
	svc := newDispatchService(orderRepo, deliveryRepo, riderRepo, NewMockPublisher(), NewMockPool())

	orderRepo.AddOrder(pendingOrder("order-1", domain.ServiceTypePlumbing))

	riderIDs := make([]string, riders)
	for i := range riderIDs {
		riderIDs[i] = fmt.Sprintf("rider-%d", i)
		addRider(riderRepo, riderIDs[i], domain.ServiceTypePlumbing)
	}

	var wg sync.WaitGroup
	var winners int32
	var winnersMu sync.Mutex

	for _, riderID := range riderIDs {
		wg.Add(1)
		go func(riderID string) {
			defer wg.Done()
			if _, err := svc.AcceptOrder(context.Background(), "order-1", riderID); err == nil {
				winnersMu.Lock()
				winners++
				winnersMu.Unlock()
			} else if !errors.Is(err, service.ErrOrderNoLongerAvailable) {
				t.Errorf("rider %s: unexpected error: %v", riderID, err)
			}
		}(riderID)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}
	if got := deliveryRepo.CreateCallCount; got != 1 {
		t.Errorf("delivery Create called %d times, want 1", got)
	}
}

// A failed delivery insert must roll the order back to pending so it
// re-enters the eligible pool instead of being stranded confirmed.
func TestAcceptOrderRollbackOnDeliveryFailure(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	deliveryRepo := NewMockDeliveryRepository()
	deliveryRepo.CreateError = errors.New("insert failed")
	riderRepo := NewMockRiderRepository()
	svc := newDispatchService(orderRepo, deliveryRepo, riderRepo, NewMockPublisher(), NewMockPool())

	orderRepo.AddOrder(pendingOrder("order-1", domain.ServiceTypeDelivery))
	addRider(riderRepo, "rider-a", domain.ServiceTypeDelivery)

	_, err := svc.AcceptOrder(context.Background(), "order-1", "rider-a")
	if err == nil {
		t.Fatal("expected an error from the failed delivery insert")
	}
	if errors.Is(err, service.ErrInconsistentState) {
		t.Fatalf("rollback succeeded but error escalated to inconsistent state: %v", err)
	}

	if got := orderRepo.GetOrder("order-1").Status; got != domain.OrderStatusPending {
		t.Errorf("order status after rollback = %s, want pending", got)
	}

	// The order is claimable again.
	deliveryRepo.CreateError = nil
	addRider(riderRepo, "rider-b", domain.ServiceTypeDelivery)
	if _, err := svc.AcceptOrder(context.Background(), "order-1", "rider-b"); err != nil {
		t.Fatalf("second accept after rollback failed: %v", err)
	}
}

// When the delivery insert and the compensating rollback both fail, the
// order is stranded confirmed with no delivery. The error must escalate so
// an operator can intervene.
func TestAcceptOrderRollbackFailureEscalates(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	deliveryRepo := NewMockDeliveryRepository()
	deliveryRepo.CreateError = errors.New("insert failed")
	orderRepo.FailStatusUpdateFrom = domain.OrderStatusConfirmed
	orderRepo.FailStatusUpdateError = errors.New("connection reset")
	riderRepo := NewMockRiderRepository()
	svc := newDispatchService(orderRepo, deliveryRepo, riderRepo, NewMockPublisher(), NewMockPool())

	orderRepo.AddOrder(pendingOrder("order-1", domain.ServiceTypeDelivery))
	addRider(riderRepo, "rider-a", domain.ServiceTypeDelivery)

	_, err := svc.AcceptOrder(context.Background(), "order-1", "rider-a")
	if !errors.Is(err, service.ErrInconsistentState) {
		t.Fatalf("err = %v, want ErrInconsistentState", err)
	}

	// The claim landed but could not be undone.
	if got := orderRepo.GetOrder("order-1").Status; got != domain.OrderStatusConfirmed {
		t.Errorf("order status = %s, want confirmed (stranded)", got)
	}
	delivery, _ := deliveryRepo.GetByOrderID(context.Background(), "order-1")
	if delivery != nil {
		t.Errorf("unexpected delivery for stranded order: %+v", delivery)
	}
}

// A cancel that removes the order row between the claim and the delivery
// insert is a lost race for the rider, not a fatal inconsistency: the order
// is gone, no delivery exists, nothing is stranded.
func TestAcceptOrderCancelledMidClaim(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	deliveryRepo := NewMockDeliveryRepository()
	riderRepo := NewMockRiderRepository()
	svc := newDispatchService(orderRepo, deliveryRepo, riderRepo, NewMockPublisher(), NewMockPool())

	orderRepo.AddOrder(pendingOrder("order-1", domain.ServiceTypeDelivery))
	addRider(riderRepo, "rider-a", domain.ServiceTypeDelivery)

	// The order row vanishes under the insert, which fails like the foreign
	// key violation the real store would raise.
	deliveryRepo.CreateHook = func(d *domain.Delivery) error {
		_ = orderRepo.Delete(context.Background(), d.OrderID)
		return errors.New("order row gone")
	}

	_, err := svc.AcceptOrder(context.Background(), "order-1", "rider-a")
	if !errors.Is(err, service.ErrOrderNoLongerAvailable) {
		t.Fatalf("err = %v, want ErrOrderNoLongerAvailable", err)
	}
	if errors.Is(err, service.ErrInconsistentState) {
		t.Fatal("lost race escalated to inconsistent state")
	}
	if got := orderRepo.GetOrder("order-1"); got != nil {
		t.Errorf("cancelled order still present: %+v", got)
	}
}

// A rider of the wrong service type never reaches the claim.
func TestAcceptOrderServiceTypeMismatch(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	riderRepo := NewMockRiderRepository()
	svc := newDispatchService(orderRepo, NewMockDeliveryRepository(), riderRepo, NewMockPublisher(), NewMockPool())

	orderRepo.AddOrder(pendingOrder("order-1", domain.ServiceTypeAircon))
	addRider(riderRepo, "rider-a", domain.ServiceTypeDelivery)

	_, err := svc.AcceptOrder(context.Background(), "order-1", "rider-a")
	if !errors.Is(err, service.ErrServiceTypeMismatch) {
		t.Fatalf("err = %v, want ErrServiceTypeMismatch", err)
	}
	if got := orderRepo.GetOrder("order-1").Status; got != domain.OrderStatusPending {
		t.Errorf("order status = %s, want pending untouched", got)
	}
}

// Accepting publishes the confirmed order and the new delivery on the order
// channel, and a removal on the eligible channel.
func TestAcceptOrderPublishesEvents(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	riderRepo := NewMockRiderRepository()
	publisher := NewMockPublisher()
	svc := newDispatchService(orderRepo, NewMockDeliveryRepository(), riderRepo, publisher, NewMockPool())

	order := pendingOrder("order-1", domain.ServiceTypeDelivery)
	orderRepo.AddOrder(order)
	addRider(riderRepo, "rider-a", domain.ServiceTypeDelivery)

	if _, err := svc.AcceptOrder(context.Background(), "order-1", "rider-a"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	orderEvents := publisher.EventsOn(feed.OrderChannel("order-1"))
	if len(orderEvents) != 2 {
		t.Fatalf("order channel events = %d, want 2", len(orderEvents))
	}
	if orderEvents[0].Event.Table != feed.TableOrders || orderEvents[0].Event.Kind != feed.EventUpdate {
		t.Errorf("first event = %s %s, want orders update", orderEvents[0].Event.Table, orderEvents[0].Event.Kind)
	}
	if orderEvents[1].Event.Table != feed.TableDeliveries || orderEvents[1].Event.Kind != feed.EventInsert {
		t.Errorf("second event = %s %s, want deliveries insert", orderEvents[1].Event.Table, orderEvents[1].Event.Kind)
	}

	eligibleEvents := publisher.EventsOn(feed.EligibleChannel(domain.ServiceTypeDelivery))
	if len(eligibleEvents) != 1 || eligibleEvents[0].Event.Kind != feed.EventDelete {
		t.Fatalf("eligible channel events = %+v, want one delete", eligibleEvents)
	}
}

// Requeue republishes only pending orders.
func TestRequeueSkipsNonPending(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	publisher := NewMockPublisher()
	svc := newDispatchService(orderRepo, NewMockDeliveryRepository(), NewMockRiderRepository(), publisher, NewMockPool())

	pending := pendingOrder("order-1", domain.ServiceTypeDelivery)
	confirmed := pendingOrder("order-2", domain.ServiceTypeDelivery)
	confirmed.Status = domain.OrderStatusConfirmed

	if err := svc.Requeue(context.Background(), pending); err != nil {
		t.Fatalf("requeue pending: %v", err)
	}
	if err := svc.Requeue(context.Background(), confirmed); err != nil {
		t.Fatalf("requeue confirmed: %v", err)
	}

	events := publisher.EventsOn(feed.EligibleChannel(domain.ServiceTypeDelivery))
	if len(events) != 1 {
		t.Fatalf("eligible events = %d, want 1", len(events))
	}
	var republished domain.Order
	if err := events[0].Event.DecodeNew(&republished); err != nil {
		t.Fatalf("decode republished order: %v", err)
	}
	if republished.ID != "order-1" {
		t.Errorf("republished order = %s, want order-1", republished.ID)
	}
}

// Requeue restores mirror membership for a pending order the pool lost, so
// the rider listing converges along with the eligible channel.
func TestRequeueRepairsPoolMirror(t *testing.T) {
	pool := NewMockPool()
	svc := newDispatchService(NewMockOrderRepository(), NewMockDeliveryRepository(), NewMockRiderRepository(), NewMockPublisher(), pool)

	order := pendingOrder("order-1", domain.ServiceTypeDelivery)

	if err := svc.Requeue(context.Background(), order); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if !pool.Has(domain.ServiceTypeDelivery, "order-1") {
		t.Error("requeued order not restored to the pool mirror")
	}

	// Non-pending orders are neither republished nor re-added.
	claimed := pendingOrder("order-2", domain.ServiceTypeDelivery)
	claimed.Status = domain.OrderStatusConfirmed
	if err := svc.Requeue(context.Background(), claimed); err != nil {
		t.Fatalf("requeue claimed: %v", err)
	}
	if pool.Has(domain.ServiceTypeDelivery, "order-2") {
		t.Error("claimed order added to the pool mirror")
	}
}
