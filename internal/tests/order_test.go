package tests

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

func newOrderService(orderRepo *MockOrderRepository, deliveryRepo *MockDeliveryRepository, customerRepo *MockCustomerRepository, publisher *MockPublisher, pool *MockPool) *service.OrderService {
	notification := service.NewNotificationService(zerolog.Nop())
	return service.NewOrderService(orderRepo, deliveryRepo, customerRepo, publisher, pool, notification, zerolog.Nop())
}

func newDeliveryService(orderRepo *MockOrderRepository, deliveryRepo *MockDeliveryRepository, publisher *MockPublisher) *service.DeliveryService {
	notification := service.NewNotificationService(zerolog.Nop())
	return service.NewDeliveryService(orderRepo, deliveryRepo, publisher, notification, zerolog.Nop())
}

func addCustomer(customerRepo *MockCustomerRepository, id string) {
	customerRepo.AddCustomer(&domain.Customer{ID: id, Name: "Customer " + id, Phone: "555-" + id})
}

func createRequest(customerID string) service.CreateOrderRequest {
	return service.CreateOrderRequest{
		CustomerID:      customerID,
		ServiceType:     domain.ServiceTypeDelivery,
		PickupAddress:   "12 North St",
		DeliveryAddress: "80 South Ave",
		ReceiverName:    "Ana",
		ReceiverPhone:   "555-0000",
		BaseAmount:      decimal.NewFromInt(100),
	}
}

func TestCreateOrder(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	customerRepo := NewMockCustomerRepository()
	pool := NewMockPool()
	svc := newOrderService(orderRepo, NewMockDeliveryRepository(), customerRepo, NewMockPublisher(), pool)

	addCustomer(customerRepo, "customer-1")

	order, err := svc.CreateOrder(context.Background(), createRequest("customer-1"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Errorf("status = %s, want pending", order.Status)
	}
	if !order.Total.Equal(decimal.NewFromInt(149)) {
		t.Errorf("total = %s, want 149 (fee 49 + base 100)", order.Total)
	}
	if !strings.HasPrefix(order.Number, "ORD-") || len(order.Number) != len("ORD-abc123-45678901") {
		t.Errorf("order number format: %q", order.Number)
	}
	if !pool.Has(domain.ServiceTypeDelivery, order.ID) {
		t.Error("new order missing from eligible pool")
	}
}

// A customer with a live order cannot place another; completion or
// cancellation frees the slot.
func TestCreateOrderOnePerCustomer(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	customerRepo := NewMockCustomerRepository()
	svc := newOrderService(orderRepo, NewMockDeliveryRepository(), customerRepo, NewMockPublisher(), NewMockPool())

	addCustomer(customerRepo, "customer-1")

	first, err := svc.CreateOrder(context.Background(), createRequest("customer-1"))
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	if _, err := svc.CreateOrder(context.Background(), createRequest("customer-1")); !errors.Is(err, service.ErrCustomerHasActiveOrder) {
		t.Fatalf("second create err = %v, want ErrCustomerHasActiveOrder", err)
	}

	// Terminal order frees the slot.
	if err := orderRepo.UpdateStatus(context.Background(), first.ID, domain.OrderStatusCompleted); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateOrder(context.Background(), createRequest("customer-1")); err != nil {
		t.Fatalf("create after completion failed: %v", err)
	}
}

// Cancelling a claimed order removes the order row but keeps the delivery as
// the rider's record, flipped to cancelled.
func TestCancelOrderKeepsDelivery(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	deliveryRepo := NewMockDeliveryRepository()
	customerRepo := NewMockCustomerRepository()
	svc := newOrderService(orderRepo, deliveryRepo, customerRepo, NewMockPublisher(), NewMockPool())

	order := pendingOrder("order-1", domain.ServiceTypeDelivery)
	order.Status = domain.OrderStatusPreparing
	orderRepo.AddOrder(order)
	deliveryRepo.AddDelivery(&domain.Delivery{
		ID:         "delivery-1",
		OrderID:    "order-1",
		RiderID:    "rider-a",
		IsAssigned: true,
		IsAccepted: true,
		Status:     domain.DeliveryStatusAccepted,
		Earnings:   decimal.NewFromInt(39),
	})

	err := svc.CancelOrder(context.Background(), service.CancelOrderRequest{
		OrderID:     "order-1",
		CancelledBy: "customer-1",
	})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if orderRepo.GetOrder("order-1") != nil {
		t.Error("order row still present after cancellation")
	}

	delivery := deliveryRepo.GetDelivery("delivery-1")
	if delivery == nil {
		t.Fatal("delivery removed by cancellation; it must be kept")
	}
	if delivery.Status != domain.DeliveryStatusCancelled {
		t.Errorf("delivery status = %s, want cancelled", delivery.Status)
	}
	if !delivery.Earnings.Equal(decimal.NewFromInt(39)) {
		t.Errorf("delivery earnings changed: %s", delivery.Earnings)
	}
}

func TestCancelOrderTerminalRejected(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	svc := newOrderService(orderRepo, NewMockDeliveryRepository(), NewMockCustomerRepository(), NewMockPublisher(), NewMockPool())

	order := pendingOrder("order-1", domain.ServiceTypeDelivery)
	order.Status = domain.OrderStatusCompleted
	orderRepo.AddOrder(order)

	err := svc.CancelOrder(context.Background(), service.CancelOrderRequest{OrderID: "order-1"})
	if !errors.Is(err, service.ErrOrderNotCancellable) {
		t.Fatalf("err = %v, want ErrOrderNotCancellable", err)
	}
	if orderRepo.GetOrder("order-1") == nil {
		t.Error("completed order deleted by rejected cancellation")
	}
}

func TestCancelOrderMissing(t *testing.T) {
	svc := newOrderService(NewMockOrderRepository(), NewMockDeliveryRepository(), NewMockCustomerRepository(), NewMockPublisher(), NewMockPool())

	err := svc.CancelOrder(context.Background(), service.CancelOrderRequest{OrderID: "nope"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// Completing twice returns the unchanged delivery and does not move the
// order; earnings are recorded once.
func TestCompleteOrderIdempotent(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	deliveryRepo := NewMockDeliveryRepository()
	publisher := NewMockPublisher()
	svc := newDeliveryService(orderRepo, deliveryRepo, publisher)

	order := pendingOrder("order-1", domain.ServiceTypeDelivery)
	order.Status = domain.OrderStatusInTransit
	orderRepo.AddOrder(order)
	deliveryRepo.AddDelivery(&domain.Delivery{
		ID:         "delivery-1",
		OrderID:    "order-1",
		RiderID:    "rider-a",
		IsAssigned: true,
		IsAccepted: true,
		IsPickedUp: true,
		Status:     domain.DeliveryStatusInTransit,
		Earnings:   decimal.NewFromInt(39),
	})

	first, err := svc.CompleteOrder(context.Background(), "delivery-1")
	if err != nil {
		t.Fatalf("first complete failed: %v", err)
	}
	if !first.IsCompleted || first.Status != domain.DeliveryStatusCompleted {
		t.Fatalf("first complete state: %+v", first)
	}
	if got := orderRepo.GetOrder("order-1").Status; got != domain.OrderStatusCompleted {
		t.Fatalf("order status = %s, want completed", got)
	}

	eventsAfterFirst := len(publisher.Events())

	second, err := svc.CompleteOrder(context.Background(), "delivery-1")
	if err != nil {
		t.Fatalf("second complete failed: %v", err)
	}
	if !second.IsCompleted {
		t.Error("second complete lost the completed flag")
	}
	if got := len(publisher.Events()); got != eventsAfterFirst {
		t.Errorf("repeat completion published %d extra events", got-eventsAfterFirst)
	}
	if !second.Earnings.Equal(first.Earnings) {
		t.Errorf("earnings changed on repeat completion: %s vs %s", second.Earnings, first.Earnings)
	}
}

// Pickup is monotonic: repeating the call is a no-op.
func TestMarkPickedUpIdempotent(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	deliveryRepo := NewMockDeliveryRepository()
	svc := newDeliveryService(orderRepo, deliveryRepo, NewMockPublisher())

	order := pendingOrder("order-1", domain.ServiceTypeDelivery)
	order.Status = domain.OrderStatusConfirmed
	orderRepo.AddOrder(order)
	deliveryRepo.AddDelivery(&domain.Delivery{
		ID:         "delivery-1",
		OrderID:    "order-1",
		RiderID:    "rider-a",
		IsAssigned: true,
		IsAccepted: true,
		Status:     domain.DeliveryStatusAccepted,
	})

	if _, err := svc.MarkPickedUp(context.Background(), "delivery-1"); err != nil {
		t.Fatalf("pickup failed: %v", err)
	}
	if got := orderRepo.GetOrder("order-1").Status; got != domain.OrderStatusPicked {
		t.Fatalf("order status = %s, want picked", got)
	}

	delivery, err := svc.MarkPickedUp(context.Background(), "delivery-1")
	if err != nil {
		t.Fatalf("repeat pickup failed: %v", err)
	}
	if !delivery.IsPickedUp {
		t.Error("repeat pickup lost the flag")
	}
}

// A completed delivery cannot be walked backwards through pickup.
func TestMarkPickedUpAfterCompleteRejected(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	deliveryRepo := NewMockDeliveryRepository()
	svc := newDeliveryService(orderRepo, deliveryRepo, NewMockPublisher())

	order := pendingOrder("order-1", domain.ServiceTypeDelivery)
	order.Status = domain.OrderStatusCompleted
	orderRepo.AddOrder(order)
	deliveryRepo.AddDelivery(&domain.Delivery{
		ID:          "delivery-1",
		OrderID:     "order-1",
		RiderID:     "rider-a",
		IsAssigned:  true,
		IsAccepted:  true,
		IsCompleted: true,
		Status:      domain.DeliveryStatusCompleted,
	})

	// IsPickedUp is false but the delivery is terminal; the transition
	// check must reject it.
	_, err := svc.MarkPickedUp(context.Background(), "delivery-1")
	if !errors.Is(err, domain.ErrTransitionNotPermitted) {
		t.Fatalf("err = %v, want ErrTransitionNotPermitted", err)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	customerRepo := NewMockCustomerRepository()
	addCustomer(customerRepo, "customer-1")
	svc := newOrderService(NewMockOrderRepository(), NewMockDeliveryRepository(), customerRepo, NewMockPublisher(), NewMockPool())

	cases := []struct {
		name    string
		mutate  func(*service.CreateOrderRequest)
		wantErr error
	}{
		{"missing customer", func(r *service.CreateOrderRequest) { r.CustomerID = "" }, service.ErrInvalidCustomerID},
		{"unknown service type", func(r *service.CreateOrderRequest) { r.ServiceType = "towing" }, service.ErrInvalidServiceType},
		{"missing pickup", func(r *service.CreateOrderRequest) { r.PickupAddress = "" }, service.ErrInvalidAddress},
		{"delivery without destination", func(r *service.CreateOrderRequest) { r.DeliveryAddress = "" }, service.ErrInvalidAddress},
		{"negative amount", func(r *service.CreateOrderRequest) { r.BaseAmount = decimal.NewFromInt(-5) }, service.ErrInvalidAmount},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := createRequest("customer-1")
			tc.mutate(&req)
			if _, err := svc.CreateOrder(context.Background(), req); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

// Non-delivery service types do not require a destination address.
func TestCreateOrderServiceVisit(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	customerRepo := NewMockCustomerRepository()
	addCustomer(customerRepo, "customer-1")
	svc := newOrderService(orderRepo, NewMockDeliveryRepository(), customerRepo, NewMockPublisher(), NewMockPool())

	order, err := svc.CreateOrder(context.Background(), service.CreateOrderRequest{
		CustomerID:    "customer-1",
		ServiceType:   domain.ServiceTypePlumbing,
		PickupAddress: "12 North St",
		BaseAmount:    decimal.Zero,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !order.Total.Equal(decimal.NewFromInt(99)) {
		t.Errorf("plumbing total = %s, want 99", order.Total)
	}
}

// A warm pool mirror serves the rider listing oldest first, and members whose
// order has been claimed since are pruned on read.
func TestListEligibleOrdersFromPoolMirror(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	pool := NewMockPool()
	svc := newOrderService(orderRepo, NewMockDeliveryRepository(), NewMockCustomerRepository(), NewMockPublisher(), pool)

	older := pendingOrder("order-old", domain.ServiceTypeDelivery)
	older.CreatedAt = older.CreatedAt.Add(-time.Minute)
	newer := pendingOrder("order-new", domain.ServiceTypeDelivery)
	claimed := pendingOrder("order-claimed", domain.ServiceTypeDelivery)
	claimed.Status = domain.OrderStatusConfirmed

	for _, o := range []*domain.Order{newer, older, claimed} {
		orderRepo.AddOrder(o)
		_ = pool.Add(context.Background(), domain.ServiceTypeDelivery, o.ID)
	}

	orders, err := svc.ListEligibleOrders(context.Background(), domain.ServiceTypeDelivery)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("listed %d orders, want 2", len(orders))
	}
	if orders[0].ID != "order-old" || orders[1].ID != "order-new" {
		t.Errorf("listing order = %s, %s; want oldest first", orders[0].ID, orders[1].ID)
	}
	if pool.Has(domain.ServiceTypeDelivery, "order-claimed") {
		t.Error("claimed order not pruned from the pool mirror")
	}
}

// An empty or cold mirror falls back to the database listing.
func TestListEligibleOrdersColdMirrorFallback(t *testing.T) {
	orderRepo := NewMockOrderRepository()
	svc := newOrderService(orderRepo, NewMockDeliveryRepository(), NewMockCustomerRepository(), NewMockPublisher(), NewMockPool())

	orderRepo.AddOrder(pendingOrder("order-1", domain.ServiceTypeDelivery))

	orders, err := svc.ListEligibleOrders(context.Background(), domain.ServiceTypeDelivery)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "order-1" {
		t.Fatalf("listed %+v, want order-1 from the database", orders)
	}
}
