package handler

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"dispatch/internal/domain"
	"dispatch/internal/feed"
	"dispatch/internal/repository"
	"dispatch/internal/watch"
)

// WatchConfig carries the tunables handed to each per-request watcher.
type WatchConfig struct {
	PollInterval   time.Duration
	ResubscribeMin time.Duration
	ResubscribeMax time.Duration
}

// WatchHandler serves the live order views over server-sent events. Each
// request owns one watcher; the watcher is stopped when the client
// disconnects or the order ends.
type WatchHandler struct {
	orderRepo    repository.OrderRepository
	deliveryRepo repository.DeliveryRepository
	riderRepo    repository.RiderRepository
	subscriber   feed.Subscriber
	cfg          WatchConfig
	logger       zerolog.Logger
}

// NewWatchHandler creates a new WatchHandler.
func NewWatchHandler(
	orderRepo repository.OrderRepository,
	deliveryRepo repository.DeliveryRepository,
	riderRepo repository.RiderRepository,
	subscriber feed.Subscriber,
	cfg WatchConfig,
	logger zerolog.Logger,
) *WatchHandler {
	return &WatchHandler{
		orderRepo:    orderRepo,
		deliveryRepo: deliveryRepo,
		riderRepo:    riderRepo,
		subscriber:   subscriber,
		cfg:          cfg,
		logger:       logger.With().Str("component", "watch_handler").Logger(),
	}
}

type sseMessage struct {
	event string
	data  any
}

// WatchOrder handles GET /v1/orders/:id/watch
//
// Streams order and delivery updates plus the one-shot lifecycle events
// (rider_accepted, picked_up, delivered, completed, cancelled) until the
// order reaches a terminal state or the client disconnects.
func (h *WatchHandler) WatchOrder(c *gin.Context) {
	orderID := c.Param("id")

	if _, err := h.orderRepo.GetByID(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}

	// Buffered so callbacks never block the watcher; a client too slow to
	// drain the buffer loses intermediate state updates, not one-shots.
	messages := make(chan sseMessage, 32)
	done := make(chan struct{})
	var doneOnce sync.Once
	closeDone := func() { doneOnce.Do(func() { close(done) }) }

	watcher := watch.NewOrderWatcher(watch.OrderWatcherConfig{
		OrderID:        orderID,
		Orders:         h.orderRepo,
		Deliveries:     h.deliveryRepo,
		Riders:         h.riderRepo,
		Subscriber:     h.subscriber,
		PollInterval:   h.cfg.PollInterval,
		ResubscribeMin: h.cfg.ResubscribeMin,
		ResubscribeMax: h.cfg.ResubscribeMax,
		Logger:         h.logger,
		Callbacks: watch.OrderCallbacks{
			OnOrderUpdated: func(order *domain.Order) {
				h.push(messages, sseMessage{event: "order", data: orderResponse(order)})
			},
			OnDeliveryUpdated: func(delivery *domain.Delivery) {
				h.push(messages, sseMessage{event: "delivery", data: deliveryResponse(delivery)})
			},
			OnRiderAccepted: func(rider *domain.RiderSummary) {
				h.push(messages, sseMessage{event: "rider_accepted", data: rider})
			},
			OnPickedUp: func() {
				h.push(messages, sseMessage{event: "picked_up"})
			},
			OnDelivered: func() {
				h.push(messages, sseMessage{event: "delivered"})
			},
			OnCompleted: func() {
				h.push(messages, sseMessage{event: "completed"})
				closeDone()
			},
			OnCancelled: func() {
				h.push(messages, sseMessage{event: "cancelled"})
				closeDone()
			},
		},
	})

	if err := watcher.Start(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	defer watcher.Stop()

	h.stream(c, messages, done)
}

// WatchEligible handles GET /v1/riders/:id/orders/watch
//
// Streams the rider's work queue: new eligible orders of their service type
// and removals as orders are claimed or cancelled.
func (h *WatchHandler) WatchEligible(c *gin.Context) {
	rider, err := h.riderRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	messages := make(chan sseMessage, 32)

	watcher := watch.NewEligibleOrdersWatcher(watch.EligibleOrdersWatcherConfig{
		ServiceType:    rider.ServiceType,
		Orders:         h.orderRepo,
		Subscriber:     h.subscriber,
		PollInterval:   h.cfg.PollInterval,
		ResubscribeMin: h.cfg.ResubscribeMin,
		ResubscribeMax: h.cfg.ResubscribeMax,
		Logger:         h.logger,
		Callbacks: watch.EligibleCallbacks{
			OnNewEligibleOrder: func(order *domain.Order) {
				h.push(messages, sseMessage{event: "eligible_order", data: orderResponse(order)})
			},
			OnOrderTaken: func(orderID string) {
				h.push(messages, sseMessage{event: "order_taken", data: gin.H{"order_id": orderID}})
			},
		},
	})

	if err := watcher.Start(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	defer watcher.Stop()

	h.stream(c, messages, nil)
}

func (h *WatchHandler) push(messages chan sseMessage, msg sseMessage) {
	select {
	case messages <- msg:
	default:
		h.logger.Warn().Str("event", msg.event).Msg("slow watch client, message dropped")
	}
}

func (h *WatchHandler) stream(c *gin.Context, messages chan sseMessage, done chan struct{}) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case <-doneOrNever(done):
			// Drain anything already queued before closing the stream.
			for {
				select {
				case msg := <-messages:
					c.SSEvent(msg.event, msg.data)
				default:
					return false
				}
			}
		case msg := <-messages:
			c.SSEvent(msg.event, msg.data)
			return true
		}
	})
}

var never = make(chan struct{})

func doneOrNever(done chan struct{}) <-chan struct{} {
	if done == nil {
		return never
	}
	return done
}
