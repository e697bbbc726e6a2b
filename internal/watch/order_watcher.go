package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dispatch/internal/domain"
	"dispatch/internal/feed"
	"dispatch/internal/repository"
)

// OrderCallbacks are the outbound hooks an OrderWatcher drives. State
// callbacks (OnOrderUpdated, OnDeliveryUpdated) fire on every observation so
// the view never shows stale data; the remaining callbacks are one-shot.
type OrderCallbacks struct {
	OnOrderUpdated    func(*domain.Order)
	OnDeliveryUpdated func(*domain.Delivery)
	OnRiderAccepted   func(*domain.RiderSummary)
	OnPickedUp        func()
	OnDelivered       func()
	OnCompleted       func()
	OnCancelled       func()
}

// OrderWatcherConfig configures an OrderWatcher.
type OrderWatcherConfig struct {
	OrderID        string
	Orders         repository.OrderRepository
	Deliveries     repository.DeliveryRepository
	Riders         repository.RiderRepository
	Subscriber     feed.Subscriber
	PollInterval   time.Duration
	ResubscribeMin time.Duration
	ResubscribeMax time.Duration
	Callbacks      OrderCallbacks
	Logger         zerolog.Logger
}

// OrderWatcher keeps one session's view of one order converged with server
// state. It owns its subscription handle and poll timer exclusively; Stop
// releases both synchronously. The watcher shuts itself down once the order
// reaches a terminal state so no timer or subscription leaks into the next
// order.
type OrderWatcher struct {
	cfg    OrderWatcherConfig
	logger zerolog.Logger

	mu    sync.Mutex
	snap  Snapshot
	fired map[Effect]bool

	// emitMu serializes reconcile-and-dispatch so callbacks arrive in the
	// order their snapshots were merged.
	emitMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewOrderWatcher creates a watcher for one order.
func NewOrderWatcher(cfg OrderWatcherConfig) *OrderWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.ResubscribeMin <= 0 {
		cfg.ResubscribeMin = 500 * time.Millisecond
	}
	if cfg.ResubscribeMax <= 0 {
		cfg.ResubscribeMax = 15 * time.Second
	}
	return &OrderWatcher{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "order_watcher").Str("order_id", cfg.OrderID).Logger(),
		fired:  make(map[Effect]bool),
		stopCh: make(chan struct{}),
	}
}

// Start performs an initial read and launches the subscription and polling
// goroutines.
func (w *OrderWatcher) Start(ctx context.Context) error {
	// Seed the view before either channel runs so callers render real
	// state immediately.
	w.pollOnce(ctx)

	w.wg.Add(2)
	go w.subscribeLoop(ctx)
	go w.pollLoop(ctx)
	return nil
}

// Stop synchronously stops the poll timer and releases the subscription.
// Safe to call more than once.
func (w *OrderWatcher) Stop() {
	w.shutdown()
	w.wg.Wait()
}

// Snapshot returns the current reconciled view.
func (w *OrderWatcher) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap
}

func (w *OrderWatcher) shutdown() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *OrderWatcher) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

// pollOnce issues a point read of the order and its delivery and feeds the
// result through reconciliation. A failed read is skipped; the next tick or
// the event channel covers it.
func (w *OrderWatcher) pollOnce(ctx context.Context) {
	var candidate Snapshot

	order, err := w.cfg.Orders.GetByID(ctx, w.cfg.OrderID)
	switch {
	case err == nil:
		candidate.Order = order
	case errors.Is(err, repository.ErrNotFound) && w.seenOrder():
		// The row existed and is gone: the order was cancelled.
		candidate.OrderDeleted = true
	default:
		w.logger.Debug().Err(err).Msg("poll read failed, skipping tick")
		return
	}

	delivery, err := w.cfg.Deliveries.GetByOrderID(ctx, w.cfg.OrderID)
	if err != nil {
		w.logger.Debug().Err(err).Msg("delivery poll read failed")
	} else if delivery != nil {
		candidate.Delivery = delivery
	}

	w.observe(ctx, candidate)
}

func (w *OrderWatcher) seenOrder() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap.Order != nil
}

// subscribeLoop holds the event subscription open, resubscribing with capped
// exponential backoff when it drops. Polling continues regardless, so a
// broken subscription degrades freshness, not correctness.
func (w *OrderWatcher) subscribeLoop(ctx context.Context) {
	defer w.wg.Done()

	backoff := w.cfg.ResubscribeMin
	channel := feed.OrderChannel(w.cfg.OrderID)

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		sub, err := w.cfg.Subscriber.Subscribe(ctx, channel)
		if err != nil {
			w.logger.Warn().Err(err).Dur("backoff", backoff).Msg("subscribe failed, retrying")
			if !w.sleep(backoff) {
				return
			}
			backoff = minDuration(backoff*2, w.cfg.ResubscribeMax)
			continue
		}
		backoff = w.cfg.ResubscribeMin

		if !w.consume(ctx, sub) {
			return
		}

		w.logger.Warn().Msg("subscription dropped, resubscribing")
		if !w.sleep(backoff) {
			return
		}
	}
}

// consume drains a subscription until it drops (returns true) or the
// watcher stops (returns false).
func (w *OrderWatcher) consume(ctx context.Context, sub feed.Subscription) bool {
	defer sub.Close()

	for {
		select {
		case <-w.stopCh:
			return false
		case ev, ok := <-sub.Events():
			if !ok {
				return true
			}
			w.handleEvent(ctx, ev)
		}
	}
}

func (w *OrderWatcher) handleEvent(ctx context.Context, ev feed.Event) {
	var candidate Snapshot

	switch ev.Table {
	case feed.TableOrders:
		if ev.Kind == feed.EventDelete {
			candidate.OrderDeleted = true
			break
		}
		var order domain.Order
		if err := ev.DecodeNew(&order); err != nil {
			w.logger.Debug().Err(err).Msg("undecodable order event")
			return
		}
		candidate.Order = &order
	case feed.TableDeliveries:
		var delivery domain.Delivery
		if err := ev.DecodeNew(&delivery); err != nil {
			w.logger.Debug().Err(err).Msg("undecodable delivery event")
			return
		}
		candidate.Delivery = &delivery
	default:
		return
	}

	w.observe(ctx, candidate)
}

// observe funnels a candidate from either channel through reconciliation.
// One-shot guards are set under the lock, before the side effect runs, so
// the two channels observing the same transition cannot both fire it.
func (w *OrderWatcher) observe(ctx context.Context, candidate Snapshot) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.mu.Lock()
	next, effects := Reconcile(w.snap, candidate)
	w.snap = next

	var fire []Effect
	for _, e := range effects {
		if !w.fired[e] {
			w.fired[e] = true
			fire = append(fire, e)
		}
	}

	order := next.Order
	delivery := next.Delivery
	hadOrder := candidate.Order != nil
	hadDelivery := candidate.Delivery != nil
	w.mu.Unlock()

	cb := w.cfg.Callbacks
	if hadOrder && order != nil && cb.OnOrderUpdated != nil {
		cb.OnOrderUpdated(order)
	}
	if hadDelivery && delivery != nil && cb.OnDeliveryUpdated != nil {
		cb.OnDeliveryUpdated(delivery)
	}

	for _, e := range fire {
		switch e {
		case EffectRiderAccepted:
			w.fireRiderAccepted(ctx, delivery)
		case EffectPickedUp:
			if cb.OnPickedUp != nil {
				cb.OnPickedUp()
			}
		case EffectDelivered:
			if cb.OnDelivered != nil {
				cb.OnDelivered()
			}
		case EffectCompleted:
			if cb.OnCompleted != nil {
				cb.OnCompleted()
			}
			w.shutdown()
		case EffectCancelled:
			if cb.OnCancelled != nil {
				cb.OnCancelled()
			}
			w.shutdown()
		}
	}
}

// fireRiderAccepted fetches the denormalized rider profile for the one-shot
// rider-found reveal.
func (w *OrderWatcher) fireRiderAccepted(ctx context.Context, delivery *domain.Delivery) {
	if w.cfg.Callbacks.OnRiderAccepted == nil || delivery == nil {
		return
	}

	rider, err := w.cfg.Riders.GetByID(ctx, delivery.RiderID)
	if err != nil {
		w.logger.Warn().Err(err).Str("rider_id", delivery.RiderID).Msg("rider profile fetch failed")
		return
	}
	w.cfg.Callbacks.OnRiderAccepted(rider.Summary())
}

func (w *OrderWatcher) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
