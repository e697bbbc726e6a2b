package watch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dispatch/internal/domain"
	"dispatch/internal/feed"
	"dispatch/internal/repository"
)

// EligibleCallbacks are the outbound hooks an EligibleOrdersWatcher drives.
type EligibleCallbacks struct {
	// OnNewEligibleOrder fires once per order entering the rider's work
	// queue. An order that leaves and re-enters the pool (a rolled back
	// acceptance) fires again.
	OnNewEligibleOrder func(*domain.Order)

	// OnOrderTaken fires when an order leaves the pool: claimed by another
	// rider or cancelled.
	OnOrderTaken func(orderID string)
}

// EligibleOrdersWatcherConfig configures an EligibleOrdersWatcher.
type EligibleOrdersWatcherConfig struct {
	ServiceType    domain.ServiceType
	Orders         repository.OrderRepository
	Subscriber     feed.Subscriber
	PollInterval   time.Duration
	ResubscribeMin time.Duration
	ResubscribeMax time.Duration
	Callbacks      EligibleCallbacks
	Logger         zerolog.Logger
}

// EligibleOrdersWatcher maintains a rider's view of the pending orders for
// one service type. The pool is pull-based: riders see orders and race to
// claim them; this watcher only keeps the queue view fresh and deduplicated
// across the event and poll channels.
type EligibleOrdersWatcher struct {
	cfg    EligibleOrdersWatcherConfig
	logger zerolog.Logger

	mu   sync.Mutex
	seen map[string]bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEligibleOrdersWatcher creates a watcher for one service type.
func NewEligibleOrdersWatcher(cfg EligibleOrdersWatcherConfig) *EligibleOrdersWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ResubscribeMin <= 0 {
		cfg.ResubscribeMin = 500 * time.Millisecond
	}
	if cfg.ResubscribeMax <= 0 {
		cfg.ResubscribeMax = 15 * time.Second
	}
	return &EligibleOrdersWatcher{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "eligible_watcher").Str("service_type", string(cfg.ServiceType)).Logger(),
		seen:   make(map[string]bool),
		stopCh: make(chan struct{}),
	}
}

// Start performs an initial listing and launches the subscription and
// polling goroutines.
func (w *EligibleOrdersWatcher) Start(ctx context.Context) error {
	w.pollOnce(ctx)

	w.wg.Add(2)
	go w.subscribeLoop(ctx)
	go w.pollLoop(ctx)
	return nil
}

// Stop synchronously stops the poll timer and releases the subscription.
func (w *EligibleOrdersWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *EligibleOrdersWatcher) pollLoop(ctx context.Context) {
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

func (w *EligibleOrdersWatcher) pollOnce(ctx context.Context) {
	orders, err := w.cfg.Orders.ListPendingByServiceType(ctx, w.cfg.ServiceType)
	if err != nil {
		w.logger.Debug().Err(err).Msg("eligible poll failed, skipping tick")
		return
	}
	for _, order := range orders {
		w.observeNew(order)
	}
}

func (w *EligibleOrdersWatcher) subscribeLoop(ctx context.Context) {
	defer w.wg.Done()

	backoff := w.cfg.ResubscribeMin
	channel := feed.EligibleChannel(w.cfg.ServiceType)

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

		if !w.consume(sub) {
			return
		}

		w.logger.Warn().Msg("subscription dropped, resubscribing")
		if !w.sleep(backoff) {
			return
		}
	}
}

func (w *EligibleOrdersWatcher) consume(sub feed.Subscription) bool {
	defer sub.Close()

	for {
		select {
		case <-w.stopCh:
			return false
		case ev, ok := <-sub.Events():
			if !ok {
				return true
			}
			w.handleEvent(ev)
		}
	}
}

func (w *EligibleOrdersWatcher) handleEvent(ev feed.Event) {
	if ev.Table != feed.TableOrders {
		return
	}

	if ev.Kind == feed.EventDelete {
		var order domain.Order
		if err := ev.DecodeOld(&order); err != nil {
			w.logger.Debug().Err(err).Msg("undecodable eligible delete event")
			return
		}
		w.observeTaken(order.ID)
		return
	}

	var order domain.Order
	if err := ev.DecodeNew(&order); err != nil {
		w.logger.Debug().Err(err).Msg("undecodable eligible event")
		return
	}

	if order.Status == domain.OrderStatusPending {
		w.observeNew(&order)
	} else {
		w.observeTaken(order.ID)
	}
}

// observeNew surfaces an order once, regardless of which channel reported
// it first. The guard is set before the callback runs.
func (w *EligibleOrdersWatcher) observeNew(order *domain.Order) {
	w.mu.Lock()
	if w.seen[order.ID] {
		w.mu.Unlock()
		return
	}
	w.seen[order.ID] = true
	w.mu.Unlock()

	if w.cfg.Callbacks.OnNewEligibleOrder != nil {
		w.cfg.Callbacks.OnNewEligibleOrder(order)
	}
}

func (w *EligibleOrdersWatcher) observeTaken(orderID string) {
	w.mu.Lock()
	if !w.seen[orderID] {
		w.mu.Unlock()
		return
	}
	delete(w.seen, orderID)
	w.mu.Unlock()

	if w.cfg.Callbacks.OnOrderTaken != nil {
		w.cfg.Callbacks.OnOrderTaken(orderID)
	}
}

func (w *EligibleOrdersWatcher) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
