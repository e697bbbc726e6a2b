package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// RequeueJob periodically republishes stale pending orders to their eligible
// channels. Riders whose subscription dropped around the original insert
// would otherwise only see the order through polling.
type RequeueJob struct {
	orders   repository.OrderRepository
	dispatch *service.DispatchService
	spec     string
	age      time.Duration
	cron     *cron.Cron
	logger   zerolog.Logger
}

// NewRequeueJob creates the job. spec is a cron expression with seconds; age
// is how long an order must have sat pending before it is republished.
func NewRequeueJob(orders repository.OrderRepository, dispatch *service.DispatchService, spec string, age time.Duration, logger zerolog.Logger) *RequeueJob {
	return &RequeueJob{
		orders:   orders,
		dispatch: dispatch,
		spec:     spec,
		age:      age,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger.With().Str("component", "requeue_job").Logger(),
	}
}

// Start schedules the job.
func (j *RequeueJob) Start() error {
	_, err := j.cron.AddFunc(j.spec, j.run)
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info().Str("spec", j.spec).Dur("age", j.age).Msg("requeue job started")
	return nil
}

// Stop stops the scheduler. Does not wait for an in-flight run.
func (j *RequeueJob) Stop() {
	j.cron.Stop()
	j.logger.Info().Msg("requeue job stopped")
}

func (j *RequeueJob) run() {
	ctx := context.Background()

	orders, err := j.orders.ListPendingOlderThan(ctx, j.age)
	if err != nil {
		j.logger.Error().Err(err).Msg("stale pending listing failed")
		return
	}

	for _, order := range orders {
		if err := j.dispatch.Requeue(ctx, order); err != nil {
			j.logger.Warn().Err(err).Str("order_id", order.ID).Msg("requeue publish failed")
		}
	}

	if len(orders) > 0 {
		j.logger.Info().Int("count", len(orders)).Msg("stale pending orders republished")
	}
}
