package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/go-co-op/gocron/v2"
)

// Reconciler repairs screen assignments of every open order.
// *kitchen.Coordinator satisfies it.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// Scheduler runs the reconciler on a fixed interval. A zero interval disables
// it.
type Scheduler struct {
	reconciler Reconciler
	interval   time.Duration
	logger     apt.Logger

	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewScheduler(reconciler Reconciler, interval time.Duration, logger apt.Logger) *Scheduler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Scheduler{reconciler: reconciler, interval: interval, logger: logger}
}

// IntervalFromConfig reads repair.interval, e.g. "5m". Empty means disabled.
func IntervalFromConfig(config *apt.Config) (time.Duration, error) {
	if config == nil {
		return 0, nil
	}
	raw, _ := config.GetString("repair.interval")
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid repair.interval %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid repair.interval %q: must not be negative", raw)
	}
	return d, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("Assignment repair job disabled")
		return nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("cannot create repair scheduler: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func(ctx context.Context) { s.RunOnce(ctx) }, s.ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("assignment-repair"),
	)
	if err != nil {
		s.cancel()
		return fmt.Errorf("cannot schedule repair job: %w", err)
	}

	s.scheduler = sched
	sched.Start()
	s.logger.Infof("Assignment repair job scheduled every %s", s.interval)
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

// RunOnce performs one repair sweep and returns the number of repaired orders.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	repaired, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		s.logger.Error("assignment repair failed", "error", err)
		return repaired
	}
	if repaired > 0 {
		s.logger.Info("assignment repair finished", "repaired", repaired)
	} else {
		s.logger.Debug("assignment repair found nothing to do")
	}
	return repaired
}
