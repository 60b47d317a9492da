package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Completer flips confirmed bookings whose interval has ended to completed.
type Completer interface {
	CompleteFinished(ctx context.Context, now time.Time) (int, error)
}

type SweeperConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Sweeper runs the completion pass on a fixed interval. Runs never overlap; a pass still in
// flight when the next tick fires pushes that tick back.
type Sweeper struct {
	completer Completer
	logger    *slog.Logger
	interval  time.Duration
	timeout   time.Duration
	now       func() time.Time

	sched gocron.Scheduler
	ctx   context.Context
}

func NewSweeper(completer Completer, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Sweeper{
		completer: completer,
		logger:    logger,
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		now:       time.Now,
	}
}

// Start schedules the pass and returns immediately. The first pass runs right away.
func (s *Sweeper) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.ctx = ctx
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.RunOnce),
		gocron.WithName("booking-completion-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}
	sched.Start()
	s.sched = sched
	s.logger.Info("completion sweeper started", "interval", s.interval.String())
	return nil
}

// RunOnce executes a single pass and reports how many bookings it completed.
func (s *Sweeper) RunOnce() int {
	parent := s.ctx
	if parent == nil {
		parent = context.Background()
	}
	if parent.Err() != nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	n, err := s.completer.CompleteFinished(ctx, s.now())
	if err != nil {
		s.logger.Error("completion sweep failed", "err", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("bookings completed", "count", n)
	}
	return n
}

// Stop waits for a running pass and stops the schedule.
func (s *Sweeper) Stop() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}
