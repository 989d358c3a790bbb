package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

const approveJobTimeout = 10 * time.Minute

// CommissionScheduler runs the daily commission approval sweep.
type CommissionScheduler struct {
	Commissions *CommissionService
	Log         *logrus.Logger
	LockDays    int

	sched gocron.Scheduler
}

func NewCommissionScheduler(commissions *CommissionService, log *logrus.Logger, lockDays int) *CommissionScheduler {
	return &CommissionScheduler{Commissions: commissions, Log: log, LockDays: lockDays}
}

// Start schedules the sweep once a day at runAt ("HH:MM", UTC). Singleton mode keeps
// a slow run from overlapping the next one inside this process; across instances the
// sweep's own row locks and status predicate make concurrent runs harmless.
func (s *CommissionScheduler) Start(runAt string) error {
	at, err := time.Parse("15:04", runAt)
	if err != nil {
		return fmt.Errorf("invalid run time %q: %w", runAt, err)
	}

	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(at.Hour()), uint(at.Minute()), 0))),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), approveJobTimeout)
			defer cancel()
			_, _ = s.RunOnce(ctx, s.LockDays)
		}),
		gocron.WithName("approve-commissions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule approval job: %w", err)
	}

	sched.Start()
	s.sched = sched
	s.Log.WithFields(logrus.Fields{"run_at": runAt, "lock_days": s.LockDays}).Info("commission scheduler started")
	return nil
}

// RunOnce executes a single approval sweep with the given lock period. It backs the
// daily job, the internal trigger endpoint and the approve command.
func (s *CommissionScheduler) RunOnce(ctx context.Context, lockDays int) (int64, error) {
	started := time.Now()
	n, err := s.Commissions.ApprovePending(ctx, lockDays)
	fields := logrus.Fields{
		"approved":    n,
		"lock_days":   lockDays,
		"duration_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		s.Log.WithFields(fields).WithError(err).Error("commission approval sweep failed")
		return 0, err
	}
	s.Log.WithFields(fields).Info("commission approval sweep finished")
	return n, nil
}

func (s *CommissionScheduler) Shutdown() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}
