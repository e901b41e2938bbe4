// Package sweeper runs the periodic background work: due-snooze notifications and date-based
// reactivation of skipped executions.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/model"
)

const DefaultSchedule = "@every 1m"

type SnoozeNotifier interface {
	NotifySnoozesDue(ctx context.Context) (int, error)
}

type TriggerFirer interface {
	FireDueDateTriggers(ctx context.Context, now time.Time) ([]model.Execution, error)
}

type Sweeper struct {
	snoozes  SnoozeNotifier
	triggers TriggerFirer
	schedule string
	logger   *zap.Logger
	now      func() time.Time
}

func New(snoozes SnoozeNotifier, triggers TriggerFirer, schedule string, logger *zap.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{
		snoozes:  snoozes,
		triggers: triggers,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps on the cron schedule until ctx is done. A sweep still running when the next one is
// due causes that tick to be skipped.
func (s *Sweeper) Run(ctx context.Context) error {
	cl := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid sweeper schedule %q: %w", s.schedule, err)
	}

	s.logger.Info("sweeper starting", zap.String("schedule", s.schedule))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")
	return nil
}

// Sweep runs both jobs once. A failure in one job does not stop the other.
func (s *Sweeper) Sweep(ctx context.Context) error {
	start := s.now()
	var errs []error

	notified, err := s.snoozes.NotifySnoozesDue(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("notify due snoozes: %w", err))
	}

	reactivated, err := s.triggers.FireDueDateTriggers(ctx, start)
	if err != nil {
		errs = append(errs, fmt.Errorf("fire date triggers: %w", err))
	}

	s.logger.Debug("sweep finished",
		zap.Int("snoozes_notified", notified),
		zap.Int("executions_reactivated", len(reactivated)),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return errors.Join(errs...)
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
