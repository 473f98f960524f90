package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"toolbroker/internal/config"
	"toolbroker/internal/db"
	"toolbroker/internal/ratelimit"

	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic housekeeping: it purges spent codes and elapsed session
// locks and drops idle rate-limiter entries.
type Scheduler struct {
	db      db.Service
	limiter *ratelimit.Limiter
	cfg     config.SchedulerConfig
	c       *cron.Cron
	now     func() time.Time
	logger  *slog.Logger
}

func NewScheduler(dbService db.Service, limiter *ratelimit.Limiter, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		db:      dbService,
		limiter: limiter,
		cfg:     cfg,
		c:       cron.New(),
		now:     time.Now,
		logger:  logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Start() error {
	_, err := s.c.AddFunc(s.cfg.PurgeSchedule, func() {
		s.logger.Info("Running purge job")
		if err := s.Purge(context.Background()); err != nil {
			s.logger.Error("Purge job failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("error scheduling purge job %q: %w", s.cfg.PurgeSchedule, err)
	}
	s.c.Start()
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// Purge deletes codes that expired and locks that ended more than the retention window ago.
func (s *Scheduler) Purge(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.CodeRetention)

	codes, err := s.db.PurgeAuthCodes(ctx, cutoff)
	if err != nil {
		return err
	}
	locks, err := s.db.PurgeSessionLocks(ctx, cutoff)
	if err != nil {
		return err
	}
	var swept int
	if s.limiter != nil {
		swept = s.limiter.Sweep()
	}
	s.logger.Info("Purge complete", "auth_codes", codes, "session_locks", locks, "limiters", swept)
	return nil
}
