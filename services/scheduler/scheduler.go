// Package scheduler runs the periodic maintenance jobs of the api.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/kashur/backend/core"
)

// StatsRebuilder recomputes every learner's aggregates from their progress rows.
type StatsRebuilder interface {
	RebuildAllStats(ctx context.Context) (int, error)
}

type Scheduler struct {
	scheduler *gocron.Scheduler
	rebuilder StatsRebuilder
	logger    core.Logger
	interval  time.Duration
	timeout   time.Duration
}

func New(rebuilder StatsRebuilder, logger core.Logger, conf core.LearningConfig) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		rebuilder: rebuilder,
		logger:    logger,
		interval:  conf.StatsRebuildInterval,
		timeout:   conf.StatsRebuildInterval,
	}
}

// Start schedules the stats rebuild. A zero interval disables it.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return nil
	}
	if _, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.rebuildStats); err != nil {
		return errors.Wrap(err, "scheduling stats rebuild")
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", map[string]interface{}{"stats_rebuild_interval": s.interval.String()})
	return nil
}

func (s *Scheduler) Stop() {
	if s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) rebuildStats() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.rebuilder.RebuildAllStats(ctx)
	if err != nil {
		s.logger.Error("rebuilding learner stats", err, map[string]interface{}{"rebuilt": n})
		return
	}
	s.logger.Info("learner stats rebuilt", map[string]interface{}{"rebuilt": n, "took": time.Since(start).String()})
}
