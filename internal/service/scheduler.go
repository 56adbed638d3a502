package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
)

// Job is a task run whenever its cron expression is due
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs cron jobs, checking them once per poll interval
type Scheduler struct {
	jobs   []Job
	gron   *gronx.Gronx
	logger *zap.Logger
	now    func() time.Time

	pollInterval time.Duration
	lastRun      map[string]time.Time // Minute each job last ran
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewScheduler creates a scheduler; jobs with an empty schedule are skipped
func NewScheduler(logger *zap.Logger, jobs ...Job) *Scheduler {
	s := &Scheduler{
		gron:         gronx.New(),
		logger:       logger.Named("scheduler"),
		now:          time.Now,
		pollInterval: 30 * time.Second,
		lastRun:      make(map[string]time.Time),
		stopCh:       make(chan struct{}),
	}
	for _, j := range jobs {
		if j.Schedule != "" {
			s.jobs = append(s.jobs, j)
		}
	}
	return s
}

// Jobs returns the names of the enabled jobs
func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

// Start starts the scheduler loop
func (s *Scheduler) Start() {
	if s.running || len(s.jobs) == 0 {
		return
	}
	s.running = true
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("started", zap.Strings("jobs", s.Jobs()), zap.Duration("poll_interval", s.pollInterval))
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runDue(s.now())
		case <-s.stopCh:
			return
		}
	}
}

// runDue runs every job due in the minute of t, at most once per minute each.
// Polls land at arbitrary seconds, so the check uses the minute boundary.
func (s *Scheduler) runDue(t time.Time) {
	minute := t.Truncate(time.Minute)
	for _, job := range s.jobs {
		if last, ok := s.lastRun[job.Name]; ok && !minute.After(last) {
			continue
		}
		due, err := s.gron.IsDue(job.Schedule, minute)
		if err != nil {
			s.logger.Error("invalid schedule", zap.String("job", job.Name), zap.Error(err))
			continue
		}
		if !due {
			continue
		}
		s.lastRun[job.Name] = minute

		start := time.Now()
		if err := job.Run(context.Background()); err != nil {
			s.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
			continue
		}
		s.logger.Info("job completed", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
	}
}

// StatsJob posts the day's top senders to chatID
func StatsJob(schedule string, quota repo.QuotaRepo, replier repo.Replier, chatID string) Job {
	return Job{
		Name:     "stats",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			if chatID == "" {
				return fmt.Errorf("no aggregation chat configured")
			}
			text, err := topSendersReport(ctx, quota, domain.QuotaWindow)
			if err != nil {
				return err
			}
			return replier.SendText(ctx, chatID, text)
		},
	}
}

// PruneJob deletes quota events older than retention
func PruneJob(schedule string, quota repo.QuotaRepo, retention time.Duration, now func() time.Time, logger *zap.Logger) Job {
	return Job{
		Name:     "prune",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			n, err := quota.PruneBefore(ctx, now().Add(-retention))
			if err != nil {
				return fmt.Errorf("failed to prune events: %w", err)
			}
			if n > 0 {
				logger.Info("pruned events", zap.Int64("deleted", n))
			}
			return nil
		},
	}
}
