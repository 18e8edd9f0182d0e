package cron

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	cron "github.com/robfig/cron/v3"

	"account_orchestrator/config"
	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/logger"
	"account_orchestrator/internal/usecase"
)

// PostPoller dispatches scheduled posts that have come due
type PostPoller interface {
	Poll(ctx context.Context) (int, error)
}

// HealthSweeper checks every active account
type HealthSweeper interface {
	MonitorAllAccounts(ctx context.Context) (usecase.SweepSummary, error)
}

// Scheduler manages cron jobs for the application
type Scheduler struct {
	cron    *cron.Cron
	config  *config.Config
	poller  PostPoller
	sweeper HealthSweeper
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    sync.WaitGroup
}

// NewScheduler creates a new cron scheduler. sweeper may be nil when health
// checks are disabled.
func NewScheduler(cfg *config.Config, poller PostPoller, sweeper HealthSweeper) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	// Create cron with seconds support
	c := cron.New(cron.WithSeconds())

	return &Scheduler{
		cron:    c,
		config:  cfg,
		poller:  poller,
		sweeper: sweeper,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the poll and health-check jobs and starts the cron
func (s *Scheduler) Start() error {
	interval := s.config.PollInterval
	if interval <= 0 {
		return domain.InvalidSchedule(fmt.Sprintf("poll interval must be positive, got %s", interval))
	}
	pollSchedule := fmt.Sprintf("@every %s", interval)
	pollJobID, err := s.cron.AddFunc(pollSchedule, s.pollPostsJob)
	if err != nil {
		return domain.InvalidSchedule(fmt.Sprintf("failed to schedule poll job: %v", err))
	}
	logger.Info().Printf("Scheduled post poll job with ID: %d, schedule: %s", pollJobID, pollSchedule)

	if s.sweeper != nil && strings.TrimSpace(s.config.HealthCheckSchedule) != "" {
		healthSchedule := normalizeSchedule(s.config.HealthCheckSchedule)
		healthJobID, err := s.cron.AddFunc(healthSchedule, s.healthCheckJob)
		if err != nil {
			return domain.InvalidSchedule(fmt.Sprintf("failed to schedule health check %q: %v", healthSchedule, err))
		}
		logger.Info().Printf("Scheduled health check job with ID: %d, schedule: %s", healthJobID, healthSchedule)
	}

	s.cron.Start()
	logger.Info().Println("Cron scheduler started")

	// Posts that came due while the process was down go out right away.
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		s.pollPostsJob()
	}()

	return nil
}

// Stop stops the cron scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	logger.Info().Println("Stopping cron scheduler...")
	s.cancel()
	<-s.cron.Stop().Done()
	s.jobs.Wait()
	logger.Info().Println("Cron scheduler stopped")
}

func (s *Scheduler) pollPostsJob() {
	if s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.config.PollInterval+time.Minute)
	defer cancel()

	dispatched, err := s.poller.Poll(ctx)
	if err != nil {
		logger.Error().Printf("Post poll job failed: %v", err)
		return
	}
	if dispatched > 0 {
		logger.Info().Printf("Post poll job dispatched %d post(s)", dispatched)
	}
}

func (s *Scheduler) healthCheckJob() {
	if s.ctx.Err() != nil {
		return
	}
	logger.Info().Println("Starting health check job...")
	startTime := time.Now()

	summary, err := s.sweeper.MonitorAllAccounts(s.ctx)
	if err != nil {
		logger.Error().Printf("Health check job failed: %v", err)
		return
	}
	if summary.Skipped {
		return
	}
	logger.Info().Printf("Health check job completed in %v", time.Since(startTime))
}

// normalizeSchedule ensures cron expressions are compatible with cron.WithSeconds
func normalizeSchedule(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "@") {
		return expr
	}
	fields := strings.Fields(expr)
	if len(fields) == 5 {
		return "0 " + expr
	}
	return expr
}
