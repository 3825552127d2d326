package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/karloscodes/cartridge"

	"docpulse/internal/config"
)

// Watcher is the change-detection job run on every tick.
type Watcher interface {
	RunContext(ctx context.Context) error
}

// Scheduler is responsible for running background jobs.
// It implements cartridge.BackgroundWorker.
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// Guards against overlapping runs of the same job
	processingMutex sync.Mutex
	processing      map[string]bool

	// Job instances
	watcher    Watcher
	cleanupJob *CleanupJob

	// Tickers for each job type
	watchTicker   *time.Ticker
	cleanupTicker *time.Ticker

	wg sync.WaitGroup
}

func NewScheduler(dbManager cartridge.DBManager, watcher Watcher, cfg *config.Config, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		enabled:    true,
		cfg:        cfg,
		processing: make(map[string]bool),
		watcher:    watcher,
		cleanupJob: NewCleanupJob(dbManager, logger, cfg),
	}
}

// executeJobSafely runs a job unless a previous run of the same job is still
// executing. Different jobs never block each other.
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.processing[jobName] {
		s.logger.Debug("Skipping job execution - previous run still in progress", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.processing[jobName] = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		delete(s.processing, jobName)
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true

	if s.watcher != nil {
		s.startWatchJob()
	}
	s.startCleanupJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

func (s *Scheduler) watchInterval() time.Duration {
	seconds := s.cfg.WatchIntervalSeconds
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func (s *Scheduler) startWatchJob() {
	interval := s.watchInterval()
	s.logger.Info("Starting change watcher job", slog.Duration("interval", interval))
	s.watchTicker = time.NewTicker(interval)

	run := func() error {
		return s.watcher.RunContext(s.ctx)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// First run primes the cursors
		s.executeJobSafely("change_watcher", run)

		for {
			select {
			case <-s.watchTicker.C:
				s.executeJobSafely("change_watcher", run)
			case <-s.ctx.Done():
				s.logger.Info("Change watcher job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startCleanupJob() {
	interval := 24 * time.Hour
	s.logger.Info("Starting cleanup job", slog.Duration("interval", interval))
	s.cleanupTicker = time.NewTicker(interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.logger.Info("Running initial cleanup...")
		s.executeJobSafely("retention_cleanup", s.cleanupJob.Run)

		for {
			select {
			case <-s.cleanupTicker.C:
				s.executeJobSafely("retention_cleanup", s.cleanupJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Cleanup job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.watchTicker != nil {
		s.watchTicker.Stop()
	}
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}

	s.cancel()
	s.wg.Wait()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// RunWatcher triggers one change-detection pass outside the ticker.
func (s *Scheduler) RunWatcher() error {
	if !s.enabled || s.watcher == nil {
		return nil
	}
	return s.watcher.RunContext(s.ctx)
}
