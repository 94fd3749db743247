package services

import (
	"log/slog"
	"sync"
	"time"
)

// SyncEnqueuer fans out sync work for every syncable account
type SyncEnqueuer interface {
	EnqueueSyncAll() error
}

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// Interval is how often every syncable account is queued for sync
	Interval time.Duration
}

// SyncScheduler periodically queues a sync of all pull-capable accounts
type SyncScheduler struct {
	queue   SyncEnqueuer
	config  SyncSchedulerConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(queue SyncEnqueuer, config SyncSchedulerConfig, logger *slog.Logger) *SyncScheduler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SyncScheduler{
		queue:  queue,
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins the periodic sync job
func (s *SyncScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("sync scheduler started", slog.Duration("interval", s.config.Interval))
}

// Stop gracefully stops the periodic sync job
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("sync scheduler stopped")
}

// IsRunning returns whether the scheduler is currently running
func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SyncScheduler) loop() {
	defer s.wg.Done()

	// Run immediately on start
	s.tick()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *SyncScheduler) tick() {
	if err := s.queue.EnqueueSyncAll(); err != nil {
		s.logger.Error("failed to queue scheduled sync", slog.Any("error", err))
		return
	}
	s.logger.Debug("scheduled sync queued")
}

// ForceSync queues a sync of all accounts outside the schedule
func (s *SyncScheduler) ForceSync() {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		s.logger.Warn("force sync called but scheduler is not running")
		return
	}

	s.logger.Info("force sync triggered")
	go s.tick()
}
