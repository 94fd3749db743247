package services

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

type mockSyncQueue struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockSyncQueue) EnqueueSyncAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func (m *mockSyncQueue) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewSyncScheduler(t *testing.T) {
	t.Run("creates scheduler with default interval", func(t *testing.T) {
		scheduler := NewSyncScheduler(&mockSyncQueue{}, SyncSchedulerConfig{}, testLogger())
		if scheduler.config.Interval != 5*time.Minute {
			t.Errorf("expected default interval 5m, got %v", scheduler.config.Interval)
		}
	})

	t.Run("keeps custom interval", func(t *testing.T) {
		scheduler := NewSyncScheduler(&mockSyncQueue{}, SyncSchedulerConfig{Interval: time.Minute}, nil)
		if scheduler.config.Interval != time.Minute {
			t.Errorf("expected interval 1m, got %v", scheduler.config.Interval)
		}
	})
}

func TestSyncScheduler_StartStop(t *testing.T) {
	scheduler := NewSyncScheduler(&mockSyncQueue{}, SyncSchedulerConfig{Interval: time.Hour}, testLogger())

	t.Run("starts and stops correctly", func(t *testing.T) {
		if scheduler.IsRunning() {
			t.Error("scheduler should not be running initially")
		}
		scheduler.Start()
		if !scheduler.IsRunning() {
			t.Error("scheduler should be running after Start()")
		}
		scheduler.Stop()
		if scheduler.IsRunning() {
			t.Error("scheduler should not be running after Stop()")
		}
	})

	t.Run("multiple starts and stops are idempotent", func(t *testing.T) {
		scheduler.Start()
		scheduler.Start()
		scheduler.Stop()
		scheduler.Stop()
		if scheduler.IsRunning() {
			t.Error("scheduler should not be running")
		}
	})
}

func TestSyncScheduler_QueuesOnStartAndTick(t *testing.T) {
	queue := &mockSyncQueue{}
	scheduler := NewSyncScheduler(queue, SyncSchedulerConfig{Interval: 40 * time.Millisecond}, testLogger())

	scheduler.Start()
	time.Sleep(150 * time.Millisecond)
	scheduler.Stop()

	if n := queue.callCount(); n < 2 {
		t.Errorf("expected at least 2 scheduled syncs, got %d", n)
	}
}

func TestSyncScheduler_KeepsRunningOnQueueError(t *testing.T) {
	queue := &mockSyncQueue{err: errors.New("queue full")}
	scheduler := NewSyncScheduler(queue, SyncSchedulerConfig{Interval: 40 * time.Millisecond}, testLogger())

	scheduler.Start()
	time.Sleep(150 * time.Millisecond)
	if !scheduler.IsRunning() {
		t.Error("scheduler should survive queue errors")
	}
	scheduler.Stop()

	if n := queue.callCount(); n < 2 {
		t.Errorf("expected repeated attempts, got %d", n)
	}
}

func TestSyncScheduler_ForceSync(t *testing.T) {
	t.Run("force sync queues immediately", func(t *testing.T) {
		queue := &mockSyncQueue{}
		scheduler := NewSyncScheduler(queue, SyncSchedulerConfig{Interval: time.Hour}, testLogger())
		scheduler.Start()
		time.Sleep(50 * time.Millisecond)
		initial := queue.callCount()

		scheduler.ForceSync()
		time.Sleep(50 * time.Millisecond)
		if queue.callCount() <= initial {
			t.Errorf("expected additional sync after ForceSync, initial: %d, final: %d", initial, queue.callCount())
		}
		scheduler.Stop()
	})

	t.Run("force sync does nothing when not running", func(t *testing.T) {
		queue := &mockSyncQueue{}
		scheduler := NewSyncScheduler(queue, SyncSchedulerConfig{}, testLogger())
		scheduler.ForceSync()
		if queue.callCount() != 0 {
			t.Errorf("expected no syncs when not running, got %d", queue.callCount())
		}
	})
}
