// Package worker runs periodic maintenance tasks inside the server process,
// with per-run timeouts and graceful shutdown.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Mayank009/cashew/internal/metrics"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Config holds worker configuration
type Config struct {
	// TaskTimeout is the maximum time allowed for a single run
	TaskTimeout time.Duration
	// ShutdownTimeout is the maximum time to wait for running tasks during shutdown
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		TaskTimeout:     5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Stats holds per-task counters.
type Stats struct {
	Runs      int64
	Failures  int64
	LastRunAt time.Time
	LastError string
}

type schedule struct {
	name     string
	interval time.Duration
	task     Task
}

// Worker runs registered tasks on fixed intervals. A task never overlaps
// with itself.
type Worker struct {
	config    Config
	logger    hclog.Logger
	schedules []schedule

	wg      sync.WaitGroup
	stopCh  chan struct{}
	started bool
	stopped bool
	mu      sync.Mutex

	statsMu sync.RWMutex
	stats   map[string]Stats
}

// New creates a new Worker instance
func New(config Config, logger hclog.Logger) *Worker {
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = DefaultConfig().TaskTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Worker{
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
		stats:  make(map[string]Stats),
	}
}

// Every registers task to run each interval. It must be called before Start.
func (w *Worker) Every(name string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return fmt.Errorf("worker: task %s: interval must be positive", name)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("worker: task %s: worker already started", name)
	}
	w.schedules = append(w.schedules, schedule{name: name, interval: interval, task: task})
	return nil
}

// Start begins one loop per registered task.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	schedules := append([]schedule(nil), w.schedules...)
	w.mu.Unlock()

	for _, s := range schedules {
		w.wg.Add(1)
		go w.loop(ctx, s)
	}

	w.logger.Info("worker started", "tasks", len(schedules))
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped")
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("worker: shutdown timeout exceeded")
	}
}

func (w *Worker) loop(ctx context.Context, s schedule) {
	defer w.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.run(ctx, s)
		}
	}
}

func (w *Worker) run(ctx context.Context, s schedule) {
	runCtx, cancel := context.WithTimeout(ctx, w.config.TaskTimeout)
	defer cancel()

	// Stop cancels an in-flight run.
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	start := time.Now()
	err := s.task(runCtx)
	duration := time.Since(start)

	w.statsMu.Lock()
	st := w.stats[s.name]
	st.Runs++
	st.LastRunAt = start
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
	w.stats[s.name] = st
	w.statsMu.Unlock()

	metrics.RecordTaskRun(s.name, duration.Seconds(), err)

	if err != nil {
		w.logger.Error("task failed", "task", s.name, "duration", duration, "error", err)
		return
	}
	w.logger.Debug("task completed", "task", s.name, "duration", duration)
}

// GetStats returns the counters of one task.
func (w *Worker) GetStats(name string) Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return w.stats[name]
}
