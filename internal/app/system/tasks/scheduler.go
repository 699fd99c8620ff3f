// internal/app/system/tasks/scheduler.go
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/boardhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Job is a unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart runs the job once as soon as the scheduler starts.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Scheduler runs jobs on their intervals until stopped. Each job has its own
// goroutine, so one run of a job never overlaps the next.
type Scheduler struct {
	log    *zap.Logger
	jobs   []Job
	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	state  int // 0 new, 1 running, 2 stopped
}

// NewScheduler creates a Scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{log: logger, stopCh: make(chan struct{})}
}

// Add registers a job. Jobs added after Start are ignored.
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != 0 {
		s.log.Warn("job added after scheduler start; ignoring", zap.String("job", job.Name))
		return
	}
	s.jobs = append(s.jobs, job)
}

// Start launches every registered job.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != 0 {
		return
	}
	s.state = 1
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.log.Warn("skipping invalid job", zap.String("job", job.Name))
			continue
		}
		s.wg.Add(1)
		go s.loop(job)
		s.log.Info("scheduled job started",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval))
	}
}

// Stop signals every job to stop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == 2 {
		s.mu.Unlock()
		return
	}
	s.state = 2
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	if job.RunOnStart {
		s.runOnce(job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(job)
		}
	}
}

func (s *Scheduler) runOnce(job Job) {
	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Sweep(), s.log, job.Name)
	defer cancel()

	// Abort the run early on shutdown.
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Error("scheduled job failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	}
}
