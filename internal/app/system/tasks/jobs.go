// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/boardhub/internal/app/system/pipeline"
	"go.uber.org/zap"
)

// Sweeper runs one deadline sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (pipeline.SweepReport, error)
}

// DeadlineSweepJob creates a job that completes and notifies items whose
// voting deadline has passed. It also runs once at startup to catch
// deadlines that passed while the service was down.
func DeadlineSweepJob(s Sweeper, logger *zap.Logger, interval time.Duration) Job {
	if interval <= 0 {
		interval = time.Minute
	}
	return Job{
		Name:       "deadline-sweep",
		Interval:   interval,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			report, err := s.Sweep(ctx)
			if err != nil {
				return err
			}
			if len(report.Errors) > 0 {
				logger.Warn("deadline sweep finished with item errors",
					zap.Int("examined", report.Examined),
					zap.Int("errors", len(report.Errors)))
			}
			return nil
		},
	}
}
