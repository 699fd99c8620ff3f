// Package pipeline is the single entry point every trigger surface uses:
// detect completion, then dispatch the summary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/completion"
	"github.com/dalemusser/boardhub/internal/app/system/metrics"
	"github.com/dalemusser/boardhub/internal/app/system/notify"
	"github.com/dalemusser/boardhub/internal/app/system/timeouts"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/messaging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Checker decides completion for one item.
type Checker interface {
	Check(ctx context.Context, itemID string) (completion.Result, error)
}

// Notifier sends the voting summary.
type Notifier interface {
	SendSummary(ctx context.Context, req notify.Request) (notify.Result, error)
}

// Config tunes the sweep.
type Config struct {
	// SweepConcurrency bounds items processed in parallel (default 4).
	SweepConcurrency int
	// SweepBatch caps the items examined per sweep (default 500).
	SweepBatch int64
	// RetryWindow is how long after completion the sweep keeps retrying an
	// undelivered summary (default 24h).
	RetryWindow time.Duration
	// RetryInterval is the minimum gap between dispatch attempts for one
	// episode, and the grace given to a fresh completion (default 10m).
	RetryInterval time.Duration
}

// Pipeline wires detection to dispatch.
type Pipeline struct {
	Items     storage.VoteStore
	Ledger    storage.Ledger
	Detector  Checker
	Notifier  Notifier
	Publisher messaging.Publisher
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time

	cfg   Config
	group singleflight.Group
	wg    sync.WaitGroup
}

// New creates a Pipeline. A nil publisher discards events. A nil ledger
// disables summary redelivery in the sweep.
func New(items storage.VoteStore, ledger storage.Ledger, det Checker, n Notifier, pub messaging.Publisher, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = messaging.NopPublisher{}
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 4
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 500
	}
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = 24 * time.Hour
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 10 * time.Minute
	}
	return &Pipeline{
		Items:     items,
		Ledger:    ledger,
		Detector:  det,
		Notifier:  n,
		Publisher: pub,
		Log:       logger,
		Metrics:   m,
		Now:       time.Now,
		cfg:       cfg,
	}
}

// Outcome is the result of processing one item.
type Outcome struct {
	Completion completion.Result
	// Dispatch is set when a summary dispatch was attempted.
	Dispatch *notify.Result
	// Notified is true when this call delivered the summary to at least one
	// recipient.
	Notified bool
}

// Process checks ref for completion and, when complete, dispatches the
// summary. Concurrent calls for the same item share one execution, which
// runs detached from any single caller's cancellation under its own
// timeout. A caller that gives up gets ctx.Err(); the shared work goes on.
func (p *Pipeline) Process(ctx context.Context, ref models.ItemRef, source models.TriggerSource) (Outcome, error) {
	work := context.WithoutCancel(ctx)
	ch := p.group.DoChan(ref.ID, func() (any, error) {
		wctx, cancel := timeouts.WithTimeout(work, timeouts.Long(), p.Log, "completion check")
		defer cancel()
		return p.process(wctx, ref, source)
	})

	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case r := <-ch:
		if r.Shared {
			p.Log.Debug("joined in-flight completion check",
				zap.String("item_id", ref.ID),
				zap.String("source", string(source)))
		}
		out, _ := r.Val.(Outcome)
		return out, r.Err
	}
}

func (p *Pipeline) process(ctx context.Context, ref models.ItemRef, source models.TriggerSource) (Outcome, error) {
	if ref.Type != "" {
		item, err := p.Items.GetItem(ctx, ref.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("load item %s: %w", ref.ID, err)
		}
		if item.Type != ref.Type {
			return Outcome{}, fmt.Errorf("item %s is a %s: %w", ref.ID, item.Type, storage.ErrNotFound)
		}
	}

	res, err := p.Detector.Check(ctx, ref.ID)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Completion: res}
	if !res.Complete {
		return out, nil
	}

	if res.Applied {
		if err := p.Publisher.PublishCompleted(ctx, messaging.EventFromItem(res.Item)); err != nil {
			p.Log.Warn("completion event not published",
				zap.String("item_id", ref.ID), zap.Error(err))
		}
	}

	dr, err := p.Notifier.SendSummary(ctx, notify.Request{
		ItemType: res.Item.Type,
		ItemID:   res.Item.ID,
		Source:   source,
	})
	out.Dispatch = &dr
	out.Notified = !dr.AlreadySent && dr.Sent > 0
	if err != nil {
		return out, fmt.Errorf("dispatch summary for %s: %w", ref.ID, err)
	}
	return out, nil
}

// AfterBallot runs the post-ballot hook in the background. It is detached
// from the request context and never reports failure to the caller.
func (p *Pipeline) AfterBallot(ctx context.Context, ref models.ItemRef) {
	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.afterBallot(ctx, ref)
	}()
}

// Wait blocks until background post-ballot hooks have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) afterBallot(ctx context.Context, ref models.ItemRef) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), p.Log, "post-ballot completion")
	defer cancel()

	out, err := p.Process(ctx, ref, models.SourcePostBallot)
	if err == nil {
		return
	}
	p.Log.Error("post-ballot completion failed",
		zap.String("item_id", ref.ID),
		zap.String("item_type", string(ref.Type)),
		zap.Error(err))

	if !out.Completion.Complete || errors.Is(err, notify.ErrRender) {
		return
	}
	if _, ferr := p.Notifier.SendSummary(ctx, notify.Request{
		ItemType: out.Completion.Item.Type,
		ItemID:   ref.ID,
		Source:   models.SourcePostBallot,
	}); ferr != nil {
		p.Log.Error("post-ballot fallback dispatch failed",
			zap.String("item_id", ref.ID), zap.Error(ferr))
	}
}

// Webhook processes a completion request from the inbound webhook.
func (p *Pipeline) Webhook(ctx context.Context, ref models.ItemRef) (Outcome, error) {
	return p.Process(ctx, ref, models.SourceWebhook)
}

// ForceDispatch sends the summary for ref without running detection. When
// force is false a summary already sent for the episode is not repeated.
func (p *Pipeline) ForceDispatch(ctx context.Context, ref models.ItemRef, force bool, actorID string) (notify.Result, error) {
	return p.Notifier.SendSummary(ctx, notify.Request{
		ItemType: ref.Type,
		ItemID:   ref.ID,
		Source:   models.SourceManual,
		Force:    force,
		ActorID:  actorID,
	})
}

// ItemError is a failure on one swept item.
type ItemError struct {
	ItemID string
	Err    error
}

func (e ItemError) Error() string { return e.ItemID + ": " + e.Err.Error() }
func (e ItemError) Unwrap() error { return e.Err }

// SweepReport summarises one sweep.
type SweepReport struct {
	Examined  int
	Completed int
	// Redelivered counts completed items whose undelivered summary was
	// sent by this sweep. They are included in Notified.
	Redelivered int
	Notified    int
	Errors      []ItemError
}

// Sweep retries undelivered summaries of recently completed items, then
// processes every voting item whose deadline has passed. Each item is
// handled independently; failures are collected, not fatal.
func (p *Pipeline) Sweep(ctx context.Context) (SweepReport, error) {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	var report SweepReport
	if err := p.redeliver(ctx, now, &report); err != nil {
		return report, err
	}

	due, err := p.Items.ListDueForSweep(ctx, now, p.cfg.SweepBatch)
	if err != nil {
		return report, fmt.Errorf("list items due for sweep: %w", err)
	}
	report.Examined = len(due)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.cfg.SweepConcurrency)

	for _, item := range due {
		g.Go(func() error {
			out, err := p.Process(ctx, item.Ref(), models.SourceSweep)

			mu.Lock()
			defer mu.Unlock()
			if out.Completion.Applied {
				report.Completed++
			}
			if out.Notified {
				report.Notified++
			}
			if err != nil {
				report.Errors = append(report.Errors, ItemError{ItemID: item.ID, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	p.Metrics.Sweep(report.Examined, len(report.Errors))
	if report.Examined > 0 || report.Redelivered > 0 || len(report.Errors) > 0 {
		p.Log.Info("deadline sweep finished",
			zap.Int("examined", report.Examined),
			zap.Int("completed", report.Completed),
			zap.Int("redelivered", report.Redelivered),
			zap.Int("notified", report.Notified),
			zap.Int("errors", len(report.Errors)))
	}
	for _, e := range report.Errors {
		p.Log.Warn("sweep item failed", zap.String("item_id", e.ItemID), zap.Error(e.Err))
	}
	return report, nil
}

// redeliver sends the summary for items completed within the retry window
// whose episode has no sent entry. Items completed or attempted within the
// retry interval are left alone; their dispatch may still be in flight.
func (p *Pipeline) redeliver(ctx context.Context, now time.Time, report *SweepReport) error {
	if p.Ledger == nil {
		return nil
	}
	done, err := p.Items.ListCompletedSince(ctx, now.Add(-p.cfg.RetryWindow), p.cfg.SweepBatch)
	if err != nil {
		return fmt.Errorf("list completed items: %w", err)
	}
	cutoff := now.Add(-p.cfg.RetryInterval)

	for _, item := range done {
		retry, err := p.needsRedelivery(ctx, item, cutoff)
		if err != nil {
			report.Errors = append(report.Errors, ItemError{ItemID: item.ID, Err: err})
			continue
		}
		if !retry {
			continue
		}

		p.Log.Info("retrying undelivered summary",
			zap.String("item_id", item.ID),
			zap.Int("episode", item.Episode))
		out, err := p.Process(ctx, item.Ref(), models.SourceSweep)
		if out.Notified {
			report.Redelivered++
			report.Notified++
		}
		if err != nil {
			report.Errors = append(report.Errors, ItemError{ItemID: item.ID, Err: err})
		}
	}
	return nil
}

func (p *Pipeline) needsRedelivery(ctx context.Context, item models.VotableItem, cutoff time.Time) (bool, error) {
	if item.CompletedAt != nil && item.CompletedAt.After(cutoff) {
		return false, nil
	}
	sent, err := p.Ledger.FindEntry(ctx, item.ID, item.Episode, models.LedgerSent)
	if err != nil {
		return false, fmt.Errorf("check ledger: %w", err)
	}
	if sent != nil {
		return false, nil
	}
	last, err := p.Ledger.FindEntry(ctx, item.ID, item.Episode, models.LedgerTriggered)
	if err != nil {
		return false, fmt.Errorf("check ledger: %w", err)
	}
	return last == nil || !last.CreatedAt.After(cutoff), nil
}
