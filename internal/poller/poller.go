// Package poller claims work items from the queue and drives them through
// the flow, and turns reviewer edits of finished items into agent feedback.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/config"
	"github.com/dusk-indust/formcrew/internal/feedback"
	"github.com/dusk-indust/formcrew/internal/store"
)

const releaseTimeout = 10 * time.Second

// WorkQueuePoller claims pending work items and runs their flows one at a
// time.
type WorkQueuePoller struct {
	queue       store.WorkQueue
	runner      FlowRunner
	interval    time.Duration
	cancelCheck time.Duration
	log         *zap.Logger
}

// NewWorkQueuePoller creates a WorkQueuePoller with the todo and cancel
// check intervals of cfg.
func NewWorkQueuePoller(queue store.WorkQueue, runner FlowRunner, cfg config.PollConfig, log *zap.Logger) *WorkQueuePoller {
	if log == nil {
		log = zap.NewNop()
	}
	p := &WorkQueuePoller{
		queue:       queue,
		runner:      runner,
		interval:    cfg.TodoInterval,
		cancelCheck: cfg.CancelCheckInterval,
		log:         log.Named("todo"),
	}
	if p.interval <= 0 {
		p.interval = 7 * time.Second
	}
	if p.cancelCheck <= 0 {
		p.cancelCheck = 5 * time.Second
	}
	return p
}

// Run polls until ctx is cancelled.
func (p *WorkQueuePoller) Run(ctx context.Context) error {
	p.log.Info("work queue polling started", zap.Duration("interval", p.interval))
	return loop(ctx, p.interval, func(ctx context.Context) {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.log.Error("claim failed", zap.Error(err))
		}
	})
}

// Poll claims at most one item and runs it. It reports whether an item was
// claimed.
func (p *WorkQueuePoller) Poll(ctx context.Context) (bool, error) {
	item, err := p.queue.ClaimPending(ctx)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	p.process(ctx, item)
	return true, nil
}

func (p *WorkQueuePoller) process(ctx context.Context, item *store.WorkItem) {
	log := p.log.With(zap.String("todo_id", item.ID), zap.String("proc_inst_id", item.ProcInstID))
	log.Info("work item claimed", zap.String("activity", item.ActivityName))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	cancelled := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.watchCancel(runCtx, item.ID, cancel, cancelled, log)
	}()

	start := time.Now()
	err := p.runner.RunItem(runCtx, item)
	cancel()
	wg.Wait()

	var userCancelled bool
	select {
	case <-cancelled:
		userCancelled = true
	default:
	}

	switch {
	case err == nil && !userCancelled:
		log.Info("work item completed", zap.Duration("elapsed", time.Since(start)))
		return
	case userCancelled || ctx.Err() != nil || errors.Is(err, context.Canceled):
		log.Info("work item cancelled", zap.Bool("by_user", userCancelled), zap.Error(err))
		p.release(ctx, item.ID, store.DraftCancelled, log)
	default:
		log.Error("work item failed", zap.Error(err))
		p.release(ctx, item.ID, store.DraftFailed, log)
	}
}

// watchCancel cancels the run when the item's draft status turns CANCELLED.
func (p *WorkQueuePoller) watchCancel(ctx context.Context, id string, cancel context.CancelFunc, cancelled chan<- struct{}, log *zap.Logger) {
	ticker := time.NewTicker(p.cancelCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := p.queue.ReadDraftStatus(ctx, id)
			if err != nil {
				if ctx.Err() == nil {
					log.Debug("draft status check failed", zap.Error(err))
				}
				continue
			}
			if status == store.DraftCancelled {
				log.Info("cancellation requested")
				close(cancelled)
				cancel()
				return
			}
		}
	}
}

func (p *WorkQueuePoller) release(ctx context.Context, id, status string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := p.queue.ReleaseClaim(ctx, id, status); err != nil {
		log.Warn("release claim failed", zap.String("status", status), zap.Error(err))
	}
}

// FeedbackAnalyzer derives agent feedback from a finished work item.
type FeedbackAnalyzer interface {
	Analyze(ctx context.Context, item *store.WorkItem) ([]feedback.Record, error)
}

// FeedbackPoller claims finished items and stores the feedback derived from
// the reviewer's edits.
type FeedbackPoller struct {
	queue    store.WorkQueue
	analyzer FeedbackAnalyzer
	interval time.Duration
	log      *zap.Logger
}

// NewFeedbackPoller creates a FeedbackPoller polling every interval
// (default 10s).
func NewFeedbackPoller(queue store.WorkQueue, analyzer FeedbackAnalyzer, interval time.Duration, log *zap.Logger) *FeedbackPoller {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &FeedbackPoller{queue: queue, analyzer: analyzer, interval: interval, log: log.Named("feedback")}
}

// Run polls until ctx is cancelled.
func (p *FeedbackPoller) Run(ctx context.Context) error {
	p.log.Info("feedback polling started", zap.Duration("interval", p.interval))
	return loop(ctx, p.interval, func(ctx context.Context) {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.log.Error("feedback poll failed", zap.Error(err))
		}
	})
}

// Poll claims at most one finished item, analyzes it and saves the records.
// An item whose analysis fails keeps the empty feedback set by the claim.
func (p *FeedbackPoller) Poll(ctx context.Context) (bool, error) {
	item, err := p.queue.ClaimFeedback(ctx)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	log := p.log.With(zap.String("todo_id", item.ID))

	records, err := p.analyzer.Analyze(ctx, item)
	if err != nil {
		return true, err
	}
	if records == nil {
		records = []feedback.Record{}
	}
	if err := p.queue.SaveFeedback(ctx, item.ID, records); err != nil {
		return true, err
	}
	log.Info("feedback saved", zap.Int("records", len(records)))
	return true, nil
}

// loop runs tick immediately and then every interval until ctx is done.
func loop(ctx context.Context, interval time.Duration, tick func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
