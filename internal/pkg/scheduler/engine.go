package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/subtrackd/subtrackd/app/models"
	"github.com/subtrackd/subtrackd/internal/pkg/metrics/counter"
)

// Engine walks each subscription's reminder timeline as a durable,
// resumable unit of work. The execution cursor lives in the RunStore, never
// in a goroutine stack, so a suspension may span arbitrary process downtime.
type Engine struct {
	store      RunStore
	subs       SubscriptionSource
	notifier   Notifier
	clock      Clock
	offsets    []int
	workers    int
	workerPool chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewEngine creates a reminder engine. Offsets must be in descending
// day-count order; nil selects the default [7 5 2 1].
func NewEngine(store RunStore, subs SubscriptionSource, notifier Notifier, clock Clock, offsets []int, workers int) *Engine {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}
	if len(offsets) == 0 {
		offsets = DefaultOffsets
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &Engine{
		store:      store,
		subs:       subs,
		notifier:   notifier,
		clock:      clock,
		offsets:    offsets,
		workers:    workers,
		workerPool: make(chan struct{}, workers),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the engine workers
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}

	e.running = true
	e.stopCh = make(chan struct{})
	log.Infof("[Scheduler] Starting %d workers (offsets=%v)", e.workers, e.offsets)

	// Initialize worker pool
	for i := 0; i < e.workers; i++ {
		e.workerPool <- struct{}{}
	}

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
}

// Stop stops the engine workers
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	log.Info("[Scheduler] Stopping workers...")
	close(e.stopCh)
	e.running = false
	e.wg.Wait()
	log.Info("[Scheduler] All workers stopped")
}

// Trigger starts the reminder workflow for a subscription. Triggering an id
// with a live run is a no-op, so the entrypoint is safe to call repeatedly
// without duplicating the reminder stream.
func (e *Engine) Trigger(subscriptionID uint) error {
	ctx := context.Background()
	now := e.clock.Now()

	run := &Run{
		ID:             uuid.New().String(),
		SubscriptionID: subscriptionID,
		Offsets:        e.offsets,
		NextIndex:      0,
		ResumeAt:       now,
		Status:         RunStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := e.store.CreateRunIfAbsent(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to create run for subscription %d: %w", subscriptionID, err)
	}
	if !created {
		existing, gerr := e.store.GetRun(ctx, subscriptionID)
		if gerr != nil {
			return gerr
		}
		if existing != nil && !existing.Status.Terminal() {
			log.Debugf("[Scheduler] Run already in flight for subscription %d, ignoring trigger", subscriptionID)
			return nil
		}
		// Terminal leftover from an earlier lifecycle; start fresh.
		if serr := e.store.SaveRun(ctx, run); serr != nil {
			return serr
		}
	}

	if err := e.scheduleWithRetry(ctx, subscriptionID, run.ResumeAt); err != nil {
		return err
	}

	log.Infof("[Scheduler] Triggered reminder run %s for subscription %d", run.ID, subscriptionID)
	return nil
}

// Abandon drops the run state and due-time index entry for a subscription.
// Used when the subscription is deleted; a concurrently executing step simply
// finds no run on its next persistence point.
func (e *Engine) Abandon(subscriptionID uint) error {
	ctx := context.Background()
	if err := e.store.Unschedule(ctx, subscriptionID); err != nil {
		return err
	}
	return e.store.DeleteRun(ctx, subscriptionID)
}

// scheduleWithRetry indexes the wake-up with incremental backoff. The caller
// treats persistent failure as recoverable: the reconciliation sweep re-arms
// missing schedule entries.
func (e *Engine) scheduleWithRetry(ctx context.Context, subscriptionID uint, at time.Time) error {
	var err error
	for attempt := 1; attempt <= DefaultMaxScheduleRetries; attempt++ {
		if err = e.store.Schedule(ctx, subscriptionID, at); err == nil {
			return nil
		}
		log.Warnf("[Scheduler] Schedule attempt %d/%d for subscription %d failed: %v",
			attempt, DefaultMaxScheduleRetries, subscriptionID, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return fmt.Errorf("failed to schedule wake-up for subscription %d: %w", subscriptionID, err)
}

// worker claims due runs and executes resume steps
func (e *Engine) worker(id int) {
	defer e.wg.Done()
	log.Infof("[Scheduler] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-e.stopCh:
			log.Infof("[Scheduler] Worker %d stopping", id)
			return
		default:
			// Acquire worker slot
			<-e.workerPool

			subID, ok, err := e.store.ClaimDue(ctx, e.clock.Now())
			if err != nil {
				log.Errorf("[Scheduler] Worker %d: error claiming due run: %v", id, err)
			}
			if !ok {
				// Release worker slot and wait before polling again
				e.workerPool <- struct{}{}
				time.Sleep(time.Second)
				continue
			}

			e.ProcessRun(ctx, subID)

			// Release worker slot
			e.workerPool <- struct{}{}
		}
	}
}

// ProcessRun executes one resume step for a subscription's run: re-fetch the
// subscription, abort on non-active status or passed renewal, fire every
// checkpoint that is already due, then suspend until the next one.
func (e *Engine) ProcessRun(ctx context.Context, subscriptionID uint) {
	run, err := e.store.GetRun(ctx, subscriptionID)
	if err != nil {
		log.Errorf("[Scheduler] Failed to load run for subscription %d: %v", subscriptionID, err)
		return
	}
	if run == nil || run.Status.Terminal() {
		// Abandoned or already finished; nothing to resume.
		return
	}

	sub, err := e.subs.GetByID(subscriptionID)
	if err != nil || sub == nil {
		e.finishRun(ctx, run, func() { run.MarkAborted("subscription no longer exists") })
		return
	}

	for {
		now := e.clock.Now()
		step := evaluate(run, sub, now)

		switch step.kind {
		case stepAbort:
			log.Infof("[Scheduler] Aborting run for subscription %d: %s", subscriptionID, step.reason)
			e.finishRun(ctx, run, func() { run.MarkAborted(step.reason) })
			return

		case stepComplete:
			log.Infof("[Scheduler] Run completed for subscription %d (%d reminders)", subscriptionID, len(run.FiredOffsets))
			e.finishRun(ctx, run, run.MarkCompleted)
			return

		case stepSuspend:
			run.MarkSuspended(step.until)
			if err := e.store.SaveRun(ctx, run); err != nil {
				log.Errorf("[Scheduler] Failed to persist suspension for subscription %d: %v", subscriptionID, err)
				return
			}
			if err := e.scheduleWithRetry(ctx, subscriptionID, step.until); err != nil {
				log.Errorf("[Scheduler] %v", err)
			}
			return

		case stepFire:
			e.fire(run, sub, step.offset)
			// Persist the cursor after every attempt so a restart never
			// replays an already-recorded offset.
			if err := e.store.SaveRun(ctx, run); err != nil {
				log.Errorf("[Scheduler] Failed to persist cursor for subscription %d: %v", subscriptionID, err)
				return
			}
		}
	}
}

// fire makes exactly one delivery attempt for an offset. Failures are
// reported but never abort the remaining checkpoint sequence.
func (e *Engine) fire(run *Run, sub *models.Subscription, offset int) {
	label := fmt.Sprintf("%d days before reminder", offset)

	to, err := e.subs.GetOwnerEmail(sub.UserID)
	if err != nil {
		log.Errorf("[Scheduler] Cannot resolve owner email for subscription %d: %v", sub.ID, err)
		if cerr := counter.AddReminderFailure(sub.ID); cerr != nil {
			log.Errorf("[Scheduler] Failed to count reminder failure: %v", cerr)
		}
	} else if serr := e.notifier.Send(to, label, sub); serr != nil {
		log.Errorf("[Scheduler] Reminder %q for subscription %d failed: %v", label, sub.ID, serr)
		if cerr := counter.AddReminderFailure(sub.ID); cerr != nil {
			log.Errorf("[Scheduler] Failed to count reminder failure: %v", cerr)
		}
	} else {
		log.Infof("[Scheduler] Sent %q for subscription %d", label, sub.ID)
		if cerr := counter.AddReminderSent(sub.ID); cerr != nil {
			log.Errorf("[Scheduler] Failed to count sent reminder: %v", cerr)
		}
	}

	run.MarkFired(offset)
}

// Reconcile re-arms reminder workflows for every active subscription whose
// renewal falls inside the reminder window. Subscriptions without a run get
// one; live runs missing their schedule entry (crash between claim and
// suspend) are re-indexed at their recorded resume time.
func (e *Engine) Reconcile() error {
	ctx := context.Background()
	now := e.clock.Now()

	// The earliest checkpoint is renewalDate - offsets[0]; arming one day
	// before that is enough for every reminder to fire on time.
	cutoff := now.AddDate(0, 0, e.offsets[0]+1)
	subs, err := e.subs.FindActiveRenewingBefore(now, cutoff)
	if err != nil {
		return err
	}

	rearmed := 0
	for i := range subs {
		sub := &subs[i]
		run, gerr := e.store.GetRun(ctx, sub.ID)
		if gerr != nil {
			log.Errorf("[Scheduler] Reconcile: failed to load run for subscription %d: %v", sub.ID, gerr)
			continue
		}
		if run == nil {
			if terr := e.Trigger(sub.ID); terr != nil {
				log.Errorf("[Scheduler] Reconcile: failed to trigger subscription %d: %v", sub.ID, terr)
				continue
			}
			rearmed++
			continue
		}
		if run.Status.Terminal() {
			continue
		}
		if serr := e.store.EnsureScheduled(ctx, sub.ID, run.ResumeAt); serr != nil {
			log.Errorf("[Scheduler] Reconcile: failed to re-index subscription %d: %v", sub.ID, serr)
		}
	}

	if rearmed > 0 {
		log.Infof("[Scheduler] Reconciliation sweep re-armed %d subscription(s)", rearmed)
	}
	return nil
}

func (e *Engine) finishRun(ctx context.Context, run *Run, mark func()) {
	mark()
	if err := e.store.SaveRun(ctx, run); err != nil {
		log.Errorf("[Scheduler] Failed to persist final state for subscription %d: %v", run.SubscriptionID, err)
	}
}
