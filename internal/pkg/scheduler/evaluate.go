package scheduler

import (
	"time"

	"github.com/subtrackd/subtrackd/app/models"
)

type stepKind int

const (
	stepAbort stepKind = iota
	stepComplete
	stepSuspend
	stepFire
)

type stepResult struct {
	kind   stepKind
	reason string    // stepAbort
	until  time.Time // stepSuspend
	offset int       // stepFire
}

// evaluate decides the next transition for a run against the subscription's
// current state. Pure: all decisions derive from (run, sub, now).
//
//	non-active subscription        -> abort
//	renewal date not in the future -> abort
//	offsets exhausted              -> complete
//	next checkpoint still ahead    -> suspend until checkpoint
//	checkpoint passed, renewal not -> fire the offset immediately
func evaluate(run *Run, sub *models.Subscription, now time.Time) stepResult {
	if !sub.IsActive() {
		return stepResult{kind: stepAbort, reason: "subscription status is " + sub.Status}
	}
	if !sub.RenewalDate.After(now) {
		return stepResult{kind: stepAbort, reason: "renewal date has passed"}
	}
	if run.NextIndex >= len(run.Offsets) {
		return stepResult{kind: stepComplete}
	}

	offset := run.Offsets[run.NextIndex]
	checkpoint := sub.RenewalDate.AddDate(0, 0, -offset)
	if checkpoint.After(now) {
		return stepResult{kind: stepSuspend, until: checkpoint}
	}
	// Checkpoint already behind us but renewal still upcoming: deliver late
	// rather than drop the reminder.
	return stepResult{kind: stepFire, offset: offset}
}
