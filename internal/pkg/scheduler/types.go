package scheduler

import (
	"time"

	"github.com/subtrackd/subtrackd/app/models"
)

const (
	// Redis key prefixes
	RunKeyPrefix = "reminder:"
	ScheduleKey  = "reminder_schedule"
	RunStatsKey  = "reminder_stats"

	// Terminal run state is kept around briefly for inspection, then expires.
	TerminalRunTTL = 24 * time.Hour

	// Scheduling retries on trigger
	DefaultMaxScheduleRetries = 3
)

// DefaultOffsets are the reminder checkpoints in days before renewal,
// descending. A later (smaller) offset is never evaluated before an earlier
// one completes or is skipped.
var DefaultOffsets = []int{7, 5, 2, 1}

// RunStatus defines the state of a reminder run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusSuspended RunStatus = "suspended"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)

// Terminal reports whether the status ends the run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusAborted
}

// Run is the durable execution cursor of one subscription's reminder
// sequence. It is the only state that must survive process restarts; the
// checkpoint times themselves are recomputed from the subscription's renewal
// date on every resume.
type Run struct {
	ID             string     `json:"id"`
	SubscriptionID uint       `json:"subscription_id"`
	Offsets        []int      `json:"offsets"`
	NextIndex      int        `json:"next_index"`
	ResumeAt       time.Time  `json:"resume_at"`
	Status         RunStatus  `json:"status"`
	FiredOffsets   []int      `json:"fired_offsets,omitempty"`
	AbortReason    string     `json:"abort_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// MarkSuspended records the next wake-up time.
func (r *Run) MarkSuspended(until time.Time) {
	r.Status = RunStatusSuspended
	r.ResumeAt = until
	r.UpdatedAt = time.Now()
}

// MarkFired advances the cursor past a delivered (or attempted) offset.
func (r *Run) MarkFired(offset int) {
	r.FiredOffsets = append(r.FiredOffsets, offset)
	r.NextIndex++
	r.UpdatedAt = time.Now()
}

// MarkCompleted finishes the run after all offsets were processed.
func (r *Run) MarkCompleted() {
	now := time.Now()
	r.Status = RunStatusCompleted
	r.UpdatedAt = now
	r.CompletedAt = &now
}

// MarkAborted terminates the run early (inactive subscription or renewal
// already passed).
func (r *Run) MarkAborted(reason string) {
	now := time.Now()
	r.Status = RunStatusAborted
	r.AbortReason = reason
	r.UpdatedAt = now
	r.CompletedAt = &now
}

// Clock is the injectable time source used for checkpoint evaluation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns wall-clock time.
func SystemClock() Clock { return systemClock{} }

// Notifier delivers a single reminder message. Delivery failure is non-fatal
// to the run: it is logged and the remaining checkpoints still fire.
type Notifier interface {
	Send(to string, label string, sub *models.Subscription) error
}

// SubscriptionSource provides the subscription reads the engine performs at
// every wake-up. Status is always re-fetched so cancellation and expiry are
// observed cooperatively.
type SubscriptionSource interface {
	GetByID(id uint) (*models.Subscription, error)
	GetOwnerEmail(userID uint) (string, error)
	// FindActiveRenewingBefore returns active subscriptions with a renewal in
	// (now, cutoff]. Both bounds come from the engine's clock.
	FindActiveRenewingBefore(now, cutoff time.Time) ([]models.Subscription, error)
}
