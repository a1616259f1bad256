package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtrackd/subtrackd/app/models"
)

// memStore is an in-memory RunStore. It round-trips runs through JSON so the
// engine never observes shared mutable state, mirroring the Redis store.
type memStore struct {
	mu    sync.Mutex
	runs  map[uint]*Run
	sched map[uint]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		runs:  make(map[uint]*Run),
		sched: make(map[uint]time.Time),
	}
}

func cloneRun(run *Run) *Run {
	data, _ := json.Marshal(run)
	var out Run
	_ = json.Unmarshal(data, &out)
	return &out
}

func (s *memStore) CreateRunIfAbsent(_ context.Context, run *Run) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.SubscriptionID]; exists {
		return false, nil
	}
	s.runs[run.SubscriptionID] = cloneRun(run)
	return true, nil
}

func (s *memStore) SaveRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.SubscriptionID] = cloneRun(run)
	return nil
}

func (s *memStore) GetRun(_ context.Context, subscriptionID uint) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[subscriptionID]
	if !ok {
		return nil, nil
	}
	return cloneRun(run), nil
}

func (s *memStore) DeleteRun(_ context.Context, subscriptionID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, subscriptionID)
	return nil
}

func (s *memStore) Schedule(_ context.Context, subscriptionID uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched[subscriptionID] = at
	return nil
}

func (s *memStore) EnsureScheduled(_ context.Context, subscriptionID uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sched[subscriptionID]; !exists {
		s.sched[subscriptionID] = at
	}
	return nil
}

func (s *memStore) Unschedule(_ context.Context, subscriptionID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sched, subscriptionID)
	return nil
}

func (s *memStore) ClaimDue(_ context.Context, now time.Time) (uint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var bestID uint
	var bestAt time.Time
	found := false
	for id, at := range s.sched {
		if at.After(now) {
			continue
		}
		if !found || at.Before(bestAt) {
			bestID, bestAt, found = id, at, true
		}
	}
	if !found {
		return 0, false, nil
	}
	delete(s.sched, bestID)
	return bestID, true, nil
}

func (s *memStore) scheduledAt(subscriptionID uint) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.sched[subscriptionID]
	return at, ok
}

// fakeClock is a settable time source
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// fakeSource serves subscriptions from a map
type fakeSource struct {
	mu     sync.Mutex
	subs   map[uint]*models.Subscription
	emails map[uint]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		subs:   make(map[uint]*models.Subscription),
		emails: make(map[uint]string),
	}
}

func (s *fakeSource) GetByID(id uint) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	copied := *sub
	return &copied, nil
}

func (s *fakeSource) GetOwnerEmail(userID uint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.emails[userID]
	if !ok {
		return "", errors.New("record not found")
	}
	return email, nil
}

func (s *fakeSource) FindActiveRenewingBefore(now, cutoff time.Time) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, sub := range s.subs {
		if sub.Status == models.SubscriptionStatusActive &&
			sub.RenewalDate.After(now) && !sub.RenewalDate.After(cutoff) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *fakeSource) put(sub *models.Subscription, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
	s.emails[sub.UserID] = email
}

func (s *fakeSource) setStatus(id uint, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[id].Status = status
}

func (s *fakeSource) remove(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// fakeNotifier records deliveries and can be told to fail
type fakeNotifier struct {
	mu   sync.Mutex
	sent []string // labels in delivery order
	to   []string
	err  error
}

func (n *fakeNotifier) Send(to string, label string, _ *models.Subscription) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, label)
	n.to = append(n.to, to)
	return nil
}

func (n *fakeNotifier) labels() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func newTestEngine(clock Clock) (*Engine, *memStore, *fakeSource, *fakeNotifier) {
	store := newMemStore()
	source := newFakeSource()
	notifier := &fakeNotifier{}
	engine := NewEngine(store, source, notifier, clock, nil, 1)
	return engine, store, source, notifier
}

func activeSub(id, userID uint, renewal time.Time) *models.Subscription {
	return &models.Subscription{
		ID:          id,
		UserID:      userID,
		Name:        "Netflix",
		Price:       9.99,
		Currency:    "EUR",
		Frequency:   models.FrequencyMonthly,
		Status:      models.SubscriptionStatusActive,
		StartDate:   renewal.AddDate(0, 0, -30),
		RenewalDate: renewal,
	}
}

func TestTriggerIsIdempotent(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine, store, source, _ := newTestEngine(clock)
	source.put(activeSub(1, 10, clock.Now().AddDate(0, 0, 10)), "owner@example.com")

	require.NoError(t, engine.Trigger(1))
	first, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, first)

	// A second trigger must not replace the live run
	require.NoError(t, engine.Trigger(1))
	second, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestTriggerAfterTerminalRunStartsFresh(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine, store, source, _ := newTestEngine(clock)
	source.put(activeSub(1, 10, clock.Now().AddDate(0, 0, 10)), "owner@example.com")

	require.NoError(t, engine.Trigger(1))
	old, _ := store.GetRun(context.Background(), 1)
	old.MarkCompleted()
	require.NoError(t, store.SaveRun(context.Background(), old))

	require.NoError(t, engine.Trigger(1))
	fresh, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Equal(t, RunStatusPending, fresh.Status)
}

func TestProcessRunSuspendsUntilFirstCheckpoint(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	engine, store, source, notifier := newTestEngine(clock)

	renewal := now.AddDate(0, 0, 10)
	source.put(activeSub(1, 10, renewal), "owner@example.com")
	require.NoError(t, engine.Trigger(1))

	engine.ProcessRun(context.Background(), 1)

	run, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSuspended, run.Status)
	assert.True(t, run.ResumeAt.Equal(renewal.AddDate(0, 0, -7)))
	assert.Empty(t, notifier.labels())

	at, ok := store.scheduledAt(1)
	require.True(t, ok)
	assert.True(t, at.Equal(run.ResumeAt))
}

func TestProcessRunFiresCheckpointsInOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	engine, store, source, notifier := newTestEngine(clock)

	renewal := now.AddDate(0, 0, 10)
	source.put(activeSub(1, 10, renewal), "owner@example.com")
	require.NoError(t, engine.Trigger(1))

	// Walk the clock to each checkpoint and resume
	for _, offset := range []int{7, 5, 2, 1} {
		clock.Set(renewal.AddDate(0, 0, -offset).Add(time.Minute))
		engine.ProcessRun(context.Background(), 1)
	}

	assert.Equal(t, []string{
		"7 days before reminder",
		"5 days before reminder",
		"2 days before reminder",
		"1 days before reminder",
	}, notifier.labels())

	run, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, []int{7, 5, 2, 1}, run.FiredOffsets)
}

func TestProcessRunFiresMissedCheckpointsImmediately(t *testing.T) {
	// Triggered 3 days before renewal: offsets 7 and 5 are already behind,
	// both fire in the same resume step, then the run sleeps until day -2.
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	engine, store, source, notifier := newTestEngine(clock)

	renewal := now.AddDate(0, 0, 3)
	source.put(activeSub(1, 10, renewal), "owner@example.com")
	require.NoError(t, engine.Trigger(1))

	engine.ProcessRun(context.Background(), 1)

	assert.Equal(t, []string{"7 days before reminder", "5 days before reminder"}, notifier.labels())

	run, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSuspended, run.Status)
	assert.True(t, run.ResumeAt.Equal(renewal.AddDate(0, 0, -2)))
	assert.Equal(t, []int{7, 5}, run.FiredOffsets)
}

func TestProcessRunAbortsWhenCancelled(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	engine, store, source, notifier := newTestEngine(clock)

	renewal := now.AddDate(0, 0, 6)
	source.put(activeSub(1, 10, renewal), "owner@example.com")
	require.NoError(t, engine.Trigger(1))

	// First resume fires the missed day-7 checkpoint and suspends
	engine.ProcessRun(context.Background(), 1)
	require.Equal(t, []string{"7 days before reminder"}, notifier.labels())

	// Cancellation happens while the run sleeps
	source.setStatus(1, models.SubscriptionStatusCancelled)
	clock.Set(renewal.AddDate(0, 0, -5).Add(time.Minute))
	engine.ProcessRun(context.Background(), 1)

	run, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RunStatusAborted, run.Status)
	assert.Contains(t, run.AbortReason, "cancelled")
	// No further reminders after the abort
	assert.Equal(t, []string{"7 days before reminder"}, notifier.labels())
}

func TestProcessRunAbortsWhenRenewalPassed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	engine, store, source, notifier := newTestEngine(clock)

	source.put(activeSub(1, 10, now.AddDate(0, 0, -1)), "owner@example.com")
	require.NoError(t, engine.Trigger(1))

	engine.ProcessRun(context.Background(), 1)

	run, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RunStatusAborted, run.Status)
	assert.Equal(t, "renewal date has passed", run.AbortReason)
	assert.Empty(t, notifier.labels())
}

func TestProcessRunAbortsWhenSubscriptionGone(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	engine, store, source, _ := newTestEngine(clock)

	source.put(activeSub(1, 10, now.AddDate(0, 0, 10)), "owner@example.com")
	require.NoError(t, engine.Trigger(1))
	source.remove(1)

	engine.ProcessRun(context.Background(), 1)

	run, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RunStatusAborted, run.Status)
	assert.Equal(t, "subscription no longer exists", run.AbortReason)
}

func TestNotifierFailureDoesNotStopTheRun(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	engine, store, source, notifier := newTestEngine(clock)
	notifier.err = errors.New("smtp unavailable")

	// Half a day before renewal every checkpoint is already behind
	source.put(activeSub(1, 10, now.Add(12*time.Hour)), "owner@example.com")
	require.NoError(t, engine.Trigger(1))

	engine.ProcessRun(context.Background(), 1)

	run, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, run.Status)
	// Every offset was attempted and recorded despite failing delivery
	assert.Equal(t, []int{7, 5, 2, 1}, run.FiredOffsets)
}

func TestAbandonDropsRunAndSchedule(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	engine, store, source, _ := newTestEngine(clock)

	source.put(activeSub(1, 10, now.AddDate(0, 0, 10)), "owner@example.com")
	require.NoError(t, engine.Trigger(1))
	require.NoError(t, engine.Abandon(1))

	run, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, run)
	_, scheduled := store.scheduledAt(1)
	assert.False(t, scheduled)
}

func TestReconcileTriggersMissingRuns(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	engine, store, source, _ := newTestEngine(clock)

	// Inside the reminder window, no run yet
	source.put(activeSub(1, 10, now.AddDate(0, 0, 5)), "owner@example.com")
	// Outside the window, must be left alone
	source.put(activeSub(2, 11, now.AddDate(0, 0, 60)), "other@example.com")

	require.NoError(t, engine.Reconcile())

	run1, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, run1)

	run2, err := store.GetRun(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, run2)
}

func TestReconcileUsesTheEngineClockForBothBounds(t *testing.T) {
	// The sweep window is evaluated against the injected clock, far from wall
	// time here: renewals behind the clock or past the cutoff are ignored
	// even when wall time would place them inside the window.
	now := time.Date(2031, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	engine, store, source, _ := newTestEngine(clock)

	source.put(activeSub(1, 10, now.AddDate(0, 0, -2)), "owner@example.com")

	require.NoError(t, engine.Reconcile())

	run, err := store.GetRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestReconcileReindexesSuspendedRun(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	engine, store, source, _ := newTestEngine(clock)

	renewal := now.AddDate(0, 0, 5)
	source.put(activeSub(1, 10, renewal), "owner@example.com")
	require.NoError(t, engine.Trigger(1))
	engine.ProcessRun(context.Background(), 1)

	run, _ := store.GetRun(context.Background(), 1)
	require.Equal(t, RunStatusSuspended, run.Status)

	// Simulate a crash between claim and suspension persistence: the index
	// entry is gone while the run still sleeps.
	require.NoError(t, store.Unschedule(context.Background(), 1))

	require.NoError(t, engine.Reconcile())

	at, ok := store.scheduledAt(1)
	require.True(t, ok)
	assert.True(t, at.Equal(run.ResumeAt))
}
