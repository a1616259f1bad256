package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstants(t *testing.T) {
	assert.Equal(t, "reminder:", RunKeyPrefix)
	assert.Equal(t, "reminder_schedule", ScheduleKey)
	assert.Equal(t, 24*time.Hour, TerminalRunTTL)
	assert.Equal(t, []int{7, 5, 2, 1}, DefaultOffsets)
}

func TestRunStatusTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   RunStatus
		terminal bool
	}{
		{"Pending", RunStatusPending, false},
		{"Suspended", RunStatusSuspended, false},
		{"Completed", RunStatusCompleted, true},
		{"Aborted", RunStatusAborted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestRunTransitions(t *testing.T) {
	run := &Run{
		ID:             "test-run",
		SubscriptionID: 1,
		Offsets:        DefaultOffsets,
		Status:         RunStatusPending,
	}

	until := time.Now().AddDate(0, 0, 3)
	run.MarkSuspended(until)
	assert.Equal(t, RunStatusSuspended, run.Status)
	assert.True(t, run.ResumeAt.Equal(until))

	run.MarkFired(7)
	run.MarkFired(5)
	assert.Equal(t, 2, run.NextIndex)
	assert.Equal(t, []int{7, 5}, run.FiredOffsets)

	run.MarkCompleted()
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.NotNil(t, run.CompletedAt)
}

func TestRunMarkAborted(t *testing.T) {
	run := &Run{ID: "test-run", SubscriptionID: 1, Status: RunStatusSuspended}
	run.MarkAborted("renewal date has passed")
	assert.Equal(t, RunStatusAborted, run.Status)
	assert.Equal(t, "renewal date has passed", run.AbortReason)
	assert.NotNil(t, run.CompletedAt)
}

func TestOffsetsFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []int
	}{
		{"Unset falls back to defaults", "", []int{7, 5, 2, 1}},
		{"Custom offsets", "14,3", []int{14, 3}},
		{"Unsorted input is normalized descending", "1,7,2", []int{7, 2, 1}},
		{"Duplicates are dropped", "5,5,2", []int{5, 2}},
		{"Garbage falls back to defaults", "abc,-1,0", []int{7, 5, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REMINDER_OFFSETS", tt.raw)
			assert.Equal(t, tt.expected, offsetsFromEnv())
		})
	}
}
