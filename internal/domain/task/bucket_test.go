package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/timeutil"
)

func TestClassify_Pending(t *testing.T) {
	now := timeutil.DateTime(2025, 3, 10, 9, 0, 0)

	tests := []struct {
		name      string
		scheduled time.Time
		want      Bucket
	}{
		{"yesterday morning", timeutil.DateTime(2025, 3, 9, 10, 0, 0), BucketOverdue},
		{"just before midnight yesterday", timeutil.DateTime(2025, 3, 9, 23, 59, 59), BucketOverdue},
		{"start of today", timeutil.StartOfDay(now), BucketDueToday},
		{"later today", timeutil.DateTime(2025, 3, 10, 18, 30, 0), BucketDueToday},
		{"end of today", timeutil.EndOfDay(now), BucketDueToday},
		{"tomorrow midnight", timeutil.Date(2025, 3, 11), BucketPendingFuture},
		{"next week", timeutil.Date(2025, 3, 17), BucketPendingFuture},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(StatusPending, tt.scheduled, now)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_StatusDominatesSchedule(t *testing.T) {
	now := timeutil.DateTime(2025, 3, 10, 9, 0, 0)
	past := timeutil.Date(2025, 1, 1)

	got, ok := Classify(StatusSent, past, now)
	require.True(t, ok)
	assert.Equal(t, BucketSent, got)

	got, ok = Classify(StatusSnoozed, past, now)
	require.True(t, ok)
	assert.Equal(t, BucketPostponedSkipped, got)

	got, ok = Classify(StatusSkipped, past, now)
	require.True(t, ok)
	assert.Equal(t, BucketPostponedSkipped, got)
}

func TestClassify_FailedExcluded(t *testing.T) {
	_, ok := Classify(StatusFailed, timeutil.Now(), timeutil.Now())
	assert.False(t, ok)
}

func TestClassify_NonUTCInput(t *testing.T) {
	// 2025-03-10 21:00 in UTC-5 is 2025-03-11 02:00 UTC: next day.
	loc := time.FixedZone("UTC-5", -5*3600)
	now := timeutil.DateTime(2025, 3, 10, 9, 0, 0)
	sched := time.Date(2025, 3, 10, 21, 0, 0, 0, loc)

	got, ok := Classify(StatusPending, sched, now)
	require.True(t, ok)
	assert.Equal(t, BucketPendingFuture, got)
}

func TestClassify_Deterministic(t *testing.T) {
	now := timeutil.DateTime(2025, 3, 10, 9, 0, 0)
	sched := timeutil.DateTime(2025, 3, 9, 10, 0, 0)

	first, _ := Classify(StatusPending, sched, now)
	for i := 0; i < 10; i++ {
		again, _ := Classify(StatusPending, sched, now)
		assert.Equal(t, first, again)
	}
}

func TestCountBuckets(t *testing.T) {
	now := timeutil.DateTime(2025, 3, 10, 12, 0, 0)
	tasks := []*Task{
		{Status: StatusPending, ScheduledFor: timeutil.Date(2025, 3, 8)},  // overdue
		{Status: StatusPending, ScheduledFor: timeutil.Date(2025, 3, 9)},  // overdue
		{Status: StatusPending, ScheduledFor: timeutil.DateTime(2025, 3, 10, 15, 0, 0)}, // due today
		{Status: StatusPending, ScheduledFor: timeutil.Date(2025, 3, 12)}, // pending future
		{Status: StatusSent, ScheduledFor: timeutil.Date(2025, 3, 9)},
		{Status: StatusSnoozed, ScheduledFor: timeutil.Date(2025, 3, 11)},
		{Status: StatusSkipped, ScheduledFor: timeutil.Date(2025, 3, 9)},
		{Status: StatusFailed, ScheduledFor: timeutil.Date(2025, 3, 9)},
	}

	c := CountBuckets(tasks, now)

	assert.Equal(t, 2, c.Overdue)
	assert.Equal(t, 1, c.DueToday)
	assert.Equal(t, 1, c.PendingFuture)
	assert.Equal(t, 1, c.Sent)
	assert.Equal(t, 2, c.PostponedSkipped)
	assert.Equal(t, 1, c.Failed)
	assert.Equal(t, 8, c.Total)
	assert.True(t, c.Consistent())
	assert.Equal(t, 7, c.Of(BucketAll))
}

func TestCountBuckets_Empty(t *testing.T) {
	c := CountBuckets(nil, timeutil.Now())
	assert.True(t, c.Consistent())
	assert.Equal(t, 0, c.Total)
}
