package task

import (
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/timeutil"
)

// Bucket is a UI-facing lifecycle classification derived from a task's
// persisted status and its scheduled instant. Failed tasks are excluded
// from the five buckets and counted separately.
type Bucket string

const (
	BucketOverdue          Bucket = "overdue"
	BucketDueToday         Bucket = "due_today"
	BucketPendingFuture    Bucket = "pending_future"
	BucketSent             Bucket = "sent"
	BucketPostponedSkipped Bucket = "postponed_skipped"

	// BucketAll is a filter-only pseudo bucket; Classify never returns it.
	BucketAll Bucket = "all"
)

// Buckets lists the five real buckets in dashboard order.
var Buckets = []Bucket{
	BucketOverdue,
	BucketDueToday,
	BucketPendingFuture,
	BucketSent,
	BucketPostponedSkipped,
}

// IsValid reports whether b is a selectable bucket (including "all").
func (b Bucket) IsValid() bool {
	switch b {
	case BucketOverdue, BucketDueToday, BucketPendingFuture, BucketSent, BucketPostponedSkipped, BucketAll:
		return true
	}
	return false
}

// Classify maps (status, scheduled_for, now) to a bucket. Pure and
// total over the five non-failed statuses; failed returns ok=false.
//
// Day boundaries are UTC throughout: a pending task is overdue when
// scheduled strictly before today's 00:00:00.000Z, due today when
// within [00:00:00.000Z, 23:59:59.999Z] inclusive, and pending-future
// otherwise. Both boundary instants classify as due_today.
func Classify(status Status, scheduledFor, now time.Time) (Bucket, bool) {
	switch status {
	case StatusSent:
		return BucketSent, true
	case StatusSnoozed, StatusSkipped:
		return BucketPostponedSkipped, true
	case StatusPending:
		start, end := timeutil.DayBounds(now)
		sched := scheduledFor.UTC()
		switch {
		case sched.Before(start):
			return BucketOverdue, true
		case !sched.After(end):
			return BucketDueToday, true
		default:
			return BucketPendingFuture, true
		}
	default:
		return "", false
	}
}

// ClassifyTask classifies a task entity against now.
func ClassifyTask(t *Task, now time.Time) (Bucket, bool) {
	return Classify(t.Status, t.ScheduledFor, now)
}

// Counts holds the per-bucket totals for dashboard badges. Failed is
// tracked alongside but is not one of the five buckets.
type Counts struct {
	Overdue          int `json:"overdue"`
	DueToday         int `json:"due_today"`
	PendingFuture    int `json:"pending_future"`
	Sent             int `json:"sent"`
	PostponedSkipped int `json:"postponed_skipped"`
	Failed           int `json:"failed"`
	Total            int `json:"total"`
}

// Add classifies one task into the counts.
func (c *Counts) Add(t *Task, now time.Time) {
	c.Total++
	bucket, ok := ClassifyTask(t, now)
	if !ok {
		c.Failed++
		return
	}
	switch bucket {
	case BucketOverdue:
		c.Overdue++
	case BucketDueToday:
		c.DueToday++
	case BucketPendingFuture:
		c.PendingFuture++
	case BucketSent:
		c.Sent++
	case BucketPostponedSkipped:
		c.PostponedSkipped++
	}
}

// Of returns the count for one bucket.
func (c *Counts) Of(b Bucket) int {
	switch b {
	case BucketOverdue:
		return c.Overdue
	case BucketDueToday:
		return c.DueToday
	case BucketPendingFuture:
		return c.PendingFuture
	case BucketSent:
		return c.Sent
	case BucketPostponedSkipped:
		return c.PostponedSkipped
	case BucketAll:
		return c.Total - c.Failed
	}
	return 0
}

// Consistent verifies the aggregator invariant: the five bucket counts
// plus failed must account for every task seen.
func (c *Counts) Consistent() bool {
	return c.Overdue+c.DueToday+c.PendingFuture+c.Sent+c.PostponedSkipped+c.Failed == c.Total
}

// CountBuckets recomputes per-bucket totals over a task slice. The
// dashboard recomputes on every refresh; there is no incremental path.
func CountBuckets(tasks []*Task, now time.Time) Counts {
	var c Counts
	for _, t := range tasks {
		c.Add(t, now)
	}
	return c
}
