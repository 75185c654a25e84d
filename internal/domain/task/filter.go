package task

import (
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/timeutil"
)

// Filter is the caller-supplied facet set for task list queries. All
// fields are optional; zero values mean "no constraint". The caller
// owns filter persistence (the UI keeps its own copy); nothing here is
// stored server-side.
type Filter struct {
	Bucket       Bucket
	Anchor       string
	TemplateCode string
	Channel      Channel
	Text         string
	CreatedFrom  time.Time
	CreatedTo    time.Time

	// Today forces the scheduled range to the current UTC day,
	// independent of bucket selection (the dashboard quick action).
	Today bool
}

// Predicate is the store-facing query shape a Filter translates to.
// Statuses with more than one entry are ORed; everything else is ANDed.
type Predicate struct {
	OrgID         string
	Statuses      []Status
	ScheduledFrom time.Time
	ScheduledTo   time.Time
	Anchor        string
	TemplateCode  string
	Channel       Channel
	Text          string
	CreatedFrom   time.Time
	CreatedTo     time.Time
}

// ToPredicate translates a bucket selection plus facets into the
// predicate the entity store understands, evaluated against now.
//
// Bucket mapping:
//
//	overdue           -> status=pending, scheduled_for < now
//	due_today         -> status=pending, scheduled_for in [start, end] of today
//	pending_future    -> status=pending, scheduled_for > now
//	sent              -> status=sent
//	postponed_skipped -> status in (snoozed, skipped)
//	all               -> no status constraint
func (f Filter) ToPredicate(orgID string, now time.Time) Predicate {
	p := Predicate{
		OrgID:        orgID,
		Anchor:       f.Anchor,
		TemplateCode: f.TemplateCode,
		Channel:      f.Channel,
		Text:         f.Text,
		CreatedFrom:  f.CreatedFrom,
		CreatedTo:    f.CreatedTo,
	}

	nowUTC := now.UTC()
	switch f.Bucket {
	case BucketOverdue:
		p.Statuses = []Status{StatusPending}
		p.ScheduledTo = nowUTC
	case BucketDueToday:
		p.Statuses = []Status{StatusPending}
		p.ScheduledFrom, p.ScheduledTo = timeutil.DayBounds(nowUTC)
	case BucketPendingFuture:
		p.Statuses = []Status{StatusPending}
		p.ScheduledFrom = nowUTC
	case BucketSent:
		p.Statuses = []Status{StatusSent}
	case BucketPostponedSkipped:
		p.Statuses = []Status{StatusSnoozed, StatusSkipped}
	}

	if f.Today {
		p.ScheduledFrom, p.ScheduledTo = timeutil.DayBounds(nowUTC)
	}
	return p
}

// HasScheduledRange reports whether the predicate constrains
// scheduled_for at all.
func (p Predicate) HasScheduledRange() bool {
	return !p.ScheduledFrom.IsZero() || !p.ScheduledTo.IsZero()
}
