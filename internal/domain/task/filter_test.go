package task

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/timeutil"
)

func TestToPredicate_BucketMapping(t *testing.T) {
	now := timeutil.DateTime(2025, 3, 10, 14, 30, 0)
	start, end := timeutil.DayBounds(now)

	tests := []struct {
		bucket       Bucket
		wantStatuses []Status
		wantFrom     string
		wantTo       string
	}{
		{BucketOverdue, []Status{StatusPending}, "", "2025-03-10T14:30:00.000Z"},
		{BucketDueToday, []Status{StatusPending}, "2025-03-10T00:00:00.000Z", "2025-03-10T23:59:59.999Z"},
		{BucketPendingFuture, []Status{StatusPending}, "2025-03-10T14:30:00.000Z", ""},
		{BucketSent, []Status{StatusSent}, "", ""},
		{BucketPostponedSkipped, []Status{StatusSnoozed, StatusSkipped}, "", ""},
		{BucketAll, nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.bucket), func(t *testing.T) {
			p := Filter{Bucket: tt.bucket}.ToPredicate("org-1", now)

			assert.Equal(t, "org-1", p.OrgID)
			assert.Equal(t, tt.wantStatuses, p.Statuses)
			if tt.wantFrom == "" {
				assert.True(t, p.ScheduledFrom.IsZero())
			} else {
				assert.Equal(t, tt.wantFrom, timeutil.FormatStampUTC(p.ScheduledFrom))
			}
			if tt.wantTo == "" {
				assert.True(t, p.ScheduledTo.IsZero())
			} else {
				assert.Equal(t, tt.wantTo, timeutil.FormatStampUTC(p.ScheduledTo))
			}
		})
	}

	p := Filter{Bucket: BucketDueToday}.ToPredicate("org-1", now)
	assert.Equal(t, start, p.ScheduledFrom)
	assert.Equal(t, end, p.ScheduledTo)
}

func TestToPredicate_FacetsCarried(t *testing.T) {
	now := timeutil.DateTime(2025, 3, 10, 14, 30, 0)
	f := Filter{
		Bucket:       BucketSent,
		Anchor:       "first_workout",
		TemplateCode: "welcome_v2",
		Channel:      ChannelWhatsApp,
		Text:         "ana",
		CreatedFrom:  timeutil.Date(2025, 3, 1),
		CreatedTo:    timeutil.EndOfDay(timeutil.Date(2025, 3, 10)),
	}

	p := f.ToPredicate("org-1", now)

	assert.Equal(t, "first_workout", p.Anchor)
	assert.Equal(t, "welcome_v2", p.TemplateCode)
	assert.Equal(t, ChannelWhatsApp, p.Channel)
	assert.Equal(t, "ana", p.Text)
	assert.Equal(t, timeutil.Date(2025, 3, 1), p.CreatedFrom)
	assert.False(t, p.HasScheduledRange())
}

func TestToPredicate_TodayOverridesBucketRange(t *testing.T) {
	now := timeutil.DateTime(2025, 3, 10, 14, 30, 0)
	start, end := timeutil.DayBounds(now)

	// Quick action pins the scheduled range to today even when the
	// bucket would leave it open-ended.
	p := Filter{Bucket: BucketOverdue, Today: true}.ToPredicate("org-1", now)

	assert.Equal(t, []Status{StatusPending}, p.Statuses)
	assert.Equal(t, start, p.ScheduledFrom)
	assert.Equal(t, end, p.ScheduledTo)
}
