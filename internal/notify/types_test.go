package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	for _, kind := range Kinds() {
		parsed, err := ParseKind(string(kind))
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}

	_, err := ParseKind("NotAKind")
	assert.Error(t, err)
}

func TestItemKey_Stable(t *testing.T) {
	t.Parallel()

	a := Record{RecipientID: "emp-001", Kind: KindDailyReminder, Message: "submit attendance"}
	b := Record{RecipientID: "emp-001", Kind: KindDailyReminder, Message: "submit attendance"}

	// Contact address and priority do not contribute to identity.
	b.ContactAddress = "other@example.com"
	b.Priority = PriorityHigh

	assert.Equal(t, a.ItemKey(), b.ItemKey())
	assert.Len(t, a.ItemKey(), 64)
}

func TestItemKey_DistinguishesFields(t *testing.T) {
	t.Parallel()

	base := Record{RecipientID: "emp-001", Kind: KindDailyReminder, Message: "hello"}

	changedRecipient := base
	changedRecipient.RecipientID = "emp-002"
	changedKind := base
	changedKind.Kind = KindSystemAlert
	changedMessage := base
	changedMessage.Message = "hello!"

	assert.NotEqual(t, base.ItemKey(), changedRecipient.ItemKey())
	assert.NotEqual(t, base.ItemKey(), changedKind.ItemKey())
	assert.NotEqual(t, base.ItemKey(), changedMessage.ItemKey())

	// The field separator prevents ambiguous concatenations.
	shifted := Record{RecipientID: "emp-0011", Kind: KindDailyReminder, Message: "ello"}
	merged := Record{RecipientID: "emp-001", Kind: Kind("1DailyReminder"), Message: "ello"}
	assert.NotEqual(t, shifted.ItemKey(), merged.ItemKey())
}

func TestQueueItem_Less(t *testing.T) {
	t.Parallel()

	earlier := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Minute)

	tests := []struct {
		name string
		a    QueueItem
		b    QueueItem
		want bool
	}{
		{
			name: "high beats medium",
			a:    QueueItem{Priority: PriorityHigh, EnqueuedAt: later},
			b:    QueueItem{Priority: PriorityMedium, EnqueuedAt: earlier},
			want: true,
		},
		{
			name: "medium beats low",
			a:    QueueItem{Priority: PriorityMedium, EnqueuedAt: later},
			b:    QueueItem{Priority: PriorityLow, EnqueuedAt: earlier},
			want: true,
		},
		{
			name: "same priority is FIFO",
			a:    QueueItem{Priority: PriorityMedium, EnqueuedAt: earlier},
			b:    QueueItem{Priority: PriorityMedium, EnqueuedAt: later},
			want: true,
		},
		{
			name: "same priority later loses",
			a:    QueueItem{Priority: PriorityMedium, EnqueuedAt: later},
			b:    QueueItem{Priority: PriorityMedium, EnqueuedAt: earlier},
			want: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.a.Less(tt.b))
		})
	}
}

func TestDayBucketFor(t *testing.T) {
	t.Parallel()

	beforeMidnight := time.Date(2026, 3, 10, 23, 59, 0, 0, time.Local)
	afterMidnight := time.Date(2026, 3, 11, 0, 1, 0, 0, time.Local)

	assert.Equal(t, "2026-03-10", DayBucketFor(beforeMidnight))
	assert.Equal(t, "2026-03-11", DayBucketFor(afterMidnight))
}
