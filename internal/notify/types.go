// Package notify implements the outbound notification queue engine: typed
// notification records are admitted through per-kind throttle policies into
// a durable pending queue that an external delivery agent drains.
package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Kind is the category of an outbound notification.
type Kind string

const (
	// KindDailyReminder prompts staff to submit their daily attendance.
	KindDailyReminder Kind = "DailyReminder"

	// KindManagerSummary is the periodic roll-up sent to managers.
	KindManagerSummary Kind = "ManagerSummary"

	// KindMismatchAlert flags a discrepancy between submitted and recorded attendance.
	KindMismatchAlert Kind = "MismatchAlert"

	// KindLateSubmission nags about attendance submitted past the cutoff.
	KindLateSubmission Kind = "LateSubmission"

	// KindHolidayReminder announces upcoming holidays.
	KindHolidayReminder Kind = "HolidayReminder"

	// KindSystemAlert carries operational alerts about the service itself.
	KindSystemAlert Kind = "SystemAlert"
)

// Kinds lists every known notification kind.
func Kinds() []Kind {
	return []Kind{
		KindDailyReminder,
		KindManagerSummary,
		KindMismatchAlert,
		KindLateSubmission,
		KindHolidayReminder,
		KindSystemAlert,
	}
}

// ParseKind converts a string into a Kind, validating it against the known set.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown notification kind %q", s)
}

// Priority orders queue items for the delivery agent.
type Priority string

const (
	// PriorityHigh items are drained first.
	PriorityHigh Priority = "High"

	// PriorityMedium is the default priority.
	PriorityMedium Priority = "Medium"

	// PriorityLow items are drained last.
	PriorityLow Priority = "Low"
)

// rank maps priorities to sort order, highest first.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Record is a candidate notification produced by the record source.
// Records are immutable once read into a sync cycle.
type Record struct {
	RecipientID    string   `json:"recipient_id"`
	ContactAddress string   `json:"contact_address"`
	Message        string   `json:"message"`
	Kind           Kind     `json:"kind"`
	Priority       Priority `json:"priority"`
}

// ItemKey returns the stable identity of the record: the hex sha256 over
// recipient, kind and message. Two live queue items never share a key.
func (r Record) ItemKey() string {
	h := sha256.New()
	h.Write([]byte(r.RecipientID))
	h.Write([]byte{0x1f})
	h.Write([]byte(r.Kind))
	h.Write([]byte{0x1f})
	h.Write([]byte(r.Message))
	return hex.EncodeToString(h.Sum(nil))
}

// QueueItem is a record admitted into the pending queue. The external
// delivery agent is the only writer of Acknowledged; once it reads true the
// engine removes the item on the next refresh.
type QueueItem struct {
	ID             string    `json:"id"`
	ItemKey        string    `json:"item_key"`
	RecipientID    string    `json:"recipient_id"`
	ContactAddress string    `json:"contact_address"`
	Message        string    `json:"message"`
	Kind           Kind      `json:"kind"`
	Priority       Priority  `json:"priority"`
	Acknowledged   bool      `json:"acknowledged"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// Less orders queue items for delivery: priority first, then FIFO.
func (q QueueItem) Less(other QueueItem) bool {
	if q.Priority.rank() != other.Priority.rank() {
		return q.Priority.rank() < other.Priority.rank()
	}
	return q.EnqueuedAt.Before(other.EnqueuedAt)
}

// ThrottleEntry is the persisted throttle state for one (kind, recipient)
// pair. SentCountToday resets when DayBucket advances past local midnight;
// LastSentAt is strictly non-decreasing per entry.
type ThrottleEntry struct {
	Kind           Kind      `json:"kind"`
	RecipientID    string    `json:"recipient_id"`
	LastSentAt     time.Time `json:"last_sent_at"`
	SentCountToday int       `json:"sent_count_today"`
	DayBucket      string    `json:"day_bucket"`
}

// ThrottleKey identifies a ThrottleEntry.
type ThrottleKey struct {
	Kind        Kind
	RecipientID string
}

// Key returns the entry's map key.
func (e ThrottleEntry) Key() ThrottleKey {
	return ThrottleKey{Kind: e.Kind, RecipientID: e.RecipientID}
}

// DayBucketFor formats the local-time calendar date used for daily caps.
func DayBucketFor(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
