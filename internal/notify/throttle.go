package notify

import (
	"fmt"
	"time"
)

// Policy is the throttle configuration for a single notification kind.
type Policy struct {
	// MinInterval is the minimum time between sends to the same recipient.
	MinInterval time.Duration

	// MaxPerDay caps sends to the same recipient within one local calendar day.
	MaxPerDay int
}

// PolicyTable maps each notification kind to its throttle policy.
type PolicyTable map[Kind]Policy

// DefaultPolicyTable returns the built-in throttle table. Configuration may
// override individual kinds; kinds absent from the table are never admitted.
func DefaultPolicyTable() PolicyTable {
	return PolicyTable{
		KindDailyReminder:   {MinInterval: 3 * time.Hour, MaxPerDay: 3},
		KindManagerSummary:  {MinInterval: 6 * time.Hour, MaxPerDay: 2},
		KindMismatchAlert:   {MinInterval: 1 * time.Hour, MaxPerDay: 6},
		KindLateSubmission:  {MinInterval: 2 * time.Hour, MaxPerDay: 4},
		KindHolidayReminder: {MinInterval: 12 * time.Hour, MaxPerDay: 1},
		KindSystemAlert:     {MinInterval: 30 * time.Minute, MaxPerDay: 10},
	}
}

// Validate checks the table for nonsensical policies.
func (t PolicyTable) Validate() error {
	for kind, p := range t {
		if _, err := ParseKind(string(kind)); err != nil {
			return err
		}
		if p.MinInterval <= 0 {
			return fmt.Errorf("throttle policy for %s: minInterval must be positive", kind)
		}
		if p.MaxPerDay <= 0 {
			return fmt.Errorf("throttle policy for %s: maxPerDay must be positive", kind)
		}
	}
	return nil
}

// Admissible reports whether a record may be enqueued now given its throttle
// entry. A nil entry means the recipient has never been sent this kind.
func (t PolicyTable) Admissible(rec Record, entry *ThrottleEntry, now time.Time) bool {
	policy, ok := t[rec.Kind]
	if !ok {
		return false
	}

	if entry == nil {
		return true
	}

	if now.Sub(entry.LastSentAt) < policy.MinInterval {
		return false
	}

	// A day-bucket roll resets the daily count, so only the current bucket's
	// count can veto admission.
	if entry.DayBucket == DayBucketFor(now) && entry.SentCountToday >= policy.MaxPerDay {
		return false
	}

	return true
}

// RecordSend advances an entry after a successful admission, rolling the day
// bucket when the calendar date has changed. entry may be nil for first sends.
func RecordSend(entry *ThrottleEntry, rec Record, now time.Time) ThrottleEntry {
	bucket := DayBucketFor(now)

	if entry == nil {
		return ThrottleEntry{
			Kind:           rec.Kind,
			RecipientID:    rec.RecipientID,
			LastSentAt:     now,
			SentCountToday: 1,
			DayBucket:      bucket,
		}
	}

	updated := *entry
	if updated.DayBucket != bucket {
		updated.DayBucket = bucket
		updated.SentCountToday = 0
	}
	updated.SentCountToday++
	// LastSentAt never regresses even if now is behind the stored value
	// (clock skew between restarts).
	if now.After(updated.LastSentAt) {
		updated.LastSentAt = now
	}
	return updated
}
