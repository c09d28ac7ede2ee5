// Package status defines the sync service's observable state.
package status

import "time"

// Phase represents the current phase of the sync control service
type Phase string

const (
	// PhaseStopped means the service is not scheduled and performs no work
	PhaseStopped Phase = "Stopped"

	// PhaseRunning means ticks are scheduled and perform real work
	PhaseRunning Phase = "Running"

	// PhasePaused means ticks keep firing but only update the heartbeat
	PhasePaused Phase = "Paused"
)

// RecentErrorsCap bounds the recent error log kept in SyncState; the oldest
// entries are evicted first.
const RecentErrorsCap = 20

// SyncState is the snapshot of the sync service published after every state
// change. Readers receive copies and must never mutate shared state.
type SyncState struct {
	// Phase is the current control phase
	Phase Phase `json:"phase"`

	// LastSyncAt is the completion time of the most recent tick (or paused
	// heartbeat); nil until the first tick completes
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`

	// NextSyncAt is the next scheduled tick time; nil when stopped
	NextSyncAt *time.Time `json:"nextSyncAt,omitempty"`

	// FilesSynced counts record sets mirrored successfully since start
	FilesSynced int `json:"filesSynced"`

	// ErrorCount counts adapter and persistence failures since start
	ErrorCount int `json:"errorCount"`

	// RecentErrors holds the most recent error messages, newest last,
	// capped at RecentErrorsCap
	RecentErrors []string `json:"recentErrors,omitempty"`

	// Source is the configured source folder
	Source string `json:"source,omitempty"`

	// Destination describes the configured mirror destination; empty when
	// the service is unconfigured
	Destination string `json:"destination,omitempty"`
}

// Clone returns a deep copy of the state, safe to hand to readers.
func (s *SyncState) Clone() *SyncState {
	if s == nil {
		return nil
	}
	c := *s
	if s.RecentErrors != nil {
		c.RecentErrors = append([]string(nil), s.RecentErrors...)
	}
	return &c
}

// PushError appends an error message, evicting the oldest past the cap.
func (s *SyncState) PushError(msg string) {
	s.ErrorCount++
	s.RecentErrors = append(s.RecentErrors, msg)
	if len(s.RecentErrors) > RecentErrorsCap {
		s.RecentErrors = s.RecentErrors[len(s.RecentErrors)-RecentErrorsCap:]
	}
}
