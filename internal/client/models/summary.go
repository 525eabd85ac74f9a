package models

import (
	"fmt"
	"time"
)

// SyncStatus is the terminal status of a sync pass.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncPartial SyncStatus = "partial"
)

// Summary reports the outcome of one sync pass.
type Summary struct {
	Status     SyncStatus `json:"status"`
	Synced     int        `json:"synced"`
	Errored    int        `json:"errored"`
	Skipped    int        `json:"skipped"`
	Total      int        `json:"total"`
	Collected  int        `json:"collected"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Finish sets the terminal status from the counters.
func (s *Summary) Finish(at time.Time) {
	s.FinishedAt = at
	if s.Errored == 0 && s.Skipped == 0 {
		s.Status = SyncSuccess
	} else {
		s.Status = SyncPartial
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %d synced, %d errored, %d skipped of %d",
		s.Status, s.Synced, s.Errored, s.Skipped, s.Total)
}
