package models

import (
	"fmt"
	"time"
)

// RunRecord is the persisted form of a terminal job run, stored in Badger
// for the run-history API.
type RunRecord struct {
	ID         string `badgerhold:"key"`
	Kind       string `badgerholdIndex:"Kind"`
	State      string
	Progress   int
	Processed  int
	Total      int
	LastError  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewRunRecord snapshots a terminal run into its persisted form.
func NewRunRecord(run JobRun) *RunRecord {
	record := &RunRecord{
		ID:        run.ID,
		Kind:      string(run.Kind),
		State:     string(run.State),
		Progress:  run.Progress,
		Processed: run.Processed,
		Total:     run.Total,
		LastError: run.LastError,
		StartedAt: run.StartedAt,
	}
	if run.FinishedAt != nil {
		record.FinishedAt = *run.FinishedAt
	}
	return record
}

// Notification is one terminal-state report delivered to the notification
// sink, at most once per run.
type Notification struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Kind      JobKind   `json:"kind"`
	State     JobState  `json:"state"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationFromRun builds the terminal notification for a finished run.
func NotificationFromRun(run JobRun) Notification {
	message := fmt.Sprintf("%s %s", run.Kind, run.State)
	if run.LastError != "" {
		message = fmt.Sprintf("%s: %s", message, run.LastError)
	}
	return Notification{
		ID:        run.ID,
		RunID:     run.ID,
		Kind:      run.Kind,
		State:     run.State,
		Message:   message,
		Timestamp: time.Now(),
	}
}
