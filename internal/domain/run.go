package domain

import "time"

// RunStatus represents the processing state of one engine tick.
type RunStatus string

const (
	RunStatusRunning        RunStatus = "RUNNING"
	RunStatusCompleted      RunStatus = "COMPLETED"
	RunStatusPartialFailure RunStatus = "PARTIAL_FAILURE"
)

func (s RunStatus) String() string { return string(s) }

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusPartialFailure:
		return true
	}
	return false
}

// EscalationRun summarizes one periodic tick for operators.
type EscalationRun struct {
	ID         string
	Status     RunStatus
	Scanned    int
	Fired      int
	Skipped    int
	Failed     int
	StartedAt  time.Time
	FinishedAt *time.Time
}
