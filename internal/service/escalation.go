package service

import (
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
)

// NextState builds the bookkeeping patch for a fired candidate. It is applied
// only after the handler and emitter succeed, so a failed delivery leaves the
// threshold eligible for the next tick.
func NextState(cand Candidate, now time.Time) domain.EngineState {
	state := cand.Item.State.Clone()

	if cand.StartingNow {
		// One-shot flag, independent of the escalation counter.
		state.StartingNotified = true
		return state
	}

	state.EscalationLevel++
	firedAt := now
	state.LastEscalationAt = &firedAt

	if cand.Threshold == domain.ThresholdOverdue {
		// Rolling window: the next deadline opens from the fire time.
		due := now.Add(time.Duration(SLAHours(&cand.Item)) * time.Hour)
		state.DueAt = &due
		return state
	}

	if state.RemindersSent == nil {
		state.RemindersSent = make(map[domain.Threshold]bool, 3)
	}
	state.RemindersSent[cand.Threshold] = true

	return state
}
