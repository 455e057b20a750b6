package model

import "time"

const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
)

// PhaseRecord is one finished focus or break phase.
type PhaseRecord struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Phase          string    `json:"phase"`
	PlannedSeconds int       `json:"plannedSeconds"`
	Outcome        string    `json:"outcome"`
	CycleNumber    int       `json:"cycleNumber"`
	TaskID         *string   `json:"taskId,omitempty"`
	EndedAt        time.Time `json:"endedAt"`
}
