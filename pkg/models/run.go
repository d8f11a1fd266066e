package models

import "time"

const (
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// RunResult is what a pipeline run reports back to whoever triggered it.
type RunResult struct {
	Status     string    `json:"status"` // "success" or "error"
	Message    string    `json:"message"`
	RunID      string    `json:"run_id,omitempty"`
	Cached     int       `json:"cached"`
	Failed     []int64   `json:"failed,omitempty"` // terminal failures after the retry pass
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Run event types published while a pipeline run progresses.
const (
	EventRunStarted      = "run.started"
	EventRunRetrying     = "run.retrying"
	EventRunFinished     = "run.finished"
	EventCharacterCached = "character.cached"
	EventCharacterFailed = "character.failed"
)

type RunEvent struct {
	Type        string    `json:"type"`
	RunID       string    `json:"run_id"`
	CharacterID int64     `json:"character_id,omitempty"`
	Name        string    `json:"name,omitempty"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}
