package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnswerPersistItem is the write-behind payload for one answer save. The
// Redis ledger stays authoritative while the attempt runs; this item lets a
// background worker mirror the save into Postgres.
type AnswerPersistItem struct {
	RecordID         uuid.UUID       `json:"record_id"`
	QuestionID       uuid.UUID       `json:"question_id"`
	UserAnswer       json.RawMessage `json:"user_answer"`
	TimeSpentSeconds int             `json:"time_spent_seconds"`
}

// SessionStatsItem asks the stats worker to fold one finished attempt into
// the session aggregate row.
type SessionStatsItem struct {
	SessionID uuid.UUID `json:"session_id"`
	RecordID  uuid.UUID `json:"record_id"`
	Score     float64   `json:"score"`
	IsPassed  bool      `json:"is_passed"`
	Expired   bool      `json:"expired"`
}

// Monitor event names pushed to the author live-monitor channel.
const (
	EventAttemptStarted   = "attempt_started"
	EventAnswerSaved      = "answer_saved"
	EventAttemptSubmitted = "attempt_submitted"
	EventAttemptExpired   = "attempt_expired"
)

// MonitorEvent is one live-monitor message for a session. QuestionID and
// Score are only set for the events they belong to.
type MonitorEvent struct {
	Event         string     `json:"event"`
	SessionID     uuid.UUID  `json:"session_id"`
	RecordID      uuid.UUID  `json:"record_id"`
	UserID        int        `json:"user_id"`
	QuestionID    *uuid.UUID `json:"question_id,omitempty"`
	AnsweredCount int        `json:"answered_count"`
	Score         *float64   `json:"score,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}
