package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RecordStatus enumerates attempt states. "not_started" is virtual: before
// the first successful start no record row exists at all.
type RecordStatus string

const (
	RecordStatusInProgress RecordStatus = "in_progress"
	RecordStatusCompleted  RecordStatus = "completed"
	RecordStatusExpired    RecordStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s RecordStatus) Terminal() bool {
	return s == RecordStatusCompleted || s == RecordStatusExpired
}

// ExamRecord is one student's run through a session's paper. At most one
// in_progress record exists per (session, user); the storage layer enforces
// this with a unique partial index.
type ExamRecord struct {
	ID            uuid.UUID    `json:"id"`
	SessionID     uuid.UUID    `json:"session_id"`
	UserID        int          `json:"user_id"`
	Status        RecordStatus `json:"status"`
	AttemptNumber int          `json:"attempt_number"`
	StartTime     time.Time    `json:"start_time"`
	// Deadline is snapshotted at start (start + session duration) so expiry
	// checks never depend on the session row changing afterwards.
	Deadline      time.Time    `json:"deadline"`
	EndTime       *time.Time   `json:"end_time,omitempty"`
	QuestionOrder []uuid.UUID  `json:"question_order"`
	Answers       []Answer     `json:"answers,omitempty"`
	Result        *ScoreResult `json:"result,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ExpiredAt reports whether the attempt deadline has passed at the given
// instant. The deadline itself is still inside the window.
func (r *ExamRecord) ExpiredAt(now time.Time) bool {
	return now.After(r.Deadline)
}

// Answer is the current response to one question within an attempt.
// UserAnswer is a JSON string or string array depending on the question
// type; it is resolved against the type once, at scoring time.
type Answer struct {
	QuestionID       uuid.UUID       `json:"question_id"`
	UserAnswer       json.RawMessage `json:"user_answer"`
	TimeSpentSeconds int             `json:"time_spent_seconds"`
	IsCorrect        *bool           `json:"is_correct,omitempty"`
	PointsAwarded    float64         `json:"points_awarded"`
}

// AnswerRequest is the payload for recording a single answer.
type AnswerRequest struct {
	QuestionID       uuid.UUID       `json:"question_id" binding:"required"`
	Answer           json.RawMessage `json:"answer" binding:"required"`
	TimeSpentSeconds int             `json:"time_spent_seconds" binding:"min=0,max=86400"`
}

// SubmitRequest is the payload for submitting an attempt.
type SubmitRequest struct {
	RecordID uuid.UUID `json:"record_id" binding:"required"`
}

// AttemptReview pairs a finished attempt's answers with the full questions,
// answer keys included. Only built when the session allows review.
type AttemptReview struct {
	RecordID  uuid.UUID    `json:"record_id"`
	Status    RecordStatus `json:"status"`
	Questions []Question   `json:"questions"`
	Answers   []Answer     `json:"answers"`
	Result    *ScoreResult `json:"result,omitempty"`
}

// AttemptProgress is the read-only projection returned by the progress
// endpoint.
type AttemptProgress struct {
	RecordID             uuid.UUID    `json:"record_id"`
	Status               RecordStatus `json:"status"`
	AnsweredCount        int          `json:"answered_count"`
	TotalQuestions       int          `json:"total_questions"`
	TimeRemainingSeconds int          `json:"time_remaining_seconds"`
}
