package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates the authoring lifecycle of an exam session.
type SessionStatus string

const (
	SessionStatusDraft     SessionStatus = "draft"
	SessionStatusPublished SessionStatus = "published"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusArchived  SessionStatus = "archived"
)

// SessionMode distinguishes fixed-window sessions from open availability ones.
type SessionMode string

const (
	// SessionModeScheduled uses a fixed start/end window shared by all takers.
	SessionModeScheduled SessionMode = "scheduled"
	// SessionModeOnDemand opens an availability window; each taker gets the
	// full duration from their own start.
	SessionModeOnDemand SessionMode = "on_demand"
)

// SessionSettings are author-configured attempt rules, stored as JSONB.
type SessionSettings struct {
	ShuffleQuestions bool    `json:"shuffle_questions"`
	AllowReview      bool    `json:"allow_review"`
	ShowResults      bool    `json:"show_results"`
	PassingScore     float64 `json:"passing_score"`
}

// ExamSession is the authoring-time configuration of one runnable exam.
// The attempt engine only ever reads it; all mutation belongs to the
// authoring subsystem.
type ExamSession struct {
	ID              uuid.UUID       `json:"id"`
	PaperID         uuid.UUID       `json:"paper_id"`
	Title           string          `json:"title"`
	Mode            SessionMode     `json:"mode"`
	StartTime       *time.Time      `json:"start_time,omitempty"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	AvailableFrom   *time.Time      `json:"available_from,omitempty"`
	AvailableUntil  *time.Time      `json:"available_until,omitempty"`
	DurationMinutes int             `json:"duration_minutes"`
	MaxAttempts     int             `json:"max_attempts"`
	Status          SessionStatus   `json:"status"`
	Settings        SessionSettings `json:"settings"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SessionJoinInfo is what a student sees before starting: the session
// metadata plus their own attempt standing. It never carries questions.
type SessionJoinInfo struct {
	Session        *ExamSession `json:"session"`
	TotalQuestions int          `json:"total_questions"`
	AttemptsUsed   int          `json:"attempts_used"`
	MaxAttempts    int          `json:"max_attempts"`
	ActiveRecordID *uuid.UUID   `json:"active_record_id,omitempty"`
}

// Duration returns the per-attempt time limit.
func (s *ExamSession) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
