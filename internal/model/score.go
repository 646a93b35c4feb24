package model

import (
	"github.com/google/uuid"
)

// QuestionTiming names the question behind a timing statistic.
type QuestionTiming struct {
	QuestionID       uuid.UUID `json:"question_id"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
}

// QuestionScore is the graded outcome for one question.
type QuestionScore struct {
	QuestionID       uuid.UUID `json:"question_id"`
	Answered         bool      `json:"answered"`
	IsCorrect        bool      `json:"is_correct"`
	PointsAwarded    float64   `json:"points_awarded"`
	PointsPossible   float64   `json:"points_possible"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
}

// ScoreResult is the full grading outcome of one attempt. Computed exactly
// once when the attempt leaves in_progress and stored on the record; repeat
// submits return the stored value.
type ScoreResult struct {
	RecordID          uuid.UUID       `json:"record_id"`
	SessionID         uuid.UUID       `json:"session_id"`
	Score             float64         `json:"score"`
	TotalPoints       float64         `json:"total_points"`
	CorrectCount      int             `json:"correct_count"`
	TotalQuestions    int             `json:"total_questions"`
	AnsweredQuestions int             `json:"answered_questions"`
	SkippedQuestions  int             `json:"skipped_questions"`
	Accuracy          float64         `json:"accuracy"`
	Grade             string          `json:"grade"`
	IsPassed          bool            `json:"is_passed"`
	TimeUsedSeconds   int             `json:"time_used_seconds"`
	AvgTimeSeconds    float64         `json:"avg_time_seconds"`
	FastestQuestion   *QuestionTiming `json:"fastest_question,omitempty"`
	SlowestQuestion   *QuestionTiming `json:"slowest_question,omitempty"`
	Questions         []QuestionScore `json:"questions,omitempty"`
}
