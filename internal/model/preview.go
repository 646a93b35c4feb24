package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PreviewRecord mirrors ExamRecord for an author's dry-run. It is keyed by
// a generated preview id instead of (session, user), lives only in the
// short-lived store, and never enters attempt accounting or history.
type PreviewRecord struct {
	PreviewID     uuid.UUID    `json:"preview_id"`
	SessionID     uuid.UUID    `json:"session_id"`
	PaperID       uuid.UUID    `json:"paper_id"`
	Status        RecordStatus `json:"status"`
	StartTime     time.Time    `json:"start_time"`
	Deadline      time.Time    `json:"deadline"`
	EndTime       *time.Time   `json:"end_time,omitempty"`
	QuestionOrder []uuid.UUID  `json:"question_order"`
	Result        *ScoreResult `json:"result,omitempty"`
}

// ExpiredAt reports whether the preview attempt deadline has passed.
func (p *PreviewRecord) ExpiredAt(now time.Time) bool {
	return now.After(p.Deadline)
}

// PreviewAnswerRequest records a single answer against a preview attempt.
type PreviewAnswerRequest struct {
	PreviewID        uuid.UUID       `json:"preview_id" binding:"required"`
	QuestionID       uuid.UUID       `json:"question_id" binding:"required"`
	Answer           json.RawMessage `json:"answer" binding:"required"`
	TimeSpentSeconds int             `json:"time_spent_seconds" binding:"min=0,max=86400"`
}

// PreviewBatchAnswer is one entry of a batched preview save.
type PreviewBatchAnswer struct {
	QuestionID       uuid.UUID       `json:"question_id" binding:"required"`
	Answer           json.RawMessage `json:"answer" binding:"required"`
	TimeSpentSeconds int             `json:"time_spent_seconds" binding:"min=0,max=86400"`
}

// PreviewBatchAnswerRequest records several answers in one call.
type PreviewBatchAnswerRequest struct {
	PreviewID uuid.UUID            `json:"preview_id" binding:"required"`
	Answers   []PreviewBatchAnswer `json:"answers" binding:"required,min=1,dive"`
}

// PreviewSubmitRequest finishes a preview attempt.
type PreviewSubmitRequest struct {
	PreviewID uuid.UUID `json:"preview_id" binding:"required"`
}
