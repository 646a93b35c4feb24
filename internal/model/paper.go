package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType enumerates the auto-gradable question kinds.
type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "single_choice"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeFillBlank      QuestionType = "fill_blank"
)

// Question is one paper entry, including its answer key. The answer key
// shape depends on Type: a JSON string for single_choice and fill_blank,
// a JSON string array for multiple_choice. It is decoded at scoring time.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	QuestionText  string          `json:"question_text"`
	QuestionType  QuestionType    `json:"question_type"`
	Options       json.RawMessage `json:"options,omitempty"`
	CorrectAnswer json.RawMessage `json:"correct_answer,omitempty"`
	Points        float64         `json:"points"`
	OrderNum      int             `json:"order_num"`
}

// Paper is an ordered, immutable sequence of questions. A paper must not
// change answer keys while an attempt against it is in progress.
type Paper struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// TotalPoints sums the points of every question on the paper.
func (p *Paper) TotalPoints() float64 {
	var total float64
	for _, q := range p.Questions {
		total += q.Points
	}
	return total
}

// QuestionByID returns the question with the given id, or nil.
func (p *Paper) QuestionByID(id uuid.UUID) *Question {
	for i := range p.Questions {
		if p.Questions[i].ID == id {
			return &p.Questions[i]
		}
	}
	return nil
}

// QuestionForTaker is a question stripped of its answer key, safe to send
// to the person taking the exam.
type QuestionForTaker struct {
	ID           uuid.UUID       `json:"id"`
	QuestionText string          `json:"question_text"`
	QuestionType QuestionType    `json:"question_type"`
	Options      json.RawMessage `json:"options,omitempty"`
	Points       float64         `json:"points"`
}

// QuestionsInOrder projects the paper's questions into the given order,
// stripped of answer keys. Unknown ids are skipped.
func (p *Paper) QuestionsInOrder(order []uuid.UUID) []QuestionForTaker {
	out := make([]QuestionForTaker, 0, len(order))
	for _, id := range order {
		q := p.QuestionByID(id)
		if q == nil {
			continue
		}
		out = append(out, QuestionForTaker{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Options:      q.Options,
			Points:       q.Points,
		})
	}
	return out
}
