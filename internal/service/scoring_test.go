package service

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/examly/examly-backend/internal/model"
)

func jsonStr(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

func jsonList(items ...string) json.RawMessage {
	raw, _ := json.Marshal(items)
	return raw
}

func testPaper() (*model.Paper, []uuid.UUID) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	paper := &model.Paper{
		ID: uuid.New(),
		Questions: []model.Question{
			{ID: ids[0], QuestionType: model.QuestionTypeSingleChoice, CorrectAnswer: jsonStr("B"), Points: 40},
			{ID: ids[1], QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: jsonList("A", "C"), Points: 30},
			{ID: ids[2], QuestionType: model.QuestionTypeFillBlank, CorrectAnswer: jsonStr("state machine"), Points: 30},
		},
	}
	return paper, ids
}

func TestScorePerfect(t *testing.T) {
	paper, ids := testPaper()
	answers := map[uuid.UUID]model.Answer{
		ids[0]: {QuestionID: ids[0], UserAnswer: jsonStr("B"), TimeSpentSeconds: 20},
		ids[1]: {QuestionID: ids[1], UserAnswer: jsonList("C", "A"), TimeSpentSeconds: 45},
		ids[2]: {QuestionID: ids[2], UserAnswer: jsonStr("  state   machine "), TimeSpentSeconds: 10},
	}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	result := Score(answers, paper, 60, start, end)

	if result.Score != 100 {
		t.Errorf("Score = %v, want 100", result.Score)
	}
	if result.Accuracy != 100 {
		t.Errorf("Accuracy = %v, want 100", result.Accuracy)
	}
	if result.Grade != "A" {
		t.Errorf("Grade = %q, want A", result.Grade)
	}
	if !result.IsPassed {
		t.Error("IsPassed = false, want true")
	}
	if result.CorrectCount != 3 || result.AnsweredQuestions != 3 || result.SkippedQuestions != 0 {
		t.Errorf("counts = %d/%d/%d, want 3/3/0",
			result.CorrectCount, result.AnsweredQuestions, result.SkippedQuestions)
	}
	if result.TimeUsedSeconds != 600 {
		t.Errorf("TimeUsedSeconds = %d, want 600", result.TimeUsedSeconds)
	}
	if result.FastestQuestion == nil || result.FastestQuestion.QuestionID != ids[2] {
		t.Errorf("FastestQuestion = %+v, want question %s", result.FastestQuestion, ids[2])
	}
	if result.SlowestQuestion == nil || result.SlowestQuestion.QuestionID != ids[1] {
		t.Errorf("SlowestQuestion = %+v, want question %s", result.SlowestQuestion, ids[1])
	}
}

func TestScoreMultipleChoiceAllOrNothing(t *testing.T) {
	paper, ids := testPaper()

	tests := []struct {
		name   string
		answer json.RawMessage
		want   bool
	}{
		{"exact set", jsonList("A", "C"), true},
		{"order independent", jsonList("C", "A"), true},
		{"subset scores zero", jsonList("A"), false},
		{"superset scores zero", jsonList("A", "B", "C"), false},
		{"disjoint", jsonList("B", "D"), false},
		{"empty array", jsonList(), false},
		{"wrong shape", jsonStr("A"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers := map[uuid.UUID]model.Answer{
				ids[1]: {QuestionID: ids[1], UserAnswer: tt.answer},
			}
			result := Score(answers, paper, 0, time.Now(), time.Now())
			got := result.Score == 30
			if got != tt.want {
				t.Errorf("correct = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreFillBlankNormalization(t *testing.T) {
	paper, ids := testPaper()

	tests := []struct {
		name   string
		answer string
		want   bool
	}{
		{"exact", "state machine", true},
		{"leading and trailing space", "  state machine  ", true},
		{"collapsed internal runs", "state \t  machine", true},
		{"case matters", "State Machine", false},
		{"different words", "finite automaton", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers := map[uuid.UUID]model.Answer{
				ids[2]: {QuestionID: ids[2], UserAnswer: jsonStr(tt.answer)},
			}
			result := Score(answers, paper, 0, time.Now(), time.Now())
			got := result.Score == 30
			if got != tt.want {
				t.Errorf("correct = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreSkippedAndOrphaned(t *testing.T) {
	paper, ids := testPaper()
	answers := map[uuid.UUID]model.Answer{
		ids[0]: {QuestionID: ids[0], UserAnswer: jsonStr("B"), TimeSpentSeconds: 15},
		// Answer to a question that is not on the paper: ignored, not fatal.
		uuid.New(): {QuestionID: uuid.New(), UserAnswer: jsonStr("X"), TimeSpentSeconds: 5},
	}

	result := Score(answers, paper, 50, time.Now(), time.Now())

	if result.Score != 40 {
		t.Errorf("Score = %v, want 40", result.Score)
	}
	if result.SkippedQuestions != 2 {
		t.Errorf("SkippedQuestions = %d, want 2", result.SkippedQuestions)
	}
	if result.AnsweredQuestions != 1 {
		t.Errorf("AnsweredQuestions = %d, want 1", result.AnsweredQuestions)
	}
	if result.IsPassed {
		t.Error("IsPassed = true, want false (40 < 50)")
	}
	if len(result.Questions) != 3 {
		t.Errorf("len(Questions) = %d, want 3", len(result.Questions))
	}
}

func TestScoreDeterminism(t *testing.T) {
	paper, ids := testPaper()
	answers := map[uuid.UUID]model.Answer{
		ids[0]: {QuestionID: ids[0], UserAnswer: jsonStr("B"), TimeSpentSeconds: 20},
		ids[1]: {QuestionID: ids[1], UserAnswer: jsonList("A"), TimeSpentSeconds: 30},
	}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(25 * time.Minute)

	first := Score(answers, paper, 60, start, end)
	second := Score(answers, paper, 60, start, end)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("scoring is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestGradeLetterBanding(t *testing.T) {
	tests := []struct {
		accuracy float64
		want     string
	}{
		{100, "A"}, {90, "A"}, {89.99, "B"}, {80, "B"},
		{79, "C"}, {70, "C"}, {69, "D"}, {60, "D"},
		{59.9, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		if got := gradeLetter(tt.accuracy); got != tt.want {
			t.Errorf("gradeLetter(%v) = %q, want %q", tt.accuracy, got, tt.want)
		}
	}
}

func TestScoreEmptyPaper(t *testing.T) {
	paper := &model.Paper{ID: uuid.New()}
	result := Score(nil, paper, 0, time.Now(), time.Now())
	if result.Accuracy != 0 || result.Grade != "F" {
		t.Errorf("empty paper: accuracy=%v grade=%q, want 0/F", result.Accuracy, result.Grade)
	}
}
