package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/examly/examly-backend/internal/model"
)

// Score grades one attempt against its paper. Pure: given the same answers,
// paper and timestamps it always produces the same result, so a retry after
// a failed persist can safely re-run it. It never reads the clock; timeUsed
// comes from the recorded start and end instants.
func Score(answers map[uuid.UUID]model.Answer, paper *model.Paper, passingScore float64, startTime, endTime time.Time) *model.ScoreResult {
	result := &model.ScoreResult{
		TotalQuestions:  len(paper.Questions),
		TotalPoints:     paper.TotalPoints(),
		TimeUsedSeconds: int(endTime.Sub(startTime).Seconds()),
		Questions:       make([]model.QuestionScore, 0, len(paper.Questions)),
	}

	totalAnsweredTime := 0
	for _, q := range paper.Questions {
		qs := model.QuestionScore{
			QuestionID:     q.ID,
			PointsPossible: q.Points,
		}

		ans, ok := answers[q.ID]
		if !ok {
			result.SkippedQuestions++
			result.Questions = append(result.Questions, qs)
			continue
		}

		qs.Answered = true
		qs.TimeSpentSeconds = ans.TimeSpentSeconds
		result.AnsweredQuestions++
		totalAnsweredTime += ans.TimeSpentSeconds

		if gradeAnswer(q, ans.UserAnswer) {
			qs.IsCorrect = true
			qs.PointsAwarded = q.Points
			result.CorrectCount++
			result.Score += q.Points
		}

		result.Questions = append(result.Questions, qs)
	}

	if result.TotalQuestions > 0 {
		result.Accuracy = float64(result.CorrectCount) / float64(result.TotalQuestions) * 100
	}
	result.Grade = gradeLetter(result.Accuracy)
	result.IsPassed = result.Score >= passingScore

	if result.AnsweredQuestions > 0 {
		result.AvgTimeSeconds = float64(totalAnsweredTime) / float64(result.AnsweredQuestions)
		result.FastestQuestion, result.SlowestQuestion = timingExtremes(result.Questions)
	}

	return result
}

// gradeAnswer compares one user answer to the question's key. A malformed
// answer shape never fails scoring; it just grades as incorrect.
func gradeAnswer(q model.Question, userAnswer json.RawMessage) bool {
	switch q.QuestionType {
	case model.QuestionTypeSingleChoice:
		user, ok1 := asString(userAnswer)
		key, ok2 := asString(q.CorrectAnswer)
		return ok1 && ok2 && user == key

	case model.QuestionTypeFillBlank:
		user, ok1 := asString(userAnswer)
		key, ok2 := asString(q.CorrectAnswer)
		return ok1 && ok2 && normalizeBlank(user) == normalizeBlank(key)

	case model.QuestionTypeMultipleChoice:
		user, ok1 := asStringSet(userAnswer)
		key, ok2 := asStringSet(q.CorrectAnswer)
		if !ok1 || !ok2 || len(user) != len(key) {
			return false
		}
		for v := range key {
			if _, present := user[v]; !present {
				return false
			}
		}
		return true
	}
	return false
}

// normalizeBlank trims the ends and collapses internal whitespace runs to a
// single space. Case is preserved: "Paris" and "paris" are different answers.
func normalizeBlank(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func asStringSet(raw json.RawMessage) (map[string]struct{}, bool) {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return set, true
}

// gradeLetter bands accuracy, not raw score, so papers with unusual point
// totals grade on the same scale.
func gradeLetter(accuracy float64) string {
	switch {
	case accuracy >= 90:
		return "A"
	case accuracy >= 80:
		return "B"
	case accuracy >= 70:
		return "C"
	case accuracy >= 60:
		return "D"
	default:
		return "F"
	}
}

func timingExtremes(questions []model.QuestionScore) (fastest, slowest *model.QuestionTiming) {
	for _, qs := range questions {
		if !qs.Answered {
			continue
		}
		t := model.QuestionTiming{QuestionID: qs.QuestionID, TimeSpentSeconds: qs.TimeSpentSeconds}
		if fastest == nil || t.TimeSpentSeconds < fastest.TimeSpentSeconds {
			v := t
			fastest = &v
		}
		if slowest == nil || t.TimeSpentSeconds > slowest.TimeSpentSeconds {
			v := t
			slowest = &v
		}
	}
	return fastest, slowest
}
