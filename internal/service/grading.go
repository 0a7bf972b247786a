package service

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

// AnswerKey maps a question id to its correct answer id.
type AnswerKey map[int64]int64

// BuildAnswerKey extracts the correct option of every question. Questions
// without a correct option are left out and do not count towards the total.
func BuildAnswerKey(questions []model.Question) AnswerKey {
	key := make(AnswerKey, len(questions))
	for _, q := range questions {
		for _, a := range q.Answers {
			if a.IsCorrect != nil && *a.IsCorrect {
				key[q.ID] = a.ID
				break
			}
		}
	}
	return key
}

// GradeAnswers scores answers against key. Score is a 0–100 percentage.
func GradeAnswers(attemptID uuid.UUID, testID int64, key AnswerKey, answers []model.QuestionAttempt, elapsed int, finishedAt time.Time) model.TestResult {
	selected := make(map[int64]*int64, len(answers))
	for _, a := range answers {
		selected[a.QuestionID] = a.SelectedAnswerID
	}

	questionIDs := make([]int64, 0, len(key))
	for qid := range key {
		questionIDs = append(questionIDs, qid)
	}
	sort.Slice(questionIDs, func(i, j int) bool { return questionIDs[i] < questionIDs[j] })

	result := model.TestResult{
		AttemptID:      attemptID,
		TestID:         testID,
		Total:          len(key),
		ElapsedSeconds: elapsed,
		FinishedAt:     finishedAt,
		Answers:        make([]model.GradedAnswer, 0, len(key)),
	}

	for _, qid := range questionIDs {
		correctID := key[qid]
		g := model.GradedAnswer{QuestionID: qid, CorrectAnswerID: &correctID}
		if sel := selected[qid]; sel != nil {
			id := *sel
			g.SelectedAnswerID = &id
			g.IsCorrect = id == correctID
		}
		if g.IsCorrect {
			result.Correct++
		}
		result.Answers = append(result.Answers, g)
	}

	if result.Total > 0 {
		result.Score = float64(result.Correct) / float64(result.Total) * 100
	}
	return result
}
