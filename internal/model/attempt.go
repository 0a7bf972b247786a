package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerAction tags how the user responded to a question.
type AnswerAction string

const (
	AnswerActionNone     AnswerAction = "none"
	AnswerActionSelected AnswerAction = "selected"
	AnswerActionDoubt    AnswerAction = "doubt"
)

// Valid reports whether a is one of the known actions.
func (a AnswerAction) Valid() bool {
	switch a {
	case AnswerActionNone, AnswerActionSelected, AnswerActionDoubt:
		return true
	}
	return false
}

// AttemptStatus enumerates attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusCompleted  AttemptStatus = "completed"
	AttemptStatusAbandoned  AttemptStatus = "abandoned"
)

// Test is the denormalized test metadata carried by an attempt.
type Test struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	AvailableTime int    `json:"available_time"` // seconds, 0 means unlimited
	QuestionCount int    `json:"question_count"`
}

// QuestionAttempt is the mutable response record for one question.
type QuestionAttempt struct {
	QuestionID       int64        `json:"question_id"`
	SelectedAnswerID *int64       `json:"selected_answer_id"`
	Action           AnswerAction `json:"action"`
	FlaggedForReview bool         `json:"flagged_for_review"`
	TimeSpent        int          `json:"time_spent"`
}

// Attempt is one run of a profile through a test's question set.
type Attempt struct {
	ID        uuid.UUID         `json:"id"`
	TestID    int64             `json:"test_id"`
	ProfileID string            `json:"profile_id"`
	Test      Test              `json:"test"`
	Questions []Question        `json:"questions"`
	Answers   []QuestionAttempt `json:"answers"`
	StartedAt time.Time         `json:"started_at"`
	IsPaused  bool              `json:"is_paused"`
	Status    AttemptStatus     `json:"status"`
}

// NewQuestionAttempt returns the default record for a question that has not been touched.
func NewQuestionAttempt(questionID int64) QuestionAttempt {
	return QuestionAttempt{QuestionID: questionID, Action: AnswerActionNone}
}

// Clone returns a deep copy of the attempt.
func (a Attempt) Clone() Attempt {
	out := a
	out.Questions = make([]Question, len(a.Questions))
	for i, q := range a.Questions {
		out.Questions[i] = q
		out.Questions[i].Images = append([]string(nil), q.Images...)
		out.Questions[i].Answers = append([]Answer(nil), q.Answers...)
	}
	out.Answers = CloneQuestionAttempts(a.Answers)
	return out
}

// CloneQuestionAttempts deep-copies a slice of records, including selected answer pointers.
func CloneQuestionAttempts(in []QuestionAttempt) []QuestionAttempt {
	if in == nil {
		return nil
	}
	out := make([]QuestionAttempt, len(in))
	for i, qa := range in {
		out[i] = qa
		if qa.SelectedAnswerID != nil {
			id := *qa.SelectedAnswerID
			out[i].SelectedAnswerID = &id
		}
	}
	return out
}
