package model

import (
	"time"

	"github.com/google/uuid"
)

// TestResult is the graded outcome of a finished attempt.
type TestResult struct {
	AttemptID      uuid.UUID      `json:"attempt_id"`
	TestID         int64          `json:"test_id"`
	Correct        int            `json:"correct"`
	Total          int            `json:"total"`
	Score          float64        `json:"score"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
	FinishedAt     time.Time      `json:"finished_at"`
	Answers        []GradedAnswer `json:"answers"`
}

// GradedAnswer pairs a response with its correct option once grading is done.
type GradedAnswer struct {
	QuestionID       int64  `json:"question_id"`
	SelectedAnswerID *int64 `json:"selected_answer_id"`
	CorrectAnswerID  *int64 `json:"correct_answer_id"`
	IsCorrect        bool   `json:"is_correct"`
}

// ResultJob is a graded result waiting to be written to the attempts table.
type ResultJob struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	Score          float64   `json:"score"`
	Correct        int       `json:"correct"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	FinishedAt     time.Time `json:"finished_at"`
}
