package model

import "time"

// SavedProgress is the durable recovery snapshot of an in-progress attempt.
// At most one exists per (profile, test).
type SavedProgress struct {
	Answers              []QuestionAttempt `json:"answers"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	ElapsedSeconds       int               `json:"elapsed_seconds"`
	SavedAt              time.Time         `json:"saved_at"`
}

// SaveProgressRequest is the payload for storing a snapshot through the REST API.
type SaveProgressRequest struct {
	Answers              []QuestionAttemptInput `json:"answers" binding:"required,dive"`
	CurrentQuestionIndex int                    `json:"current_question_index" binding:"min=0"`
	ElapsedSeconds       int                    `json:"elapsed_seconds" binding:"min=0"`
}

// QuestionAttemptInput is a QuestionAttempt as received from a client.
type QuestionAttemptInput struct {
	QuestionID       int64        `json:"question_id" binding:"required"`
	SelectedAnswerID *int64       `json:"selected_answer_id"`
	Action           AnswerAction `json:"action" binding:"required,oneof=none selected doubt"`
	FlaggedForReview bool         `json:"flagged_for_review"`
	TimeSpent        int          `json:"time_spent" binding:"min=0"`
}

// ToSavedProgress converts the request into a snapshot stamped with savedAt.
func (r *SaveProgressRequest) ToSavedProgress(savedAt time.Time) SavedProgress {
	answers := make([]QuestionAttempt, len(r.Answers))
	for i, a := range r.Answers {
		answers[i] = QuestionAttempt(a)
	}
	return SavedProgress{
		Answers:              answers,
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		ElapsedSeconds:       r.ElapsedSeconds,
		SavedAt:              savedAt,
	}
}
