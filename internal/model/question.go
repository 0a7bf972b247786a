package model

// Question is immutable exam content. It is read-only for the lifetime of an attempt.
type Question struct {
	ID          int64    `json:"id"`
	Index       int      `json:"index"`
	Text        string   `json:"question_text" binding:"required"`
	Preamble    *string  `json:"preamble,omitempty"`
	Description *string  `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`
	Answers     []Answer `json:"answers" binding:"required,min=2,dive"`
}

// Answer is one selectable option of a question.
// IsCorrect is only populated for grading and is never sent to a session.
type Answer struct {
	ID        int64  `json:"id"`
	Text      string `json:"answer_text" binding:"required"`
	IsCorrect *bool  `json:"is_correct,omitempty"`
}

// HasAnswer reports whether answerID is one of the question's options.
func (q *Question) HasAnswer(answerID int64) bool {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return true
		}
	}
	return false
}

// StripCorrectness returns a copy of the questions with every IsCorrect flag removed.
func StripCorrectness(questions []Question) []Question {
	out := make([]Question, len(questions))
	for i, q := range questions {
		out[i] = q
		out[i].Images = append([]string(nil), q.Images...)
		out[i].Answers = make([]Answer, len(q.Answers))
		for j, a := range q.Answers {
			out[i].Answers[j] = Answer{ID: a.ID, Text: a.Text}
		}
	}
	return out
}
