package session

import (
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

// Store is the single source of truth for the attempt being taken.
// Every mutator is a no-op when no attempt is loaded.
type Store struct {
	mu       sync.Mutex
	cur      *live
	onChange func()
}

type live struct {
	attempt model.Attempt
	index   int
	elapsed int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// OnChange registers fn to be called after every effective mutation.
// fn runs outside the store lock and may read from the store.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// mutate applies fn to the live attempt under the lock and fires the change hook
// when fn reports a change.
func (s *Store) mutate(fn func(l *live) bool) {
	s.mu.Lock()
	if s.cur == nil {
		s.mu.Unlock()
		return
	}
	changed := fn(s.cur)
	hook := s.onChange
	s.mu.Unlock()

	if changed && hook != nil {
		hook()
	}
}

// StartAttempt installs a fresh attempt, discarding whatever was loaded.
// Answer records are normalised to exactly one per question.
func (s *Store) StartAttempt(a model.Attempt) {
	a = a.Clone()
	a.Answers = normaliseAnswers(a.Questions, a.Answers)
	a.IsPaused = false
	if a.Status == "" {
		a.Status = model.AttemptStatusInProgress
	}

	s.mu.Lock()
	s.cur = &live{attempt: a}
	hook := s.onChange
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
}

func normaliseAnswers(questions []model.Question, answers []model.QuestionAttempt) []model.QuestionAttempt {
	byID := make(map[int64]model.QuestionAttempt, len(answers))
	for _, qa := range answers {
		byID[qa.QuestionID] = qa
	}
	out := make([]model.QuestionAttempt, 0, len(questions))
	for _, q := range questions {
		if qa, ok := byID[q.ID]; ok {
			if !qa.Action.Valid() {
				qa.Action = model.AnswerActionNone
			}
			out = append(out, qa)
			continue
		}
		out = append(out, model.NewQuestionAttempt(q.ID))
	}
	return out
}

// SetAnswer replaces the selection and action of the record for questionID.
// answerID is trusted; validation against the question's options is the caller's job.
func (s *Store) SetAnswer(questionID int64, answerID *int64, action model.AnswerAction) {
	s.mutate(func(l *live) bool {
		i := l.find(questionID)
		if i < 0 {
			return false
		}
		rec := &l.attempt.Answers[i]
		if answerID != nil {
			id := *answerID
			rec.SelectedAnswerID = &id
		} else {
			rec.SelectedAnswerID = nil
		}
		rec.Action = action
		return true
	})
}

// ToggleFlag flips the review flag of the record for questionID.
func (s *Store) ToggleFlag(questionID int64) {
	s.mutate(func(l *live) bool {
		i := l.find(questionID)
		if i < 0 {
			return false
		}
		l.attempt.Answers[i].FlaggedForReview = !l.attempt.Answers[i].FlaggedForReview
		return true
	})
}

// SetCurrentQuestion moves the cursor, clamped into the question range.
func (s *Store) SetCurrentQuestion(index int) {
	s.mutate(func(l *live) bool {
		next := clampIndex(index, len(l.attempt.Questions))
		if next == l.index {
			return false
		}
		l.index = next
		return true
	})
}

// NextQuestion advances the cursor, saturating at the last question.
func (s *Store) NextQuestion() {
	s.mutate(func(l *live) bool {
		if l.index >= len(l.attempt.Questions)-1 {
			return false
		}
		l.index++
		return true
	})
}

// PrevQuestion moves the cursor back, saturating at the first question.
func (s *Store) PrevQuestion() {
	s.mutate(func(l *live) bool {
		if l.index <= 0 {
			return false
		}
		l.index--
		return true
	})
}

// Tick adds one second of elapsed time unless paused.
func (s *Store) Tick() {
	s.mutate(func(l *live) bool {
		if l.attempt.IsPaused {
			return false
		}
		l.elapsed++
		if l.index < len(l.attempt.Questions) {
			if i := l.find(l.attempt.Questions[l.index].ID); i >= 0 {
				l.attempt.Answers[i].TimeSpent++
			}
		}
		return true
	})
}

// Pause sets the pause flag. It does not stop any external ticker.
func (s *Store) Pause() {
	s.mutate(func(l *live) bool {
		if l.attempt.IsPaused {
			return false
		}
		l.attempt.IsPaused = true
		return true
	})
}

// Resume clears the pause flag.
func (s *Store) Resume() {
	s.mutate(func(l *live) bool {
		if !l.attempt.IsPaused {
			return false
		}
		l.attempt.IsPaused = false
		return true
	})
}

// RestoreProgress merges saved records into the live attempt by question id.
// Saved records win; questions absent from answers keep their current record.
// The cursor is clamped and elapsed time is overwritten.
func (s *Store) RestoreProgress(answers []model.QuestionAttempt, index, elapsed int) {
	saved := make(map[int64]model.QuestionAttempt, len(answers))
	for _, qa := range model.CloneQuestionAttempts(answers) {
		saved[qa.QuestionID] = qa
	}

	s.mutate(func(l *live) bool {
		for i, rec := range l.attempt.Answers {
			if qa, ok := saved[rec.QuestionID]; ok {
				if !qa.Action.Valid() {
					qa.Action = model.AnswerActionNone
				}
				l.attempt.Answers[i] = qa
			}
		}
		l.index = clampIndex(index, len(l.attempt.Questions))
		if elapsed < 0 {
			elapsed = 0
		}
		l.elapsed = elapsed
		return true
	})
}

// Reset clears the store back to NoAttempt.
func (s *Store) Reset() {
	s.mu.Lock()
	had := s.cur != nil
	s.cur = nil
	hook := s.onChange
	s.mu.Unlock()

	if had && hook != nil {
		hook()
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return NoAttempt{}
	}
	return ActiveAttempt{
		Attempt:        s.cur.attempt.Clone(),
		CurrentIndex:   s.cur.index,
		ElapsedSeconds: s.cur.elapsed,
		Paused:         s.cur.attempt.IsPaused,
	}
}

// Active returns the loaded attempt, if any.
func (s *Store) Active() (ActiveAttempt, bool) {
	a, ok := s.State().(ActiveAttempt)
	return a, ok
}

// HasAttempt reports whether an attempt is loaded.
func (s *Store) HasAttempt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// AttemptID returns the id of the loaded attempt.
func (s *Store) AttemptID() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return uuid.Nil, false
	}
	return s.cur.attempt.ID, true
}

// TimeBudget returns the test's available time in seconds.
func (s *Store) TimeBudget() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return 0, false
	}
	return s.cur.attempt.Test.AvailableTime, true
}

// Elapsed returns the elapsed seconds of the loaded attempt.
func (s *Store) Elapsed() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return 0, false
	}
	return s.cur.elapsed, true
}

// IsPaused reports whether the loaded attempt is paused. False without an attempt.
func (s *Store) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil && s.cur.attempt.IsPaused
}

// CurrentIndex returns the cursor position.
func (s *Store) CurrentIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return 0, false
	}
	return s.cur.index, true
}

// CurrentQuestion returns the question under the cursor.
func (s *Store) CurrentQuestion() (model.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.index >= len(s.cur.attempt.Questions) {
		return model.Question{}, false
	}
	q := s.cur.attempt.Questions[s.cur.index]
	q.Answers = append([]model.Answer(nil), q.Answers...)
	return q, true
}

// Question looks up a question by id.
func (s *Store) Question(questionID int64) (model.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return model.Question{}, false
	}
	for _, q := range s.cur.attempt.Questions {
		if q.ID == questionID {
			q.Answers = append([]model.Answer(nil), q.Answers...)
			return q, true
		}
	}
	return model.Question{}, false
}

// Answer returns the response record for questionID.
func (s *Store) Answer(questionID int64) (model.QuestionAttempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return model.QuestionAttempt{}, false
	}
	i := s.cur.find(questionID)
	if i < 0 {
		return model.QuestionAttempt{}, false
	}
	return model.CloneQuestionAttempts(s.cur.attempt.Answers[i : i+1])[0], true
}

// Stats computes answered/flagged counters from the live records.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Stats{}
	}
	st := Stats{Total: len(s.cur.attempt.Questions)}
	for _, rec := range s.cur.attempt.Answers {
		if rec.SelectedAnswerID != nil {
			st.Answered++
		}
		if rec.FlaggedForReview {
			st.Flagged++
		}
	}
	if st.Total > 0 {
		st.Percentage = int(math.Round(float64(st.Answered) / float64(st.Total) * 100))
	}
	return st
}

// Progress returns the snapshot fields of the loaded attempt. SavedAt is left zero.
func (s *Store) Progress() (model.SavedProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return model.SavedProgress{}, false
	}
	return model.SavedProgress{
		Answers:              model.CloneQuestionAttempts(s.cur.attempt.Answers),
		CurrentQuestionIndex: s.cur.index,
		ElapsedSeconds:       s.cur.elapsed,
	}, true
}

func (l *live) find(questionID int64) int {
	for i := range l.attempt.Answers {
		if l.attempt.Answers[i].QuestionID == questionID {
			return i
		}
	}
	return -1
}

func clampIndex(index, count int) int {
	if count <= 0 || index < 0 {
		return 0
	}
	if index > count-1 {
		return count - 1
	}
	return index
}
