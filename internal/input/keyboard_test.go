package input

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/session"
)

func threeQuestionStore() *session.Store {
	s := session.NewStore()
	s.StartAttempt(model.Attempt{
		ID: uuid.New(),
		Questions: []model.Question{
			{ID: 1, Answers: []model.Answer{{ID: 11}, {ID: 12}, {ID: 13}, {ID: 14}}},
			{ID: 2, Answers: []model.Answer{{ID: 21}, {ID: 22}}},
			{ID: 3, Answers: []model.Answer{{ID: 31}, {ID: 32}, {ID: 33}}},
		},
	})
	return s
}

func TestDigitSelectsAnswerByPosition(t *testing.T) {
	s := threeQuestionStore()
	k := NewKeyboard(s, KeyboardOptions{})

	if !k.Handle(KeyEvent{Key: "3"}) {
		t.Fatal("expected digit 3 to be handled")
	}
	rec, _ := s.Answer(1)
	if rec.SelectedAnswerID == nil || *rec.SelectedAnswerID != 13 || rec.Action != model.AnswerActionSelected {
		t.Fatalf("expected answer 13 selected, got %+v", rec)
	}

	s.NextQuestion()
	if k.Handle(KeyEvent{Key: "3"}) {
		t.Error("digit beyond the question's answer count must be ignored")
	}
	if rec, _ := s.Answer(2); rec.SelectedAnswerID != nil {
		t.Errorf("expected no selection on question 2, got %+v", rec)
	}
	for _, key := range []string{"0", "5", "9"} {
		if k.Handle(KeyEvent{Key: key}) {
			t.Errorf("key %q must be ignored", key)
		}
	}
}

func TestArrowsNavigate(t *testing.T) {
	s := threeQuestionStore()
	k := NewKeyboard(s, KeyboardOptions{})

	k.Handle(KeyEvent{Key: "ArrowRight"})
	k.Handle(KeyEvent{Key: "ArrowRight"})
	k.Handle(KeyEvent{Key: "ArrowRight"})
	if idx, _ := s.CurrentIndex(); idx != 2 {
		t.Fatalf("expected cursor 2, got %d", idx)
	}
	k.Handle(KeyEvent{Key: "ArrowLeft"})
	if idx, _ := s.CurrentIndex(); idx != 1 {
		t.Fatalf("expected cursor 1, got %d", idx)
	}
}

func TestFlagKeyTogglesCurrentQuestion(t *testing.T) {
	s := threeQuestionStore()
	k := NewKeyboard(s, KeyboardOptions{})

	k.Handle(KeyEvent{Key: "F", Shift: true})
	if rec, _ := s.Answer(1); !rec.FlaggedForReview {
		t.Fatal("expected question 1 flagged")
	}
	k.Handle(KeyEvent{Key: "f"})
	if rec, _ := s.Answer(1); rec.FlaggedForReview {
		t.Fatal("expected flag cleared")
	}
}

func TestCtrlEnterFinishes(t *testing.T) {
	s := threeQuestionStore()
	finished := 0
	k := NewKeyboard(s, KeyboardOptions{OnFinish: func() { finished++ }})

	k.Handle(KeyEvent{Key: "Enter"})
	k.Handle(KeyEvent{Key: "Enter", Ctrl: true})
	k.Handle(KeyEvent{Key: "Enter", Meta: true})

	if finished != 2 {
		t.Errorf("expected 2 finish requests, got %d", finished)
	}
}

func TestTypingTargetsAreIgnored(t *testing.T) {
	s := threeQuestionStore()
	k := NewKeyboard(s, KeyboardOptions{})

	for _, target := range []Target{TargetInput, TargetTextarea, TargetSelect, "TEXTAREA"} {
		if k.Handle(KeyEvent{Key: "ArrowRight", Target: target}) {
			t.Errorf("key in %q must be ignored", target)
		}
		if k.Handle(KeyEvent{Key: "1", Target: target}) {
			t.Errorf("digit in %q must be ignored", target)
		}
	}
	if idx, _ := s.CurrentIndex(); idx != 0 {
		t.Errorf("cursor moved to %d", idx)
	}
	if rec, _ := s.Answer(1); rec.SelectedAnswerID != nil {
		t.Errorf("answer selected from a form field: %+v", rec)
	}
}

func TestDisabledOrEmptyIgnoresKeys(t *testing.T) {
	s := threeQuestionStore()
	k := NewKeyboard(s, KeyboardOptions{})
	k.SetEnabled(false)
	if k.Handle(KeyEvent{Key: "ArrowRight"}) {
		t.Error("disabled keyboard must ignore keys")
	}

	k.SetEnabled(true)
	s.Reset()
	if k.Handle(KeyEvent{Key: "ArrowRight"}) {
		t.Error("keyboard without attempt must ignore keys")
	}
}
