package input

import (
	"strings"
	"sync"

	"github.com/stemsi/exstem-session/internal/model"
)

// Target is the kind of element that had focus when a key was pressed.
type Target string

const (
	TargetNone     Target = ""
	TargetInput    Target = "input"
	TargetTextarea Target = "textarea"
	TargetSelect   Target = "select"
)

// typing reports whether keystrokes on t belong to a form field.
func (t Target) typing() bool {
	switch Target(strings.ToLower(string(t))) {
	case TargetInput, TargetTextarea, TargetSelect:
		return true
	}
	return false
}

// KeyEvent is a key press as reported by the view.
type KeyEvent struct {
	Key    string `json:"key" binding:"required,max=32"`
	Ctrl   bool   `json:"ctrl"`
	Meta   bool   `json:"meta"`
	Shift  bool   `json:"shift"`
	Target Target `json:"target"`
}

// DefaultFlagKey toggles the review flag of the current question.
const DefaultFlagKey = "f"

// maxAnswerKeys is the number of digit shortcuts (1–4).
const maxAnswerKeys = 4

// Navigator is the part of the attempt store the keyboard drives.
type Navigator interface {
	HasAttempt() bool
	CurrentQuestion() (model.Question, bool)
	SetAnswer(questionID int64, answerID *int64, action model.AnswerAction)
	ToggleFlag(questionID int64)
	NextQuestion()
	PrevQuestion()
}

// KeyboardOptions configures a Keyboard.
type KeyboardOptions struct {
	FlagKey  string
	OnFinish func()
}

// Keyboard maps shortcut keys to store actions.
type Keyboard struct {
	nav  Navigator
	opts KeyboardOptions

	mu      sync.Mutex
	enabled bool
}

// NewKeyboard creates an enabled Keyboard over nav.
func NewKeyboard(nav Navigator, opts KeyboardOptions) *Keyboard {
	if opts.FlagKey == "" {
		opts.FlagKey = DefaultFlagKey
	}
	return &Keyboard{nav: nav, opts: opts, enabled: true}
}

// SetEnabled turns the shortcuts on or off, e.g. while a dialog is open.
func (k *Keyboard) SetEnabled(enabled bool) {
	k.mu.Lock()
	k.enabled = enabled
	k.mu.Unlock()
}

// Enabled reports whether shortcuts are active.
func (k *Keyboard) Enabled() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.enabled
}

// Handle applies ev and reports whether it was consumed.
func (k *Keyboard) Handle(ev KeyEvent) bool {
	if !k.Enabled() || !k.nav.HasAttempt() || ev.Target.typing() {
		return false
	}

	if ev.Key == "Enter" && (ev.Ctrl || ev.Meta) {
		if k.opts.OnFinish == nil {
			return false
		}
		k.opts.OnFinish()
		return true
	}

	switch ev.Key {
	case "ArrowLeft":
		k.nav.PrevQuestion()
		return true
	case "ArrowRight":
		k.nav.NextQuestion()
		return true
	}

	if strings.EqualFold(ev.Key, k.opts.FlagKey) && !ev.Ctrl && !ev.Meta {
		q, ok := k.nav.CurrentQuestion()
		if !ok {
			return false
		}
		k.nav.ToggleFlag(q.ID)
		return true
	}

	if pos, ok := digit(ev.Key); ok && !ev.Ctrl && !ev.Meta {
		q, ok := k.nav.CurrentQuestion()
		if !ok || pos > len(q.Answers) {
			return false
		}
		id := q.Answers[pos-1].ID
		k.nav.SetAnswer(q.ID, &id, model.AnswerActionSelected)
		return true
	}

	return false
}

func digit(key string) (int, bool) {
	if len(key) != 1 || key[0] < '1' || key[0] > '0'+maxAnswerKeys {
		return 0, false
	}
	return int(key[0] - '0'), true
}
