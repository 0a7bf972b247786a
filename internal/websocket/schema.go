package websocket

import (
	"github.com/stemsi/exstem-session/internal/input"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer     Action = "answer"
	ActionFlag       Action = "flag"
	ActionGoto       Action = "goto"
	ActionNext       Action = "next"
	ActionPrev       Action = "prev"
	ActionPause      Action = "pause"
	ActionResume     Action = "resume"
	ActionKey        Action = "key"
	ActionTouchStart Action = "touch_start"
	ActionTouchEnd   Action = "touch_end"
	ActionVisibility Action = "visibility"
	ActionDialog     Action = "dialog"
	ActionRecover    Action = "recover"
	ActionDiscard    Action = "discard"
	ActionFinish     Action = "finish"
	ActionAbandon    Action = "abandon"
	ActionPing       Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest records a response to a question.
type AnswerRequest struct {
	Action       Action             `json:"action"`
	QuestionID   int64              `json:"question_id" binding:"required"`
	AnswerID     *int64             `json:"answer_id"`
	AnswerAction model.AnswerAction `json:"answer_action" binding:"required,oneof=none selected doubt"`
}

// FlagRequest toggles the review flag of a question.
type FlagRequest struct {
	Action     Action `json:"action"`
	QuestionID int64  `json:"question_id" binding:"required"`
}

// GotoRequest jumps to a question position.
type GotoRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"required"`
}

// KeyRequest forwards a key press from the view.
type KeyRequest struct {
	Action Action         `json:"action"`
	Event  input.KeyEvent `json:"event"`
}

// TouchRequest forwards a touch start or end.
type TouchRequest struct {
	Action  Action      `json:"action"`
	Point   input.Point `json:"point"`
	Touches int         `json:"touches" binding:"min=0,max=10"`
}

// VisibilityRequest reports the page visibility.
type VisibilityRequest struct {
	Action Action `json:"action"`
	Hidden bool   `json:"hidden"`
}

// DialogRequest reports whether the view shows a dialog.
type DialogRequest struct {
	Action Action `json:"action"`
	Open   bool   `json:"open"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSessionStarted    Event = "session_started"
	EventState             Event = "state"
	EventRecoveryAvailable Event = "recovery_available"
	EventExpired           Event = "expired"
	EventFinished          Event = "finished"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

// SessionStartedResponse carries the attempt with its question set. It is the
// only event that includes questions.
type SessionStartedResponse struct {
	Event   Event         `json:"event"`
	Attempt model.Attempt `json:"attempt"`
	State   service.View  `json:"state"`
}

// StateResponse carries the render state after every change.
type StateResponse struct {
	Event Event        `json:"event"`
	State service.View `json:"state"`
}

// RecoveryAvailableResponse offers a saved snapshot for recovery.
type RecoveryAvailableResponse struct {
	Event    Event               `json:"event"`
	Snapshot model.SavedProgress `json:"snapshot"`
}

// FinishedResponse carries the graded result.
type FinishedResponse struct {
	Event  Event            `json:"event"`
	Result model.TestResult `json:"result"`
}

// ErrorResponse reports a rejected action. The session stays open.
type ErrorResponse struct {
	Event  Event               `json:"event"`
	Action Action              `json:"action,omitempty"`
	Error  *response.ErrorBody `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
