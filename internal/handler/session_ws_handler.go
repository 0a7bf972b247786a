package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionWSHandler runs one test session per WebSocket connection.
type SessionWSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewSessionWSHandler creates a new SessionWSHandler.
func NewSessionWSHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *SessionWSHandler {
	return &SessionWSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// TestSessionStream godoc
// WS /ws/v1/tests/:test_id/session?token=...
// Starts an attempt and streams its state. Closing the socket is a page unload:
// progress is saved and can be recovered on the next connection.
func (h *SessionWSHandler) TestSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := strconv.ParseInt(c.Param("test_id"), 10, 64)
	if err != nil || testID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("profile_id", claims.ProfileID).
		Int64("test_id", testID).
		Logger()

	// The request context ends with the handler; the session gets its own.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := h.sessions.Open(ctx, claims.ProfileID, testID)
	if err != nil {
		_, code := errorCode(err)
		if code == response.ErrInternal {
			wsLog.Error().Err(err).Msg("Failed to open session")
		}
		conn.WriteError("", code, nil)
		return
	}

	attempt, _ := sess.Attempt()
	if err := conn.WriteTyped(ws.SessionStartedResponse{
		Event:   ws.EventSessionStarted,
		Attempt: attempt,
		State:   sess.View(),
	}); err != nil {
		wsLog.Debug().Err(err).Msg("Client went away before start")
	}
	if snap, ok := sess.RecoverySnapshot(); ok {
		conn.WriteTyped(ws.RecoveryAvailableResponse{Event: ws.EventRecoveryAvailable, Snapshot: snap})
	}

	sess.SetSink(func(ev service.Event) {
		if err := conn.WriteTyped(toMessage(ev)); err != nil {
			wsLog.Debug().Err(err).Str("event", string(ev.Type)).Msg("Event write failed")
		}
	})

	runDone := make(chan error, 1)
	go func() { runDone <- sess.Run(ctx) }()

	wsLog.Info().Str("attempt_id", attempt.ID.String()).Msg("Session connected")

	for {
		data, err := conn.Read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.dispatch(ctx, sess, conn, wsLog, data)
	}

	sess.SetSink(nil)
	cancel()
	if err := <-runDone; err != nil {
		wsLog.Warn().Err(err).Msg("Session ended with error")
	}
	wsLog.Info().Msg("Session closed")
}

func toMessage(ev service.Event) interface{} {
	switch ev.Type {
	case service.EventFinished:
		if ev.Result != nil {
			return ws.FinishedResponse{Event: ws.EventFinished, Result: *ev.Result}
		}
	case service.EventExpired:
		return ws.StateResponse{Event: ws.EventExpired, State: ev.View}
	}
	return ws.StateResponse{Event: ws.EventState, State: ev.View}
}

// dispatch applies one client action. Rejected actions produce an error event
// and leave the session open.
func (h *SessionWSHandler) dispatch(ctx context.Context, sess *service.Session, conn *ws.Conn, wsLog zerolog.Logger, data []byte) {
	var env ws.RequestEnvelope
	if fields := validator.Decode(data, &env); fields != nil {
		conn.WriteError("", response.ErrInvalidPayload, fields)
		return
	}

	var err error
	switch env.Action {
	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if !decode(conn, env.Action, data, &req) {
			return
		}
		err = sess.Answer(req.QuestionID, req.AnswerID, req.AnswerAction)

	case ws.ActionFlag:
		var req ws.FlagRequest
		if !decode(conn, env.Action, data, &req) {
			return
		}
		err = sess.ToggleFlag(req.QuestionID)

	case ws.ActionGoto:
		var req ws.GotoRequest
		if !decode(conn, env.Action, data, &req) {
			return
		}
		err = sess.Goto(*req.Index)

	case ws.ActionNext:
		sess.Next()

	case ws.ActionPrev:
		sess.Prev()

	case ws.ActionPause:
		err = sess.Pause()

	case ws.ActionResume:
		err = sess.Resume()

	case ws.ActionKey:
		var req ws.KeyRequest
		if !decode(conn, env.Action, data, &req) {
			return
		}
		_, err = sess.Key(ctx, req.Event)

	case ws.ActionTouchStart:
		var req ws.TouchRequest
		if !decode(conn, env.Action, data, &req) {
			return
		}
		sess.TouchStart(req.Point, req.Touches)

	case ws.ActionTouchEnd:
		var req ws.TouchRequest
		if !decode(conn, env.Action, data, &req) {
			return
		}
		sess.TouchEnd(req.Point)

	case ws.ActionVisibility:
		var req ws.VisibilityRequest
		if !decode(conn, env.Action, data, &req) {
			return
		}
		sess.Visibility(ctx, req.Hidden)

	case ws.ActionDialog:
		var req ws.DialogRequest
		if !decode(conn, env.Action, data, &req) {
			return
		}
		sess.SetDialogOpen(req.Open)

	case ws.ActionRecover:
		err = sess.Recover()

	case ws.ActionDiscard:
		err = sess.Discard(ctx)

	case ws.ActionFinish:
		_, err = sess.Finish(ctx)

	case ws.ActionAbandon:
		err = sess.Abandon(ctx)

	case ws.ActionPing:
		conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	default:
		wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		conn.WriteError(env.Action, response.ErrUnknownAction, nil)
		return
	}

	if err != nil {
		_, code := errorCode(err)
		switch {
		case (env.Action == ws.ActionFinish || env.Action == ws.ActionKey) && code == response.ErrInternal:
			code = response.ErrSubmissionFailed
			wsLog.Warn().Err(err).Msg("Submission failed")
		case code == response.ErrInternal:
			wsLog.Error().Err(err).Str("action", string(env.Action)).Msg("Action failed")
		}
		conn.WriteError(env.Action, code, nil)
	}
}

func decode(conn *ws.Conn, action ws.Action, data []byte, dst interface{}) bool {
	if fields := validator.Decode(data, dst); fields != nil {
		conn.WriteError(action, response.ErrValidation, fields)
		return false
	}
	return true
}
