package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

// errorCode maps a service error onto an HTTP status and API error code.
func errorCode(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrTestNotFound):
		return http.StatusNotFound, response.ErrTestNotFound
	case errors.Is(err, service.ErrTestHasNoQuestions):
		return http.StatusConflict, response.ErrNoQuestions
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrAttemptClosed):
		return http.StatusConflict, response.ErrAttemptClosed
	case errors.Is(err, service.ErrNoActiveAttempt):
		return http.StatusConflict, response.ErrNoActiveAttempt
	case errors.Is(err, service.ErrUnknownQuestion):
		return http.StatusBadRequest, response.ErrUnknownQuestion
	case errors.Is(err, service.ErrUnknownAnswer):
		return http.StatusBadRequest, response.ErrUnknownAnswer
	case errors.Is(err, service.ErrInvalidAction):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, service.ErrNoRecovery):
		return http.StatusConflict, response.ErrNoRecovery
	case errors.Is(err, service.ErrFinishing):
		return http.StatusConflict, response.ErrSubmissionPending
	case errors.Is(err, service.ErrProgressNotFound):
		return http.StatusNotFound, response.ErrProgressNotFound
	case errors.Is(err, service.ErrShuttingDown):
		return http.StatusServiceUnavailable, response.ErrServiceUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
