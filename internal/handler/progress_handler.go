package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
)

// ProgressHandler serves recovery snapshots and attempt history over REST.
type ProgressHandler struct {
	progress *service.ProgressService
	tests    *service.TestService
}

// NewProgressHandler creates a new ProgressHandler. tests may be nil when no
// attempt history is wired.
func NewProgressHandler(progress *service.ProgressService, tests *service.TestService) *ProgressHandler {
	return &ProgressHandler{progress: progress, tests: tests}
}

// GetProgress godoc
// GET /api/v1/tests/:test_id/progress
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	profileID, testID, ok := profileAndTest(c)
	if !ok {
		return
	}

	snap, err := h.progress.Get(c.Request.Context(), profileID, testID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// SaveProgress godoc
// PUT /api/v1/tests/:test_id/progress
func (h *ProgressHandler) SaveProgress(c *gin.Context) {
	profileID, testID, ok := profileAndTest(c)
	if !ok {
		return
	}

	var req model.SaveProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, err := h.progress.Save(c.Request.Context(), profileID, testID, &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// DeleteProgress godoc
// DELETE /api/v1/tests/:test_id/progress
func (h *ProgressHandler) DeleteProgress(c *gin.Context) {
	profileID, testID, ok := profileAndTest(c)
	if !ok {
		return
	}

	if err := h.progress.Delete(c.Request.Context(), profileID, testID); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// ListAttempts godoc
// GET /api/v1/attempts?page=1&per_page=10
func (h *ProgressHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	if h.tests == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
		return
	}

	attempts, err := h.tests.ListAttempts(c.Request.Context(), claims.ProfileID)
	if err != nil {
		h.fail(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	pagination, start, end := response.Paginate(page, perPage, len(attempts))

	response.SuccessWithPagination(c, http.StatusOK, attempts[start:end], pagination)
}

func (h *ProgressHandler) fail(c *gin.Context, err error) {
	status, code := errorCode(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("Progress request failed")
	}
	response.Fail(c, status, code)
}

// profileAndTest extracts the caller's profile and the :test_id param, and
// writes the error response itself when either is missing.
func profileAndTest(c *gin.Context) (string, int64, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return "", 0, false
	}

	testID, err := strconv.ParseInt(c.Param("test_id"), 10, 64)
	if err != nil || testID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", 0, false
	}
	return claims.ProfileID, testID, true
}
