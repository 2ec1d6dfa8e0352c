// README: Shared handler utilities: JSON helpers and domain error mapping.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripguard/internal/modules/appeal"
	"tripguard/internal/modules/deviation"
	"tripguard/internal/modules/dispute"
	"tripguard/internal/modules/earlycomp"
	"tripguard/internal/modules/emergency"
	"tripguard/internal/modules/profile"
	"tripguard/internal/modules/session"
	"tripguard/internal/modules/speed"
	"tripguard/internal/modules/strike"
	"tripguard/internal/modules/suspension"
	"tripguard/internal/modules/violation"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

var (
	badRequestErrs = []error{
		violation.ErrBadRequest, strike.ErrBadRequest, suspension.ErrBadRequest,
		appeal.ErrBadRequest, dispute.ErrBadRequest, emergency.ErrBadRequest,
		earlycomp.ErrBadRequest, profile.ErrBadRequest,
	}
	notFoundErrs = []error{
		violation.ErrNotFound, strike.ErrNotFound, suspension.ErrNotFound,
		appeal.ErrNotFound, dispute.ErrNotFound, emergency.ErrNotFound,
		earlycomp.ErrNotFound, deviation.ErrNotFound, speed.ErrNotFound,
		profile.ErrNotFound, session.ErrNoSession,
	}
	conflictErrs = []error{
		violation.ErrInvalidState, strike.ErrInvalidState, suspension.ErrInvalidState,
		appeal.ErrInvalidState, dispute.ErrInvalidState, emergency.ErrInvalidState,
		earlycomp.ErrInvalidState, appeal.ErrDuplicate, session.ErrSessionExists,
		violation.ErrConflict, strike.ErrConflict, suspension.ErrConflict,
		appeal.ErrConflict, dispute.ErrConflict, profile.ErrConflict,
	}
)

// writeDomainError maps module sentinel errors onto HTTP statuses.
func writeDomainError(c *gin.Context, err error) {
	for _, target := range badRequestErrs {
		if errors.Is(err, target) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	for _, target := range notFoundErrs {
		if errors.Is(err, target) {
			writeError(c, http.StatusNotFound, err.Error())
			return
		}
	}
	for _, target := range conflictErrs {
		if errors.Is(err, target) {
			writeError(c, http.StatusConflict, err.Error())
			return
		}
	}
	writeError(c, http.StatusInternalServerError, "internal error")
}
