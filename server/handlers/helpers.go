package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"venueatlas/database"
	apperrors "venueatlas/server/errors"
)

// SendJSON sends a JSON payload with the given status.
func SendJSON(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// SendError sends the standard error envelope and records the error on the
// gin context so the request logger sees it.
func SendError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// HandleServiceError maps service and store failures to HTTP statuses.
// Sentinel errors from the store carry the semantics; everything else is an
// internal error whose cause stays in the logs.
func HandleServiceError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		_ = c.Error(err)
		SendError(c, appErr.StatusCode(), appErr.Message)
	case errors.Is(err, database.ErrNotFound):
		SendError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrTerminalState):
		SendError(c, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrUnavailable):
		_ = c.Error(err)
		SendError(c, http.StatusServiceUnavailable, "venue store unavailable")
	default:
		_ = c.Error(err)
		SendError(c, http.StatusInternalServerError, "internal server error")
	}
}
