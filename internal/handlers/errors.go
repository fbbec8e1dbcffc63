package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fairdice-backend/internal/logger"
	"fairdice-backend/internal/services"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrInvalidStake),
		errors.Is(err, services.ErrInvalidSeed):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrInsufficientPairState),
		errors.Is(err, services.ErrNonceReuse),
		errors.Is(err, services.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status its sentinel maps to.
func respondError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.L().Error(message, "path", c.FullPath(), "error", err)
	}

	c.JSON(status, gin.H{
		"error":     message,
		"details":   err.Error(),
		"retryable": services.IsRetryable(err),
	})
}

func userID(c *gin.Context) string {
	return c.GetString("user_id")
}
