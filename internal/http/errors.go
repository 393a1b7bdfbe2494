package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"voice-match/internal/domain"
	"voice-match/internal/service"
)

// statusFor traduce errores del core a codigos HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrMatchesNotFound),
		errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrResponseMissing),
		errors.Is(err, domain.ErrSessionIncomplete),
		errors.Is(err, domain.ErrSessionComplete),
		errors.Is(err, domain.ErrSessionFinalized),
		errors.Is(err, domain.ErrAtStart):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCapabilityUnavailable),
		errors.Is(err, service.ErrNoCandidatePool),
		errors.Is(err, service.ErrIntakeNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error(op+" failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}
