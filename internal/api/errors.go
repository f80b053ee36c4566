package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"newsbot/internal/automation"
	"newsbot/internal/newsletter"
	"newsbot/internal/publish"
	"newsbot/internal/schedule"
	"newsbot/internal/storage"
	"newsbot/internal/task/engine"
	logx "newsbot/pkg/logx"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		fe *automation.FetchError
		ge *automation.GenerationError
		pe *automation.PublishError
	)
	switch {
	case schedule.IsValidation(err), errors.Is(err, automation.ErrNoSource):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, newsletter.ErrInvalidToken):
		return http.StatusForbidden
	case errors.Is(err, newsletter.ErrInvalidState), errors.Is(err, engine.ErrOverlapSkip):
		return http.StatusConflict
	case errors.Is(err, newsletter.ErrNothingToAssemble):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrQueueFull), errors.Is(err, engine.ErrStopped), errors.Is(err, engine.ErrStopping):
		return http.StatusServiceUnavailable
	case errors.As(err, &pe) && errors.Is(err, publish.ErrNotConfigured):
		return http.StatusBadRequest
	case errors.As(err, &fe), errors.As(err, &ge), errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Error(msg, logx.String("path", c.FullPath()), logx.Err(err))
		_ = c.Error(err)
		c.JSON(code, gin.H{"error": msg})
		return
	}
	h.log.Debug(msg, logx.String("path", c.FullPath()), logx.Err(err))
	c.JSON(code, gin.H{"error": msg, "details": err.Error()})
}
