package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"venue-backend/internal/apperr"
	"venue-backend/internal/logging"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindBadRequest:      http.StatusBadRequest,
	apperr.KindInvalidInterval: http.StatusBadRequest,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindInvalidState:    http.StatusConflict,
	apperr.KindConflict:        http.StatusConflict,
	apperr.KindOutOfStock:      http.StatusUnprocessableEntity,
}

// respondError renders err as {"error", "code"}. Errors without a kind are
// logged and reported as an opaque internal error.
func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	kind := apperr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		logging.FromContext(c.Request.Context(), h.log).Error("request failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "INTERNAL"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err), "code": string(kind)})
}

func (h *Handler) badRequest(c *gin.Context, msg string) {
	h.respondError(c, apperr.BadRequest("%s", msg))
}
