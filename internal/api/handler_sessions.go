package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const maxSessionPage = 500

// ListSessions handles GET /api/sessions?device_id=&limit=.
func (h *Handler) ListSessions(c *gin.Context) {
	limit := maxSessionPage
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.badRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSessionPage)
	}
	sessions, err := h.ledger.List(c.Request.Context(), c.Query("device_id"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GetStats returns record counts per table.
func (h *Handler) GetStats(c *gin.Context) {
	counts, err := h.store.Counts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}
