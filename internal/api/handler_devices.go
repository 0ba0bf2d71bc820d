package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"venue-backend/internal/device"
	"venue-backend/internal/model"
)

type createDeviceRequest struct {
	Name        string  `json:"name" binding:"required"`
	Category    string  `json:"category" binding:"required"`
	DuoRate     float64 `json:"duo_rate"`
	MultiRate   float64 `json:"multi_rate"`
	SessionKind string  `json:"session_kind"`
}

type updateDeviceRequest struct {
	Name      *string  `json:"name"`
	Category  *string  `json:"category"`
	DuoRate   *float64 `json:"duo_rate"`
	MultiRate *float64 `json:"multi_rate"`
}

type sessionKindRequest struct {
	SessionKind string `json:"session_kind" binding:"required"`
}

func (h *Handler) ListDevices(c *gin.Context) {
	devices, err := h.devices.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (h *Handler) CreateDevice(c *gin.Context) {
	var req createDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	d, err := h.devices.Create(c.Request.Context(), device.NewDevice{
		Name:        req.Name,
		Category:    req.Category,
		DuoRate:     req.DuoRate,
		MultiRate:   req.MultiRate,
		SessionKind: model.SessionKind(strings.ToUpper(req.SessionKind)),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDevice(c *gin.Context) {
	d, err := h.devices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDevice(c *gin.Context) {
	var req updateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	d, err := h.devices.Update(c.Request.Context(), c.Param("id"), device.Patch{
		Name:      req.Name,
		Category:  req.Category,
		DuoRate:   req.DuoRate,
		MultiRate: req.MultiRate,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDevice(c *gin.Context) {
	if err := h.devices.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StartSession handles POST /api/devices/:id/start.
func (h *Handler) StartSession(c *gin.Context) {
	d, err := h.devices.StartSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// EndSession handles POST /api/devices/:id/end and returns the billed session.
func (h *Handler) EndSession(c *gin.Context) {
	sess, err := h.devices.EndSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) ResetDevice(c *gin.Context) {
	d, err := h.devices.ResetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) SetSessionKind(c *gin.Context) {
	var req sessionKindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "session_kind is required")
		return
	}
	kind := model.SessionKind(strings.ToUpper(req.SessionKind))
	d, err := h.devices.SetSessionKind(c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
