package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createOrderRequest struct {
	SnackID  string `json:"snack_id" binding:"required"`
	Quantity int    `json:"quantity"`
	DeviceID string `json:"device_id"`
}

type addItemRequest struct {
	SnackID  string `json:"snack_id" binding:"required"`
	Quantity *int   `json:"quantity"`
}

func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// CreateOrder handles POST /api/orders. A device_id makes it an in-device order.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "snack_id is required")
		return
	}
	o, err := h.orders.CreateOrder(c.Request.Context(), req.SnackID, req.Quantity, req.DeviceID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// AddOrderItem handles POST /api/orders/:id/items.
func (h *Handler) AddOrderItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "snack_id is required")
		return
	}
	o, err := h.orders.AddItem(c.Request.Context(), c.Param("id"), req.SnackID, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// CancelOrder handles DELETE /api/orders/:id.
func (h *Handler) CancelOrder(c *gin.Context) {
	if err := h.orders.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
