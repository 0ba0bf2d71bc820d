package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"venue-backend/internal/inventory"
)

type createSnackRequest struct {
	Name         string  `json:"name" binding:"required"`
	SellingPrice float64 `json:"selling_price"`
	Stock        int     `json:"stock"`
}

type updateSnackRequest struct {
	Name         *string  `json:"name"`
	SellingPrice *float64 `json:"selling_price"`
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) ListSnacks(c *gin.Context) {
	snacks, err := h.inventory.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snacks)
}

func (h *Handler) CreateSnack(c *gin.Context) {
	var req createSnackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	s, err := h.inventory.Create(c.Request.Context(), inventory.NewSnack{
		Name:         req.Name,
		SellingPrice: req.SellingPrice,
		Stock:        req.Stock,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) GetSnack(c *gin.Context) {
	s, err := h.inventory.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdateSnack(c *gin.Context) {
	var req updateSnackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	s, err := h.inventory.Update(c.Request.Context(), c.Param("id"), inventory.SnackPatch{
		Name:         req.Name,
		SellingPrice: req.SellingPrice,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// DeleteSnack handles DELETE /api/snacks/:id.
func (h *Handler) DeleteSnack(c *gin.Context) {
	if err := h.inventory.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AdjustStock handles POST /api/snacks/:id/stock.
func (h *Handler) AdjustStock(c *gin.Context) {
	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	s, err := h.inventory.AdjustStock(c.Request.Context(), c.Param("id"), req.Delta)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
