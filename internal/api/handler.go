package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"venue-backend/internal/device"
	"venue-backend/internal/inventory"
	"venue-backend/internal/ledger"
	"venue-backend/internal/logging"
	"venue-backend/internal/order"
	"venue-backend/internal/store"
)

// Services are the core components the handlers call into.
type Services struct {
	Store     store.Store
	Devices   *device.Registry
	Inventory *inventory.Inventory
	Orders    *order.Processor
	Ledger    *ledger.Ledger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	devices   *device.Registry
	inventory *inventory.Inventory
	orders    *order.Processor
	ledger    *ledger.Ledger
	webpush   *webpush.Options
	log       *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc Services, webpushOptions *webpush.Options, log *zap.Logger) *Handler {
	return &Handler{
		store:     svc.Store,
		devices:   svc.Devices,
		inventory: svc.Inventory,
		orders:    svc.Orders,
		ledger:    svc.Ledger,
		webpush:   webpushOptions,
		log:       logging.OrNop(log),
	}
}
