package handler

import (
	"errors"
	"io"

	"qrpay-gateway/internal/adapter/http/dto"
	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// OrderHandler handles merchant order endpoints.
type OrderHandler struct {
	orderSvc  ports.OrderService
	ledgerSvc ports.LedgerService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc ports.OrderService, ledgerSvc ports.LedgerService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc, ledgerSvc: ledgerSvc}
}

// Create handles POST /api/v1/orders.
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orderSvc.CreateOrder(c.Request.Context(), ports.CreateOrderRequest{
		MerchantID: req.MerchantID,
		Amount:     req.Amount,
		Kind:       domain.OrderKind(req.Kind),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// Get handles GET /api/v1/orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orderSvc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}

// Cancel handles POST /api/v1/orders/:id/cancel. The body is optional.
func (h *OrderHandler) Cancel(c *gin.Context) {
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, bindError(err))
		return
	}
	dto.SanitizeStruct(&req)

	order, err := h.orderSvc.FailOrder(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}

// History handles GET /api/v1/orders/:id/ledger.
func (h *OrderHandler) History(c *gin.Context) {
	entries, err := h.ledgerSvc.OrderHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}
