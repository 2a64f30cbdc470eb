package handler

import (
	"qrpay-gateway/internal/adapter/http/dto"
	"qrpay-gateway/internal/adapter/http/middleware"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/pkg/apperror"
	"qrpay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxIdempotencyKeyLen = 128

// PaymentHandler handles the money-moving endpoints.
type PaymentHandler struct {
	engine ports.TransactionEngine
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(engine ports.TransactionEngine) *PaymentHandler {
	return &PaymentHandler{engine: engine}
}

// ExecutePayment handles POST /api/v1/payments.
func (h *PaymentHandler) ExecutePayment(c *gin.Context) {
	var req dto.PaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.engine.ExecutePayment(c.Request.Context(), ports.PaymentRequest{
		OrderID: req.OrderID,
		PayerID: req.PayerID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// ExecuteTransfer handles POST /api/v1/transfers.
func (h *PaymentHandler) ExecuteTransfer(c *gin.Context) {
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.engine.ExecuteTransfer(c.Request.Context(), ports.TransferRequest{
		SenderID:              req.SenderID,
		ReceiverAccountNumber: req.ReceiverAccountNumber,
		Amount:                req.Amount,
		Message:               req.Message,
		IdempotencyKey:        key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// idempotencyKey reads the optional Idempotency-Key header.
func idempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetHeader(middleware.HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		response.Error(c, apperror.Validation("Idempotency-Key must be at most 128 characters"))
		return "", false
	}
	return key, true
}
