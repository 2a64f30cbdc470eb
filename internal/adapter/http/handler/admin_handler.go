package handler

import (
	"encoding/json"

	"qrpay-gateway/internal/adapter/http/dto"
	"qrpay-gateway/internal/adapter/http/middleware"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/pkg/apperror"
	"qrpay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler handles the privileged endpoints behind AdminAuth.
type AdminHandler struct {
	adjustments ports.AdjustmentEngine
	walletSvc   ports.WalletService
	ledgerSvc   ports.LedgerService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adjustments ports.AdjustmentEngine, walletSvc ports.WalletService, ledgerSvc ports.LedgerService) *AdminHandler {
	return &AdminHandler{adjustments: adjustments, walletSvc: walletSvc, ledgerSvc: ledgerSvc}
}

// AdjustBalance handles POST /api/v1/admin/adjustments.
func (h *AdminHandler) AdjustBalance(c *gin.Context) {
	adminID := c.GetString(middleware.CtxAdminID)
	if adminID == "" {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	var req dto.AdjustmentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.adjustments.AdjustBalance(c.Request.Context(), ports.AdjustmentRequest{
		TargetID:       req.TargetID,
		Delta:          req.Amount,
		Reason:         req.Reason,
		AdminID:        adminID,
		IdempotencyKey: key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// SetPoints handles PUT /api/v1/admin/wallets/:id/points.
func (h *AdminHandler) SetPoints(c *gin.Context) {
	var req dto.SetPointsRequest
	if !bindJSON(c, &req) {
		return
	}

	wallet, err := h.adjustments.SetPoints(c.Request.Context(), c.Param("id"), *req.Points)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallet)
}

// ListWallets handles GET /api/v1/admin/wallets.
func (h *AdminHandler) ListWallets(c *gin.Context) {
	limit, offset, ok := bindPage(c)
	if !ok {
		return
	}

	wallets, total, err := h.walletSvc.ListWallets(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, wallets, total, limit, offset)
}

// Reconcile handles GET /api/v1/admin/reconciliation.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	rec, err := h.ledgerSvc.Reconcile(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// StoredResult handles GET /api/v1/admin/idempotency/:scope/:caller/:key.
func (h *AdminHandler) StoredResult(c *gin.Context) {
	rec, err := h.ledgerSvc.StoredResult(c.Request.Context(), c.Param("scope"), c.Param("caller"), c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.StoredResultResponse{
		Key:           rec.Key,
		LedgerEntryID: rec.LedgerEntryID,
		Result:        json.RawMessage(rec.Response),
		CreatedAt:     rec.CreatedAt,
	})
}
