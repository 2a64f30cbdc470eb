package handler

import (
	"qrpay-gateway/internal/adapter/http/dto"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet registration and lookup endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
	ledgerSvc ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService, ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc, ledgerSvc: ledgerSvc}
}

// Register handles POST /api/v1/wallets. Registering an existing owner
// returns the stored wallet with 200.
func (h *WalletHandler) Register(c *gin.Context) {
	var req dto.RegisterWalletRequest
	if !bindJSON(c, &req) {
		return
	}

	wallet, created, err := h.walletSvc.Register(c.Request.Context(), ports.RegisterRequest{
		OwnerID:     req.OwnerID,
		DisplayName: req.DisplayName,
		BankName:    req.BankName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if created {
		response.Created(c, wallet)
		return
	}
	response.OK(c, wallet)
}

// GetWallet handles GET /api/v1/wallets/:id.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	wallet, err := h.walletSvc.GetWallet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallet)
}

// History handles GET /api/v1/wallets/:id/ledger.
func (h *WalletHandler) History(c *gin.Context) {
	limit, offset, ok := bindPage(c)
	if !ok {
		return
	}

	entries, total, err := h.ledgerSvc.WalletHistory(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, entries, total, limit, offset)
}
