package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qrpay-gateway/internal/adapter/http/middleware"
	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/internal/core/ports/mocks"
	"qrpay-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func jsonContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

// --- Wallet Handler Tests ---

func TestRegisterWallet(t *testing.T) {
	tests := []struct {
		name       string
		created    bool
		wantStatus int
	}{
		{"new wallet", true, http.StatusCreated},
		{"existing wallet", false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			walletSvc := mocks.NewMockWalletService(ctrl)
			h := NewWalletHandler(walletSvc, mocks.NewMockLedgerService(ctrl))

			walletSvc.EXPECT().Register(gomock.Any(), ports.RegisterRequest{
				OwnerID:     "user-001",
				DisplayName: "Nguyen Van A",
				BankName:    "QR Bank",
			}).Return(&domain.Wallet{OwnerID: "user-001", AccountNumber: "12345678", Balance: 1_000_000}, tt.created, nil)

			c, w := jsonContext(http.MethodPost, "/api/v1/wallets",
				`{"owner_id":"user-001","display_name":" Nguyen Van A ","bank_name":"QR Bank"}`)
			h.Register(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			data := decodeData(t, w)
			assert.Equal(t, "12345678", data["account_number"])
			assert.NotContains(t, data, "version")
		})
	}
}

func TestRegisterWallet_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewWalletHandler(mocks.NewMockWalletService(ctrl), mocks.NewMockLedgerService(ctrl))

	for _, body := range []string{`{}`, `{"owner_id":"bad id!","display_name":"x"}`, `not json`} {
		c, w := jsonContext(http.MethodPost, "/api/v1/wallets", body)
		h.Register(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, apperror.CodeInvalidRequest, errorCode(t, w))
	}
}

func TestGetWallet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	walletSvc := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(walletSvc, mocks.NewMockLedgerService(ctrl))

	walletSvc.EXPECT().GetWallet(gomock.Any(), "ghost").Return(nil, apperror.ErrWalletNotFound())

	c, w := jsonContext(http.MethodGet, "/api/v1/wallets/ghost", "")
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}
	h.GetWallet(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeWalletNotFound, errorCode(t, w))
}

func TestWalletHistory_Paging(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerSvc := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mocks.NewMockWalletService(ctrl), ledgerSvc)

	entries := []domain.LedgerEntry{{ID: uuid.New(), FromWallet: "a", ToWallet: "b", Amount: 10, Kind: domain.LedgerKindP2P}}
	ledgerSvc.EXPECT().WalletHistory(gomock.Any(), "a", 5, 10).Return(entries, int64(11), nil)

	c, w := jsonContext(http.MethodGet, "/api/v1/wallets/a/ledger?limit=5&offset=10", "")
	c.Params = gin.Params{{Key: "id", Value: "a"}}
	h.History(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	meta := data["meta"].(map[string]interface{})
	assert.Equal(t, float64(11), meta["total"])
	assert.Len(t, data["items"], 1)
}

func TestWalletHistory_DefaultsAndBadQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerSvc := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mocks.NewMockWalletService(ctrl), ledgerSvc)

	ledgerSvc.EXPECT().WalletHistory(gomock.Any(), "a", defaultPageLimit, 0).Return(nil, int64(0), nil)

	c, w := jsonContext(http.MethodGet, "/api/v1/wallets/a/ledger", "")
	c.Params = gin.Params{{Key: "id", Value: "a"}}
	h.History(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = jsonContext(http.MethodGet, "/api/v1/wallets/a/ledger?limit=500", "")
	c.Params = gin.Params{{Key: "id", Value: "a"}}
	h.History(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Order Handler Tests ---

func TestCreateOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc, mocks.NewMockLedgerService(ctrl))

	orderSvc.EXPECT().CreateOrder(gomock.Any(), ports.CreateOrderRequest{
		MerchantID: "shop-1",
		Amount:     50_000,
		Kind:       domain.OrderKindReward,
	}).Return(&domain.Order{ID: "o-1", MerchantID: "shop-1", Amount: 50_000, Kind: domain.OrderKindReward, Status: domain.OrderStatusPending}, nil)

	c, w := jsonContext(http.MethodPost, "/api/v1/orders", `{"merchant_id":"shop-1","amount":50000,"kind":"reward"}`)
	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "PENDING", data["status"])
}

func TestCreateOrder_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewOrderHandler(mocks.NewMockOrderService(ctrl), mocks.NewMockLedgerService(ctrl))

	for _, body := range []string{
		`{"merchant_id":"shop-1","amount":0}`,
		`{"merchant_id":"shop-1","amount":-5}`,
		`{"merchant_id":"shop-1","amount":10,"kind":"refund"}`,
	} {
		c, w := jsonContext(http.MethodPost, "/api/v1/orders", body)
		h.Create(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestCancelOrder(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		reason     string
		err        error
		wantStatus int
	}{
		{"no body", "", "", nil, http.StatusOK},
		{"with reason", `{"reason":"customer left"}`, "customer left", nil, http.StatusOK},
		{"already completed", "", "", apperror.ErrOrderAlreadyProcessed("completed"), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			orderSvc := mocks.NewMockOrderService(ctrl)
			h := NewOrderHandler(orderSvc, mocks.NewMockLedgerService(ctrl))

			if tt.err != nil {
				orderSvc.EXPECT().FailOrder(gomock.Any(), "o-1", tt.reason).Return(nil, tt.err)
			} else {
				orderSvc.EXPECT().FailOrder(gomock.Any(), "o-1", tt.reason).
					Return(&domain.Order{ID: "o-1", Status: domain.OrderStatusFailed}, nil)
			}

			c, w := jsonContext(http.MethodPost, "/api/v1/orders/o-1/cancel", tt.body)
			c.Params = gin.Params{{Key: "id", Value: "o-1"}}
			h.Cancel(c)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestOrderHistory(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerSvc := mocks.NewMockLedgerService(ctrl)
	h := NewOrderHandler(mocks.NewMockOrderService(ctrl), ledgerSvc)

	ledgerSvc.EXPECT().OrderHistory(gomock.Any(), "o-1").Return([]domain.LedgerEntry{{OrderID: "o-1", Amount: 10}}, nil)

	c, w := jsonContext(http.MethodGet, "/api/v1/orders/o-1/ledger", "")
	c.Params = gin.Params{{Key: "id", Value: "o-1"}}
	h.History(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"order_id":"o-1"`)
}

// --- Payment Handler Tests ---

func TestExecutePayment(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockTransactionEngine(ctrl)
	h := NewPaymentHandler(engine)

	entryID := uuid.New()
	engine.EXPECT().ExecutePayment(gomock.Any(), ports.PaymentRequest{OrderID: "o-1", PayerID: "user-001"}).
		Return(&ports.PaymentResult{OrderID: "o-1", NewBalance: 500_000, PointsEarned: 50, LedgerEntryID: entryID}, nil)

	c, w := jsonContext(http.MethodPost, "/api/v1/payments", `{"order_id":"o-1","payer_id":"user-001"}`)
	h.ExecutePayment(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(500_000), data["new_balance"])
	assert.Equal(t, float64(50), data["points_earned"])
	assert.Equal(t, entryID.String(), data["ledger_entry_id"])
}

func TestExecutePayment_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"order not found", apperror.ErrOrderNotFound(), http.StatusNotFound, apperror.CodeOrderNotFound},
		{"insufficient funds", apperror.ErrInsufficientFunds(1, 2), http.StatusPaymentRequired, apperror.CodeInsufficientFunds},
		{"conflict", apperror.ErrConflict(errors.New("busy")), http.StatusConflict, apperror.CodeTxConflict},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, apperror.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			engine := mocks.NewMockTransactionEngine(ctrl)
			h := NewPaymentHandler(engine)

			engine.EXPECT().ExecutePayment(gomock.Any(), gomock.Any()).Return(nil, tt.err)

			c, w := jsonContext(http.MethodPost, "/api/v1/payments", `{"order_id":"o-1","payer_id":"user-001"}`)
			h.ExecutePayment(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}
}

func TestExecuteTransfer_PassesIdempotencyKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockTransactionEngine(ctrl)
	h := NewPaymentHandler(engine)

	engine.EXPECT().ExecuteTransfer(gomock.Any(), ports.TransferRequest{
		SenderID:              "user-001",
		ReceiverAccountNumber: "87654321",
		Amount:                100_000,
		Message:               "lunch",
		IdempotencyKey:        "key-1",
	}).Return(&ports.TransferResult{NewBalance: 900_000, ReceiverName: "B", ReceiverID: "user-002"}, nil)

	c, w := jsonContext(http.MethodPost, "/api/v1/transfers",
		`{"sender_id":"user-001","receiver_account_number":"87654321","amount":100000,"message":"lunch"}`)
	c.Request.Header.Set(middleware.HeaderIdempotencyKey, "key-1")
	h.ExecuteTransfer(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-002", decodeData(t, w)["receiver_id"])
}

func TestExecuteTransfer_RejectsLongIdempotencyKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewPaymentHandler(mocks.NewMockTransactionEngine(ctrl))

	c, w := jsonContext(http.MethodPost, "/api/v1/transfers",
		`{"sender_id":"user-001","receiver_account_number":"87654321","amount":1}`)
	c.Request.Header.Set(middleware.HeaderIdempotencyKey, strings.Repeat("k", 200))
	h.ExecuteTransfer(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecuteTransfer_BadAccountNumber(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewPaymentHandler(mocks.NewMockTransactionEngine(ctrl))

	c, w := jsonContext(http.MethodPost, "/api/v1/transfers",
		`{"sender_id":"user-001","receiver_account_number":"12ab","amount":1}`)
	h.ExecuteTransfer(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Admin Handler Tests ---

func TestAdjustBalance(t *testing.T) {
	ctrl := gomock.NewController(t)
	adjust := mocks.NewMockAdjustmentEngine(ctrl)
	h := NewAdminHandler(adjust, mocks.NewMockWalletService(ctrl), mocks.NewMockLedgerService(ctrl))

	adjust.EXPECT().AdjustBalance(gomock.Any(), ports.AdjustmentRequest{
		TargetID:       "user-001",
		Delta:          -200_000,
		Reason:         "chargeback",
		AdminID:        "ops-1",
		IdempotencyKey: "adj-1",
	}).Return(&ports.AdjustmentResult{NewBalance: 800_000, PreviousBalance: 1_000_000}, nil)

	c, w := jsonContext(http.MethodPost, "/api/v1/admin/adjustments",
		`{"target_id":"user-001","amount":-200000,"reason":"chargeback"}`)
	c.Request.Header.Set(middleware.HeaderIdempotencyKey, "adj-1")
	c.Set(middleware.CtxAdminID, "ops-1")
	h.AdjustBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(1_000_000), data["previous_balance"])
}

func TestAdjustBalance_RequiresAdmin(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewAdminHandler(mocks.NewMockAdjustmentEngine(ctrl), mocks.NewMockWalletService(ctrl), mocks.NewMockLedgerService(ctrl))

	c, w := jsonContext(http.MethodPost, "/api/v1/admin/adjustments", `{"target_id":"user-001","amount":1}`)
	h.AdjustBalance(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSetPoints(t *testing.T) {
	ctrl := gomock.NewController(t)
	adjust := mocks.NewMockAdjustmentEngine(ctrl)
	h := NewAdminHandler(adjust, mocks.NewMockWalletService(ctrl), mocks.NewMockLedgerService(ctrl))

	adjust.EXPECT().SetPoints(gomock.Any(), "user-001", int64(0)).
		Return(&domain.Wallet{OwnerID: "user-001", LoyaltyPoints: 0}, nil)

	c, w := jsonContext(http.MethodPut, "/api/v1/admin/wallets/user-001/points", `{"points":0}`)
	c.Params = gin.Params{{Key: "id", Value: "user-001"}}
	h.SetPoints(c)
	assert.Equal(t, http.StatusOK, w.Code)

	for _, body := range []string{`{}`, `{"points":-1}`} {
		c, w = jsonContext(http.MethodPut, "/api/v1/admin/wallets/user-001/points", body)
		c.Params = gin.Params{{Key: "id", Value: "user-001"}}
		h.SetPoints(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestListWalletsAndReconcile(t *testing.T) {
	ctrl := gomock.NewController(t)
	walletSvc := mocks.NewMockWalletService(ctrl)
	ledgerSvc := mocks.NewMockLedgerService(ctrl)
	h := NewAdminHandler(mocks.NewMockAdjustmentEngine(ctrl), walletSvc, ledgerSvc)

	walletSvc.EXPECT().ListWallets(gomock.Any(), 2, 0).
		Return([]domain.Wallet{{OwnerID: "a"}, {OwnerID: "b"}}, int64(3), nil)
	ledgerSvc.EXPECT().Reconcile(gomock.Any()).
		Return(&ports.Reconciliation{WalletTotal: 10, SystemNet: 10, Balanced: true, CheckedAt: time.Now()}, nil)

	c, w := jsonContext(http.MethodGet, "/api/v1/admin/wallets?limit=2", "")
	h.ListWallets(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData(t, w)["items"], 2)

	c, w = jsonContext(http.MethodGet, "/api/v1/admin/reconciliation", "")
	h.Reconcile(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, w)["balanced"])
}

func TestStoredResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerSvc := mocks.NewMockLedgerService(ctrl)
	h := NewAdminHandler(mocks.NewMockAdjustmentEngine(ctrl), mocks.NewMockWalletService(ctrl), ledgerSvc)
	entryID := uuid.New()

	ledgerSvc.EXPECT().StoredResult(gomock.Any(), "transfer", "user-001", "t-1").
		Return(&domain.IdempotencyRecord{
			Key:           "transfer:user-001:t-1",
			LedgerEntryID: entryID,
			Response:      []byte(`{"new_balance":900}`),
			CreatedAt:     time.Now().UTC(),
		}, nil)
	ledgerSvc.EXPECT().StoredResult(gomock.Any(), "transfer", "user-001", "t-2").
		Return(nil, apperror.ErrReplayNotFound())

	params := func(key string) gin.Params {
		return gin.Params{{Key: "scope", Value: "transfer"}, {Key: "caller", Value: "user-001"}, {Key: "key", Value: key}}
	}

	c, w := jsonContext(http.MethodGet, "/api/v1/admin/idempotency/transfer/user-001/t-1", "")
	c.Params = params("t-1")
	h.StoredResult(c)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, entryID.String(), data["ledger_entry_id"])
	assert.Equal(t, map[string]interface{}{"new_balance": float64(900)}, data["result"])

	c, w = jsonContext(http.MethodGet, "/api/v1/admin/idempotency/transfer/user-001/t-2", "")
	c.Params = params("t-2")
	h.StoredResult(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeReplayNotFound, errorCode(t, w))
}

// --- Health Check Test ---

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Name() string { return f.name }

func (f fakeChecker) Ping(ctx context.Context) error { return f.err }

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(fakeChecker{name: "postgres"})(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", bytes.NewReader(nil))

	HealthCheck(fakeChecker{name: "postgres"}, fakeChecker{name: "redis", err: errors.New("dial tcp: refused")})(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
	assert.Contains(t, w.Body.String(), "refused")
}
