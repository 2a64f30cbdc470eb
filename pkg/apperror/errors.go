package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how callers should react to it.
type Kind string

const (
	// KindNotFound: a referenced order/wallet/account does not exist. Terminal.
	KindNotFound Kind = "not_found"
	// KindInvariant: the request would break a ledger rule. Terminal for the same inputs.
	KindInvariant Kind = "invariant"
	// KindValidation: malformed input rejected before touching state.
	KindValidation Kind = "validation"
	// KindConflict: optimistic commit kept colliding. Safe to retry.
	KindConflict Kind = "conflict"
	// KindExhausted: a bounded resource (e.g. account numbers) ran out.
	KindExhausted Kind = "exhausted"
	// KindUnauthorized: the caller may not perform the operation.
	KindUnauthorized Kind = "unauthorized"
	// KindInternal: unexpected infrastructure failure.
	KindInternal Kind = "internal"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	Kind       Kind   `json:"-"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether resubmitting the same request may succeed.
func (e *AppError) Retryable() bool {
	return e.Kind == KindConflict
}

// New creates a new AppError.
func New(code string, kind Kind, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, kind Kind, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// CodeOf returns the code of err if it is (or wraps) an AppError, "" otherwise.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Stable error codes.
const (
	CodeOrderNotFound          = "ORDER_NOT_FOUND"
	CodeOrderAlreadyProcessed  = "ORDER_ALREADY_PROCESSED"
	CodePayerWalletNotFound    = "PAYER_WALLET_NOT_FOUND"
	CodeMerchantWalletNotFound = "MERCHANT_WALLET_NOT_FOUND"
	CodeInsufficientFunds      = "INSUFFICIENT_FUNDS"
	CodeReceiverNotFound       = "RECEIVER_NOT_FOUND"
	CodeSelfTransferForbidden  = "SELF_TRANSFER_FORBIDDEN"
	CodeSenderNotFound         = "SENDER_NOT_FOUND"
	CodeInvalidAmount          = "INVALID_AMOUNT"
	CodeWalletNotFound         = "WALLET_NOT_FOUND"
	CodeReplayNotFound         = "IDEMPOTENCY_RECORD_NOT_FOUND"
	CodeInsufficientBalance    = "INSUFFICIENT_BALANCE"
	CodeAllocationExhausted    = "ALLOCATION_EXHAUSTED"
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeTxConflict             = "TX_CONFLICT"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeForbidden              = "FORBIDDEN"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodePayloadTooLarge        = "PAYLOAD_TOO_LARGE"
	CodeInternal               = "INTERNAL_ERROR"
)

// ---- Not found ----

func ErrOrderNotFound() *AppError {
	return New(CodeOrderNotFound, KindNotFound, "Order not found", http.StatusNotFound)
}

func ErrPayerWalletNotFound() *AppError {
	return New(CodePayerWalletNotFound, KindNotFound, "Payer wallet not found", http.StatusNotFound)
}

func ErrMerchantWalletNotFound() *AppError {
	return New(CodeMerchantWalletNotFound, KindNotFound, "Merchant wallet not found", http.StatusNotFound)
}

func ErrReceiverNotFound() *AppError {
	return New(CodeReceiverNotFound, KindNotFound, "Receiver account not found", http.StatusNotFound)
}

func ErrSenderNotFound() *AppError {
	return New(CodeSenderNotFound, KindNotFound, "Sender wallet not found", http.StatusNotFound)
}

func ErrWalletNotFound() *AppError {
	return New(CodeWalletNotFound, KindNotFound, "Wallet not found", http.StatusNotFound)
}

func ErrReplayNotFound() *AppError {
	return New(CodeReplayNotFound, KindNotFound, "No result stored for this idempotency key", http.StatusNotFound)
}

// ---- Ledger invariants ----

// ErrOrderAlreadyProcessed reports the order's current terminal status.
func ErrOrderAlreadyProcessed(status string) *AppError {
	return New(CodeOrderAlreadyProcessed, KindInvariant,
		fmt.Sprintf("Order has already been %s", status), http.StatusConflict)
}

func ErrInsufficientFunds(balance, required int64) *AppError {
	return New(CodeInsufficientFunds, KindInvariant,
		fmt.Sprintf("Insufficient funds. Balance: %d, Required: %d", balance, required),
		http.StatusPaymentRequired)
}

func ErrInsufficientBalance(balance, delta int64) *AppError {
	return New(CodeInsufficientBalance, KindInvariant,
		fmt.Sprintf("Insufficient balance. Current: %d, Adjustment: %d", balance, delta),
		http.StatusConflict)
}

func ErrSelfTransferForbidden() *AppError {
	return New(CodeSelfTransferForbidden, KindInvariant, "Cannot transfer to your own account", http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, KindInvariant, "Invalid amount", http.StatusBadRequest)
}

// ---- Capacity ----

func ErrAllocationExhausted(attempts int) *AppError {
	return New(CodeAllocationExhausted, KindExhausted,
		fmt.Sprintf("No unique account number found after %d attempts", attempts),
		http.StatusServiceUnavailable)
}

// ---- Concurrency ----

// ErrConflict is returned once the store gave up retrying an optimistic commit.
func ErrConflict(err error) *AppError {
	return Wrap(CodeTxConflict, KindConflict, "Concurrent update detected, please retry", http.StatusConflict, err)
}

// ---- Access ----

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, KindUnauthorized, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(CodeForbidden, KindUnauthorized, "Admin role required", http.StatusForbidden)
}

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, KindConflict, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System ----

// InternalError wraps an internal error as an INTERNAL_ERROR.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, KindInternal, "Internal server error", http.StatusInternalServerError, err)
}

func ErrPayloadTooLarge(limit int64) *AppError {
	return New(CodePayloadTooLarge, KindValidation,
		fmt.Sprintf("Request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
}

// Validation returns an INVALID_REQUEST error with message.
func Validation(message string) *AppError {
	return New(CodeInvalidRequest, KindValidation, message, http.StatusBadRequest)
}
