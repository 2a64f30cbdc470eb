package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/internal/metrics"
	"qrpay-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	wallets         ports.WalletStore
	transactor      ports.Transactor
	allocator       ports.AccountNumberAllocator
	startingBalance int64
	maxAttempts     int
	log             zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	wallets ports.WalletStore,
	transactor ports.Transactor,
	allocator ports.AccountNumberAllocator,
	startingBalance int64,
	registrationAttempts int,
	log zerolog.Logger,
) *WalletServiceImpl {
	if registrationAttempts < 1 {
		registrationAttempts = 1
	}
	return &WalletServiceImpl{
		wallets:         wallets,
		transactor:      transactor,
		allocator:       allocator,
		startingBalance: startingBalance,
		maxAttempts:     registrationAttempts,
		log:             log,
	}
}

// Register creates the owner's wallet with the starting balance, or returns
// the existing one. created is false when the wallet already existed.
func (s *WalletServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (_ *domain.Wallet, created bool, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(opRegister, outcomeOf(err), start) }()

	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.OwnerID == "" || req.DisplayName == "" {
		return nil, false, apperror.Validation("owner_id and display_name are required")
	}

	existing, err := s.wallets.Get(ctx, req.OwnerID)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if existing != nil {
		return existing, false, nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		accountNumber, err := s.allocator.Allocate(ctx)
		if err != nil {
			return nil, false, err
		}

		wallet, created, err := s.insert(ctx, req, accountNumber)
		if errors.Is(err, ports.ErrAccountNumberTaken) {
			s.log.Warn().Int("attempt", attempt).Str("account_number", accountNumber).Msg("account number taken at insert, reallocating")
			continue
		}
		if err != nil {
			return nil, false, atomicError(opRegister, err)
		}

		if created {
			s.log.Info().
				Str("owner_id", wallet.OwnerID).
				Str("account_number", wallet.AccountNumber).
				Int64("starting_balance", wallet.Balance).
				Msg("wallet registered")
		}
		return wallet, created, nil
	}

	return nil, false, apperror.ErrAllocationExhausted(s.maxAttempts)
}

// insert creates the wallet and its opening ledger entry in one unit. A wallet
// that appeared since the first lookup is returned instead.
func (s *WalletServiceImpl) insert(ctx context.Context, req ports.RegisterRequest, accountNumber string) (*domain.Wallet, bool, error) {
	var (
		wallet  *domain.Wallet
		created bool
	)
	err := s.transactor.RunAtomic(ctx, func(ctx context.Context, tx ports.Txn) error {
		wallet, created = nil, false

		current, err := tx.Wallet(ctx, req.OwnerID)
		if err != nil {
			return fmt.Errorf("read wallet: %w", err)
		}
		if current != nil {
			wallet = current
			return nil
		}

		now := time.Now().UTC()
		wallet = &domain.Wallet{
			OwnerID:       req.OwnerID,
			DisplayName:   req.DisplayName,
			BankName:      req.BankName,
			AccountNumber: accountNumber,
			Balance:       s.startingBalance,
			Currency:      domain.DefaultCurrency,
			CreatedAt:     now,
			UpdatedAt:     now,
			Version:       1,
		}
		tx.InsertWallet(wallet)

		if s.startingBalance > 0 {
			tx.AppendLedger(&domain.LedgerEntry{
				ID:         uuid.New(),
				OrderID:    domain.OpeningReference(req.OwnerID),
				FromWallet: domain.SystemAccount,
				ToWallet:   req.OwnerID,
				Amount:     s.startingBalance,
				Kind:       domain.LedgerKindOpeningBalance,
				Message:    "Opening balance",
				CreatedAt:  now,
			})
		}
		created = true
		return nil
	})
	return wallet, created, err
}

// GetWallet returns the owner's wallet or WALLET_NOT_FOUND.
func (s *WalletServiceImpl) GetWallet(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	wallet, err := s.wallets.Get(ctx, ownerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return wallet, nil
}

// ListWallets returns wallets newest first with the total count.
func (s *WalletServiceImpl) ListWallets(ctx context.Context, limit, offset int) ([]domain.Wallet, int64, error) {
	limit, offset = clampPage(limit, offset)
	wallets, total, err := s.wallets.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list wallets: %w", err))
	}
	return wallets, total, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
