package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc/codes"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-sls-ledger/pkg/ledgerapi"
)

type GrpcServer struct {
	ledgerapi.UnimplementedLedgerServiceServer
	ledger usecase.LedgerService
	logger *slog.Logger
}

func NewGrpcServer(ledger usecase.LedgerService, logger *slog.Logger) *GrpcServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrpcServer{
		ledger: ledger,
		logger: logger,
	}
}

func (s *GrpcServer) CreateAccount(ctx context.Context, req *ledgerapi.CreateAccountRequest) (*ledgerapi.CreateAccountResponse, error) {
	acct, err := s.ledger.CreateAccount(ctx, req.Name, req.Denomination)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &ledgerapi.CreateAccountResponse{ID: acct.ID}, nil
}

func (s *GrpcServer) GetAccount(ctx context.Context, req *ledgerapi.GetAccountRequest) (*ledgerapi.GetAccountResponse, error) {
	acct, err := s.ledger.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &ledgerapi.GetAccountResponse{Account: ledgerapi.Account{
		ID:           acct.ID,
		Name:         acct.Name,
		Denomination: acct.Denomination,
		Balance:      acct.Balance,
		InsertedAt:   acct.InsertedAt,
	}}, nil
}

func (s *GrpcServer) ListEntries(ctx context.Context, req *ledgerapi.ListEntriesRequest) (*ledgerapi.ListEntriesResponse, error) {
	entries, err := s.ledger.ListEntries(ctx, req.AccountID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	resp := &ledgerapi.ListEntriesResponse{Entries: make([]ledgerapi.Entry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, ledgerapi.Entry{
			ID:           e.ID,
			AccountID:    e.AccountID,
			TransferID:   e.TransferID,
			Amount:       e.Amount,
			Denomination: e.Denomination,
			Credit:       e.Credit,
			InsertedAt:   e.InsertedAt,
		})
	}
	return resp, nil
}

func (s *GrpcServer) Transfer(ctx context.Context, req *ledgerapi.TransferRequest) (*ledgerapi.TransferResponse, error) {
	// 與 HTTP 轉帳請求相同的帳戶 ID 長度限制
	if err := domain.ValidateExternalAccountID(req.DebtorAccountID); err != nil {
		return nil, s.toStatus(fmt.Errorf("debtor: %w", err))
	}
	if err := domain.ValidateExternalAccountID(req.CreditorAccountID); err != nil {
		return nil, s.toStatus(fmt.Errorf("creditor: %w", err))
	}
	res, err := s.ledger.Transfer(ctx, domain.TransferCommand{
		DebtorAccountID:   req.DebtorAccountID,
		CreditorAccountID: req.CreditorAccountID,
		Amount:            req.Amount,
		Denomination:      req.Denomination,
		IdempotencyKey:    req.IdempotencyKey,
	})
	if err != nil {
		return nil, s.toStatus(err)
	}
	resp := &ledgerapi.TransferResponse{TransferID: res.TransferID, Replayed: res.Replayed}
	for _, ref := range res.Entries() {
		resp.Transactions = append(resp.Transactions, ledgerapi.EntryRef{ID: ref.ID, Credit: ref.Credit})
	}
	return resp, nil
}

func (s *GrpcServer) Deposit(ctx context.Context, req *ledgerapi.DepositRequest) (*ledgerapi.DepositResponse, error) {
	res, err := s.ledger.Deposit(ctx, domain.DepositCommand{
		AccountID:      req.AccountID,
		Amount:         req.Amount,
		Denomination:   req.Denomination,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &ledgerapi.DepositResponse{
		TransferID:  res.TransferID,
		Transaction: ledgerapi.EntryRef{ID: res.Credit.ID, Credit: res.Credit.Credit},
		Replayed:    res.Replayed,
	}, nil
}

// toStatus 將帳本錯誤對應到 gRPC status code，並以 ErrorInfo 附上機器可讀的原因
func (s *GrpcServer) toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return ledgerapi.NewError(codes.InvalidArgument, ledgerapi.ReasonValidationFailed, err.Error(), nil)
	case errors.Is(err, domain.ErrTransferRejected):
		return ledgerapi.NewError(codes.FailedPrecondition, ledgerapi.ReasonTransferRejected, err.Error(),
			map[string]string{ledgerapi.MetadataRejectReason: string(domain.ReasonOf(err))})
	case errors.Is(err, domain.ErrAccountNotFound):
		return ledgerapi.NewError(codes.NotFound, ledgerapi.ReasonAccountNotFound, err.Error(), nil)
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		return ledgerapi.NewError(codes.AlreadyExists, ledgerapi.ReasonIdempotencyKeyReused, err.Error(), nil)
	case errors.Is(err, store.ErrConflict):
		return ledgerapi.NewError(codes.Aborted, ledgerapi.ReasonStoreConflict, "concurrent modification, retry", nil)
	case errors.Is(err, store.ErrUnavailable):
		return ledgerapi.NewError(codes.Unavailable, ledgerapi.ReasonStoreUnavailable, "ledger store unavailable, retry", nil)
	default:
		s.logger.Error("grpc: unexpected ledger error", "error", err)
		return ledgerapi.NewError(codes.Internal, ledgerapi.ReasonInternal, "internal error", nil)
	}
}
