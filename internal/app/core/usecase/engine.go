package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/repository"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
)

// DefaultOpTimeout 單次操作等待 store 提交的上限
const DefaultOpTimeout = 3 * time.Second

// PostCommitTimeout 提交後寫快取與發佈事件的上限，不佔用請求剩餘的時間
const PostCommitTimeout = 500 * time.Millisecond

// LedgerEngine 是唯一負責業務不變量的元件
// 本身無狀態，所有可變狀態都在 TransactionalStore，可被任意並發呼叫
type LedgerEngine struct {
	store     store.TransactionalStore
	accounts  *repository.AccountRepository
	entries   *repository.LedgerEntryRepository
	idem      *repository.IdempotencyRepository
	publisher EventPublisher
	cache     ReplayCache
	cacheTTL  time.Duration
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// Option 定義了 LedgerEngine 的配置選項函數
type Option func(*LedgerEngine)

// WithEventPublisher 設定提交後的事件發佈
func WithEventPublisher(p EventPublisher) Option {
	return func(e *LedgerEngine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithReplayCache 設定冪等重播快取與 TTL
func WithReplayCache(c ReplayCache, ttl time.Duration) Option {
	return func(e *LedgerEngine) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// WithLogger 設定 logger
func WithLogger(l *slog.Logger) Option {
	return func(e *LedgerEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTimeout 設定單次操作逾時
func WithTimeout(d time.Duration) Option {
	return func(e *LedgerEngine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock 設定時間來源 (測試用)
func WithClock(now func() time.Time) Option {
	return func(e *LedgerEngine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewLedgerEngine 建立 LedgerEngine，所有 repository 共用同一個 store
func NewLedgerEngine(st store.TransactionalStore, opts ...Option) *LedgerEngine {
	e := &LedgerEngine{
		store:     st,
		publisher: nopPublisher{},
		logger:    slog.Default(),
		timeout:   DefaultOpTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.accounts = repository.NewAccountRepository(st, e.now)
	e.entries = repository.NewLedgerEntryRepository(st, e.now)
	e.idem = repository.NewIdempotencyRepository(st, e.now)
	return e
}

// CreateAccount 建立餘額為 0 的帳戶
func (e *LedgerEngine) CreateAccount(ctx context.Context, name, denomination string) (domain.Account, error) {
	if err := domain.ValidateName(name); err != nil {
		return domain.Account{}, err
	}
	if err := domain.ValidateDenomination(denomination); err != nil {
		return domain.Account{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	acct, err := e.accounts.Create(ctx, name, denomination)
	if err != nil {
		return domain.Account{}, storeFailure(err)
	}
	e.logger.Info("account created", "account_id", acct.ID, "denomination", acct.Denomination)
	return acct, nil
}

// Transfer 從 debtor 轉帳到 creditor
//
// 不先讀後寫: 兩筆紀錄的新增與兩個帳戶的條件更新組成一組 ApplyAtomic 一次送出
//   - debtor: balance -= amount，條件 balance > amount 且 denomination == d (嚴格大於，轉到剛好 0 也會被拒絕)
//   - creditor: balance += amount，條件 denomination == d 且 balance <= MaxInt64 - amount
//
// 參數:
//
//	ctx: 上下文
//	cmd: 轉帳請求
//
// 回傳:
//
//	domain.TransferResult: 交易紀錄 ID (debit 在前，credit 在後)
//	error: ErrValidation / ErrTransferRejected / ErrIdempotencyKeyReused / store.ErrUnavailable / store.ErrConflict
func (e *LedgerEngine) Transfer(ctx context.Context, cmd domain.TransferCommand) (domain.TransferResult, error) {
	if err := cmd.Validate(); err != nil {
		return domain.TransferResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	fingerprint := cmd.Fingerprint()
	if rec, err := e.cachedReplay(ctx, cmd.IdempotencyKey, fingerprint); err != nil {
		return domain.TransferResult{}, err
	} else if rec != nil {
		return transferFromRecord(rec), nil
	}

	transferID := uuid.NewString()
	debit, putDebit := e.entries.NewEntry(cmd.DebtorAccountID, transferID, cmd.Amount, cmd.Denomination, false)
	credit, putCredit := e.entries.NewEntry(cmd.CreditorAccountID, transferID, cmd.Amount, cmd.Denomination, true)

	ops := []store.Operation{
		putDebit,
		store.Update{
			Key:          repository.AccountKey(cmd.DebtorAccountID),
			Condition:    store.All(store.BalanceGreaterThan(cmd.Amount), store.DenominationEquals(cmd.Denomination)),
			BalanceDelta: -cmd.Amount,
		},
		putCredit,
		store.Update{
			Key:          repository.AccountKey(cmd.CreditorAccountID),
			Condition:    creditCondition(cmd.Amount, cmd.Denomination),
			BalanceDelta: cmd.Amount,
		},
	}

	result := domain.TransferResult{TransferID: transferID, Debit: debit.Ref(), Credit: credit.Ref()}
	rec := repository.IdempotencyRecord{Fingerprint: fingerprint, TransferID: transferID, Entries: result.Entries()}
	if cmd.IdempotencyKey != "" {
		put, err := e.idem.NewRecord(cmd.IdempotencyKey, rec)
		if err != nil {
			return domain.TransferResult{}, err
		}
		ops = append(ops, put)
	}

	err := e.store.ApplyAtomic(ctx, ops)
	if errors.Is(err, store.ErrPreconditionFailed) {
		if replay, rerr := e.storedReplay(ctx, cmd.IdempotencyKey, fingerprint); rerr != nil || replay != nil {
			if rerr != nil {
				return domain.TransferResult{}, rerr
			}
			return transferFromRecord(replay), nil
		}
		reason := e.diagnoseTransfer(ctx, cmd)
		e.logger.Info("transfer rejected",
			"debtor", cmd.DebtorAccountID, "creditor", cmd.CreditorAccountID,
			"amount", cmd.Amount, "denomination", cmd.Denomination, "reason", reason)
		return domain.TransferResult{}, &domain.RejectionError{Reason: reason}
	}
	if err != nil {
		e.logger.Warn("transfer failed", "transfer_id", transferID, "error", err)
		return domain.TransferResult{}, storeFailure(err)
	}

	after, done := afterCommit(ctx)
	defer done()
	e.remember(after, cmd.IdempotencyKey, rec)
	e.publish(after, domain.TopicTransferCompleted, transferID, domain.TransferCompleted{
		TransferID:        transferID,
		DebtorAccountID:   cmd.DebtorAccountID,
		CreditorAccountID: cmd.CreditorAccountID,
		DebitEntryID:      debit.ID,
		CreditEntryID:     credit.ID,
		Amount:            cmd.Amount,
		Denomination:      cmd.Denomination,
		OccurredAt:        e.now(),
	})
	e.logger.Info("transfer committed", "transfer_id", transferID,
		"debtor", cmd.DebtorAccountID, "creditor", cmd.CreditorAccountID, "amount", cmd.Amount)
	return result, nil
}

// Deposit 入帳到單一帳戶，等同 Transfer 的 credit 那一半 (條件同 creditor)
func (e *LedgerEngine) Deposit(ctx context.Context, cmd domain.DepositCommand) (domain.DepositResult, error) {
	if err := cmd.Validate(); err != nil {
		return domain.DepositResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	fingerprint := cmd.Fingerprint()
	if rec, err := e.cachedReplay(ctx, cmd.IdempotencyKey, fingerprint); err != nil {
		return domain.DepositResult{}, err
	} else if rec != nil {
		return depositFromRecord(rec), nil
	}

	transferID := uuid.NewString()
	credit, putCredit := e.entries.NewEntry(cmd.AccountID, transferID, cmd.Amount, cmd.Denomination, true)
	ops := []store.Operation{
		putCredit,
		store.Update{
			Key:          repository.AccountKey(cmd.AccountID),
			Condition:    creditCondition(cmd.Amount, cmd.Denomination),
			BalanceDelta: cmd.Amount,
		},
	}

	result := domain.DepositResult{TransferID: transferID, Credit: credit.Ref()}
	rec := repository.IdempotencyRecord{Fingerprint: fingerprint, TransferID: transferID, Entries: []domain.EntryRef{credit.Ref()}}
	if cmd.IdempotencyKey != "" {
		put, err := e.idem.NewRecord(cmd.IdempotencyKey, rec)
		if err != nil {
			return domain.DepositResult{}, err
		}
		ops = append(ops, put)
	}

	err := e.store.ApplyAtomic(ctx, ops)
	if errors.Is(err, store.ErrPreconditionFailed) {
		if replay, rerr := e.storedReplay(ctx, cmd.IdempotencyKey, fingerprint); rerr != nil || replay != nil {
			if rerr != nil {
				return domain.DepositResult{}, rerr
			}
			return depositFromRecord(replay), nil
		}
		reason := e.diagnoseCredit(ctx, cmd.AccountID, cmd.Denomination, cmd.Amount)
		e.logger.Info("deposit rejected", "account_id", cmd.AccountID, "reason", reason)
		return domain.DepositResult{}, &domain.RejectionError{Reason: reason}
	}
	if err != nil {
		e.logger.Warn("deposit failed", "transfer_id", transferID, "error", err)
		return domain.DepositResult{}, storeFailure(err)
	}

	after, done := afterCommit(ctx)
	defer done()
	e.remember(after, cmd.IdempotencyKey, rec)
	e.publish(after, domain.TopicDepositCompleted, transferID, domain.DepositCompleted{
		TransferID:   transferID,
		AccountID:    cmd.AccountID,
		EntryID:      credit.ID,
		Amount:       cmd.Amount,
		Denomination: cmd.Denomination,
		OccurredAt:   e.now(),
	})
	e.logger.Info("deposit committed", "transfer_id", transferID, "account_id", cmd.AccountID, "amount", cmd.Amount)
	return result, nil
}

// GetAccount 讀取帳戶目前狀態
func (e *LedgerEngine) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return domain.Account{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	acct, err := e.accounts.Get(ctx, accountID)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Account{}, storeFailure(err)
	}
	return acct, err
}

// ListEntries 列出帳戶的交易紀錄 (依寫入順序)
func (e *LedgerEngine) ListEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	if _, err := e.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	entries, err := e.entries.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return entries, nil
}

// diagnoseTransfer 寫入失敗後讀取兩個帳戶判斷原因
// 讀取發生在 abort 之後，結果只可能過時，不會改變交易結果
func (e *LedgerEngine) diagnoseTransfer(ctx context.Context, cmd domain.TransferCommand) domain.RejectReason {
	debtor, err := e.accounts.Get(ctx, cmd.DebtorAccountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.RejectDebtorNotFound
	}
	if err != nil {
		return domain.RejectUnknown
	}
	creditor, err := e.accounts.Get(ctx, cmd.CreditorAccountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.RejectCreditorNotFound
	}
	if err != nil {
		return domain.RejectUnknown
	}
	if debtor.Denomination != cmd.Denomination || creditor.Denomination != cmd.Denomination {
		return domain.RejectDenominationMismatch
	}
	if debtor.Balance <= cmd.Amount {
		return domain.RejectInsufficientFunds
	}
	if creditor.Balance > math.MaxInt64-cmd.Amount {
		return domain.RejectBalanceLimit
	}
	// 讀取時條件已成立，代表失敗當下的狀態已被其他交易改變
	return domain.RejectUnknown
}

func (e *LedgerEngine) diagnoseCredit(ctx context.Context, accountID, denomination string, amount int64) domain.RejectReason {
	acct, err := e.accounts.Get(ctx, accountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.RejectCreditorNotFound
	}
	if err != nil {
		return domain.RejectUnknown
	}
	if acct.Denomination != denomination {
		return domain.RejectDenominationMismatch
	}
	if acct.Balance > math.MaxInt64-amount {
		return domain.RejectBalanceLimit
	}
	return domain.RejectUnknown
}

// creditCondition 入帳條件: 幣別相同，且入帳後餘額不超出 int64
func creditCondition(amount int64, denomination string) store.Condition {
	return store.All(store.DenominationEquals(denomination), store.BalanceAtMost(math.MaxInt64-amount))
}

// cachedReplay 先查快取，命中且內容相符時直接重播
func (e *LedgerEngine) cachedReplay(ctx context.Context, key, fingerprint string) (*repository.IdempotencyRecord, error) {
	if key == "" || e.cache == nil {
		return nil, nil
	}
	rec, err := e.cache.Get(ctx, key)
	if err != nil {
		// 快取只是捷徑，失敗就走 store
		e.logger.Warn("replay cache get failed", "key", key, "error", err)
		return nil, nil
	}
	if rec == nil {
		return nil, nil
	}
	if rec.Fingerprint != fingerprint {
		return nil, domain.ErrIdempotencyKeyReused
	}
	e.logger.Debug("idempotent replay from cache", "key", key, "transfer_id", rec.TransferID)
	return rec, nil
}

// storedReplay 前置條件失敗時檢查是否因為冪等紀錄已存在
func (e *LedgerEngine) storedReplay(ctx context.Context, key, fingerprint string) (*repository.IdempotencyRecord, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := e.idem.Find(ctx, key)
	if err != nil {
		return nil, storeFailure(err)
	}
	if rec == nil {
		return nil, nil
	}
	if rec.Fingerprint != fingerprint {
		return nil, domain.ErrIdempotencyKeyReused
	}
	e.logger.Info("idempotent replay", "key", key, "transfer_id", rec.TransferID)
	after, done := afterCommit(ctx)
	defer done()
	e.remember(after, key, *rec)
	return rec, nil
}

// afterCommit 提交後的副作用使用獨立的短逾時，呼叫端取消或逾時不會中斷它們
func afterCommit(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), PostCommitTimeout)
}

func (e *LedgerEngine) remember(ctx context.Context, key string, rec repository.IdempotencyRecord) {
	if key == "" || e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, key, rec, e.cacheTTL); err != nil {
		e.logger.Warn("replay cache set failed", "key", key, "error", err)
	}
}

// publish 提交後盡力發佈，失敗只記錄不回傳
func (e *LedgerEngine) publish(ctx context.Context, topic, key string, event any) {
	if err := e.publisher.Publish(ctx, topic, key, event); err != nil {
		e.logger.Warn("publish event failed", "topic", topic, "key", key, "error", err)
	}
}

func transferFromRecord(rec *repository.IdempotencyRecord) domain.TransferResult {
	res := domain.TransferResult{TransferID: rec.TransferID, Replayed: true}
	for _, ref := range rec.Entries {
		if ref.Credit {
			res.Credit = ref
		} else {
			res.Debit = ref
		}
	}
	return res
}

func depositFromRecord(rec *repository.IdempotencyRecord) domain.DepositResult {
	res := domain.DepositResult{TransferID: rec.TransferID, Replayed: true}
	if len(rec.Entries) > 0 {
		res.Credit = rec.Entries[0]
	}
	return res
}

// storeFailure 將逾時轉成 ErrUnavailable，其他錯誤原樣包裝
func storeFailure(err error) error {
	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, store.ErrConflict) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}
