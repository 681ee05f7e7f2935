package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
)

// AccountRepository 透過 TransactionalStore 建立與讀取帳戶
type AccountRepository struct {
	store store.TransactionalStore
	now   func() time.Time
}

// NewAccountRepository 建立 AccountRepository，now 為 nil 時使用 time.Now
func NewAccountRepository(st store.TransactionalStore, now func() time.Time) *AccountRepository {
	if now == nil {
		now = time.Now
	}
	return &AccountRepository{store: st, now: now}
}

// Create 產生新 ID 並寫入餘額為 0 的帳戶
// ID 每次新產生，不會與同一操作組內其他 key 衝突，因此沒有額外前置條件
//
// 參數:
//
//	ctx: 上下文
//	name: 帳戶名稱
//	denomination: 幣別，建立後不可變更
//
// 回傳:
//
//	domain.Account: 新帳戶
//	error: store 錯誤 (如 ErrUnavailable)
func (r *AccountRepository) Create(ctx context.Context, name, denomination string) (domain.Account, error) {
	item := store.Item{
		Key:          AccountKey(uuid.NewString()),
		Type:         store.ItemTypeAccount,
		InsertedAt:   r.now().UnixMilli(),
		Name:         name,
		Denomination: denomination,
		Balance:      0,
	}
	if err := r.store.ApplyAtomic(ctx, []store.Operation{store.Put{Item: item}}); err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return toAccount(item), nil
}

// Get 讀取帳戶
func (r *AccountRepository) Get(ctx context.Context, accountID string) (domain.Account, error) {
	item, err := r.store.Get(ctx, AccountKey(accountID))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	if item.Type != store.ItemTypeAccount {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return toAccount(*item), nil
}

func toAccount(item store.Item) domain.Account {
	return domain.Account{
		ID:           trimPrefix(item.PK, AccountPrefix),
		Name:         item.Name,
		Denomination: item.Denomination,
		Balance:      item.Balance,
		InsertedAt:   item.InsertedAt,
	}
}
