package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
)

// LedgerEntryRepository 產生交易紀錄的寫入描述，並提供歷史查詢
type LedgerEntryRepository struct {
	store store.TransactionalStore
	now   func() time.Time
}

// NewLedgerEntryRepository 建立 LedgerEntryRepository，now 為 nil 時使用 time.Now
func NewLedgerEntryRepository(st store.TransactionalStore, now func() time.Time) *LedgerEntryRepository {
	if now == nil {
		now = time.Now
	}
	return &LedgerEntryRepository{store: st, now: now}
}

// NewEntry 建立不可變的交易紀錄與對應的 Put 操作，本身不寫入
// 呼叫端需把 Put 放進同一組 ApplyAtomic，讓紀錄與餘額更新一起提交
// ID 使用 UUIDv7 (時間有序)，讓 sort key 依寫入順序排列
func (r *LedgerEntryRepository) NewEntry(accountID, transferID string, amount int64, denomination string, credit bool) (domain.LedgerEntry, store.Put) {
	entry := domain.LedgerEntry{
		ID:           uuid.Must(uuid.NewV7()).String(),
		AccountID:    accountID,
		TransferID:   transferID,
		Amount:       amount,
		Denomination: denomination,
		Credit:       credit,
		InsertedAt:   r.now().UnixMilli(),
	}
	put := store.Put{Item: store.Item{
		Key:          EntryKey(accountID, entry.ID),
		Type:         store.ItemTypeTransaction,
		InsertedAt:   entry.InsertedAt,
		AccountID:    accountID,
		TransferID:   transferID,
		Amount:       amount,
		Denomination: denomination,
		Credit:       credit,
	}}
	return entry, put
}

// ListByAccount 依寫入順序列出帳戶的所有交易紀錄
func (r *LedgerEntryRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	items, err := r.store.Query(ctx, AccountKey(accountID).PK, TransactionPrefix)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	entries := make([]domain.LedgerEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, domain.LedgerEntry{
			ID:           trimPrefix(it.SK, TransactionPrefix),
			AccountID:    it.AccountID,
			TransferID:   it.TransferID,
			Amount:       it.Amount,
			Denomination: it.Denomination,
			Credit:       it.Credit,
			InsertedAt:   it.InsertedAt,
		})
	}
	return entries, nil
}
