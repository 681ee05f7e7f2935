package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
)

// IdempotencyRecord 冪等紀錄，與它保護的資金移動寫在同一組 ApplyAtomic
type IdempotencyRecord struct {
	Fingerprint string            `json:"fingerprint"`
	TransferID  string            `json:"transferId"`
	Entries     []domain.EntryRef `json:"entries"`
	CommittedAt int64             `json:"committedAt"`
}

// IdempotencyRepository 冪等紀錄的寫入描述與查詢
type IdempotencyRepository struct {
	store store.TransactionalStore
	now   func() time.Time
}

// NewIdempotencyRepository 建立 IdempotencyRepository，now 為 nil 時使用 time.Now
func NewIdempotencyRepository(st store.TransactionalStore, now func() time.Time) *IdempotencyRepository {
	if now == nil {
		now = time.Now
	}
	return &IdempotencyRepository{store: st, now: now}
}

// NewRecord 產生冪等紀錄的 Put 操作
// Put 隱含 key 不存在的前置條件，重複的 key 會讓整組操作失敗
func (r *IdempotencyRepository) NewRecord(key string, rec IdempotencyRecord) (store.Put, error) {
	rec.CommittedAt = r.now().UnixMilli()
	payload, err := json.Marshal(rec)
	if err != nil {
		return store.Put{}, fmt.Errorf("encode idempotency record: %w", err)
	}
	return store.Put{Item: store.Item{
		Key:        IdempotencyKey(key),
		Type:       store.ItemTypeIdempotency,
		InsertedAt: rec.CommittedAt,
		Payload:    payload,
	}}, nil
}

// Find 讀取冪等紀錄，不存在時回傳 (nil, nil)
func (r *IdempotencyRepository) Find(ctx context.Context, key string) (*IdempotencyRecord, error) {
	item, err := r.store.Get(ctx, IdempotencyKey(key))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find idempotency record: %w", err)
	}
	var rec IdempotencyRecord
	if err := json.Unmarshal(item.Payload, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}
