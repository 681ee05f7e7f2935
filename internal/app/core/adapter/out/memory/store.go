package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
	"github.com/JoeShih716/go-sls-ledger/pkg/wal"
)

// Store 是一個使用 RWMutex 實現的 TransactionalStore
//
// 結構:
//
//	table: 記憶體單表
//	mu: 所有寫入序列化，讀取共享
//	wal: Write-Ahead Log 實例 (可為 nil，代表純記憶體)
type Store struct {
	mu    sync.RWMutex
	table *table
	wal   *wal.WAL
}

// NewStore 建立一個新的 Store 實例，若有 WAL 先從 WAL 恢復
//
// 參數:
//
//	w: Write-Ahead Log 實例，nil 代表不持久化
//
// 回傳:
//
//	*Store: Store 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewStore(w *wal.WAL) (*Store, error) {
	s := &Store{table: newTable(), wal: w}
	if _, err := s.table.recoverFromWAL(w); err != nil {
		return nil, fmt.Errorf("recover from wal: %w", err)
	}
	return s, nil
}

// ApplyAtomic 在單一臨界區內判斷所有前置條件並寫入
// 流程: 檢查 -> WAL (Critical Path) -> 更新 Map
func (s *Store) ApplyAtomic(ctx context.Context, ops []store.Operation) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	if err := store.ValidateOperations(ops); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 等鎖期間可能已逾時
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	next, err := s.table.prepare(ops)
	if err != nil {
		return err
	}

	if s.wal != nil {
		if err := s.wal.Write(walRecord{Items: next}); err != nil {
			return fmt.Errorf("%w: wal write: %w", store.ErrUnavailable, err)
		}
	}

	s.table.commit(next)
	return nil
}

// Get 依主鍵讀取
func (s *Store) Get(ctx context.Context, key store.Key) (*store.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.get(key)
}

// Query 讀取同一 partition 內的範圍資料
func (s *Store) Query(ctx context.Context, pk string, skPrefix string) ([]store.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.query(pk, skPrefix), nil
}

var _ store.TransactionalStore = (*Store)(nil)
