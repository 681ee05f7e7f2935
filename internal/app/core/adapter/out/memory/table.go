package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
	"github.com/JoeShih716/go-sls-ledger/pkg/wal"
)

// walRecord 一次成功 ApplyAtomic 的結果，記錄所有被寫入資料的最終狀態
// 重放時直接覆寫即可，不需重新判斷前置條件
type walRecord struct {
	Items []store.Item `json:"items"`
}

// table 記憶體中的單表，本身不處理並發，由外層 Store 負責加鎖
type table struct {
	items map[store.Key]store.Item
}

func newTable() *table {
	return &table{items: make(map[store.Key]store.Item)}
}

// prepare 判斷整組操作的前置條件並計算寫入後的新狀態，不修改 table
//
// 參數:
//
//	ops: 已通過 ValidateOperations 的操作組
//
// 回傳:
//
//	[]store.Item: 需寫入的新狀態 (順序同 ops)
//	error: ErrPreconditionFailed
func (t *table) prepare(ops []store.Operation) ([]store.Item, error) {
	next := make([]store.Item, 0, len(ops))
	for i, op := range ops {
		switch o := op.(type) {
		case store.Put:
			if _, exists := t.items[o.Item.Key]; exists {
				return nil, fmt.Errorf("%w: op %d put on existing key", store.ErrPreconditionFailed, i)
			}
			next = append(next, o.Item)
		case store.Update:
			stored, exists := t.items[o.Key]
			if !exists || !o.Condition.Eval(&stored) {
				return nil, fmt.Errorf("%w: op %d", store.ErrPreconditionFailed, i)
			}
			if o.Overflows(stored) {
				return nil, fmt.Errorf("%w: op %d balance out of range", store.ErrPreconditionFailed, i)
			}
			next = append(next, o.Apply(stored))
		default:
			return nil, fmt.Errorf("%w: unsupported operation %T", store.ErrInvalidOperation, op)
		}
	}
	return next, nil
}

// commit 將 prepare 的結果寫入
func (t *table) commit(items []store.Item) {
	for _, it := range items {
		t.items[it.Key] = it
	}
}

func (t *table) get(key store.Key) (*store.Item, error) {
	it, ok := t.items[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &it, nil
}

func (t *table) query(pk, skPrefix string) []store.Item {
	out := make([]store.Item, 0)
	for k, it := range t.items {
		if k.PK == pk && strings.HasPrefix(k.SK, skPrefix) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SK < out[j].SK })
	return out
}

// recoverFromWAL 從 WAL 檔案恢復狀態，只在初始化時呼叫 (單執行緒)
func (t *table) recoverFromWAL(w *wal.WAL) (int, error) {
	if w == nil {
		return 0, nil
	}
	count := 0
	err := w.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		t.commit(rec.Items)
		count++
		return nil
	})
	return count, err
}
