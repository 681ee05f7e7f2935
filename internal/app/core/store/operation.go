package store

import (
	"fmt"
	"math"
)

// Operation 是 ApplyAtomic 中的單一操作，只有 Put 與 Update 兩種
type Operation interface {
	Target() Key
	isOperation()
}

// Put 新增一筆資料，隱含前置條件: 該 key 尚不存在
type Put struct {
	Item Item
}

func (p Put) Target() Key { return p.Item.Key }
func (Put) isOperation()  {}

// Update 對既有資料做條件更新: balance = balance + BalanceDelta
// 隱含前置條件: 該 key 必須存在，並且 Condition 成立
type Update struct {
	Key          Key
	Condition    Condition
	BalanceDelta int64
}

func (u Update) Target() Key { return u.Key }
func (Update) isOperation()  {}

// Apply 回傳套用更新後的新資料 (不修改傳入值)
func (u Update) Apply(stored Item) Item {
	stored.Balance += u.BalanceDelta
	return stored
}

// Overflows 套用 BalanceDelta 後是否超出 int64 範圍
func (u Update) Overflows(stored Item) bool {
	if u.BalanceDelta > 0 {
		return stored.Balance > math.MaxInt64-u.BalanceDelta
	}
	return stored.Balance < math.MinInt64-u.BalanceDelta
}

// ValidateOperations 檢查操作組是否合法
//
// 參數:
//
//	ops: 操作組
//
// 回傳:
//
//	error: ErrInvalidOperation (空集合、超過 MaxOperations、同一 key 出現兩次)
func ValidateOperations(ops []Operation) error {
	if len(ops) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidOperation)
	}
	if len(ops) > MaxOperations {
		return fmt.Errorf("%w: %d operations exceeds %d", ErrInvalidOperation, len(ops), MaxOperations)
	}
	seen := make(map[Key]struct{}, len(ops))
	for _, op := range ops {
		if op == nil {
			return fmt.Errorf("%w: nil operation", ErrInvalidOperation)
		}
		k := op.Target()
		if k.PK == "" || k.SK == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidOperation)
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate key %s/%s", ErrInvalidOperation, k.PK, k.SK)
		}
		seen[k] = struct{}{}
	}
	return nil
}
