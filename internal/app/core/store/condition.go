package store

import "fmt"

// Attribute 可被條件判斷的欄位
type Attribute string

const (
	AttrBalance      Attribute = "balance"
	AttrDenomination Attribute = "denomination"
)

// Operator 比較運算子
type Operator string

const (
	OpGreaterThan Operator = ">"
	OpAtMost      Operator = "<="
	OpEqual       Operator = "="
)

// Predicate 單一比較條件: <Attribute> <Operator> <Value>
type Predicate struct {
	Attribute Attribute
	Operator  Operator
	Value     any
}

// Condition 多個 Predicate 的 AND 組合，空 Condition 恆成立
type Condition []Predicate

// BalanceGreaterThan stored.balance > n
func BalanceGreaterThan(n int64) Predicate {
	return Predicate{Attribute: AttrBalance, Operator: OpGreaterThan, Value: n}
}

// BalanceAtMost stored.balance <= n
// 入帳時以 math.MaxInt64 - amount 作為上限，避免餘額溢位
func BalanceAtMost(n int64) Predicate {
	return Predicate{Attribute: AttrBalance, Operator: OpAtMost, Value: n}
}

// DenominationEquals stored.denomination == d
func DenominationEquals(d string) Predicate {
	return Predicate{Attribute: AttrDenomination, Operator: OpEqual, Value: d}
}

// All 將多個 Predicate 組成 Condition
func All(preds ...Predicate) Condition {
	return Condition(preds)
}

// Eval 以儲存中的資料判斷條件是否成立
// 型別不符或未知的運算子一律視為不成立
func (c Condition) Eval(stored *Item) bool {
	if stored == nil {
		return false
	}
	for _, p := range c {
		if !p.eval(stored) {
			return false
		}
	}
	return true
}

func (p Predicate) eval(stored *Item) bool {
	switch p.Attribute {
	case AttrBalance:
		v, ok := p.Value.(int64)
		if !ok {
			return false
		}
		switch p.Operator {
		case OpGreaterThan:
			return stored.Balance > v
		case OpAtMost:
			return stored.Balance <= v
		case OpEqual:
			return stored.Balance == v
		}
	case AttrDenomination:
		v, ok := p.Value.(string)
		if !ok || p.Operator != OpEqual {
			return false
		}
		return stored.Denomination == v
	}
	return false
}

// String 方便 log 與除錯
func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Attribute, p.Operator, p.Value)
}
