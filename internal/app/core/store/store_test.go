package store

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConditionEval(t *testing.T) {
	account := &Item{Balance: 100, Denomination: "USD"}

	tests := []struct {
		name string
		cond Condition
		item *Item
		want bool
	}{
		{"empty condition holds", All(), account, true},
		{"balance strictly greater", All(BalanceGreaterThan(99)), account, true},
		{"balance equal is not greater", All(BalanceGreaterThan(100)), account, false},
		{"balance at most limit", All(BalanceAtMost(100)), account, true},
		{"balance above limit", All(BalanceAtMost(99)), account, false},
		{"denomination match", All(DenominationEquals("USD")), account, true},
		{"denomination mismatch", All(DenominationEquals("EUR")), account, false},
		{"conjunction both hold", All(BalanceGreaterThan(10), DenominationEquals("USD")), account, true},
		{"conjunction one fails", All(BalanceGreaterThan(10), DenominationEquals("EUR")), account, false},
		{"missing item never holds", All(), nil, false},
		{"wrong value type", Condition{{Attribute: AttrBalance, Operator: OpGreaterThan, Value: 10}}, account, false},
		{"unknown attribute", Condition{{Attribute: "name", Operator: OpEqual, Value: "x"}}, account, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Eval(tt.item))
		})
	}
}

func TestUpdateApply(t *testing.T) {
	stored := Item{Key: Key{PK: "Account#a", SK: "Account#a"}, Balance: 50}
	got := Update{Key: stored.Key, BalanceDelta: -20}.Apply(stored)
	assert.Equal(t, int64(30), got.Balance)
	assert.Equal(t, int64(50), stored.Balance)
}

func TestUpdateOverflows(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		delta   int64
		want    bool
	}{
		{"credit within range", math.MaxInt64 - 1, 1, false},
		{"credit past max", math.MaxInt64, 1, true},
		{"large credit past max", 1, math.MaxInt64, true},
		{"debit within range", 0, -math.MaxInt64, false},
		{"debit past min", math.MinInt64 + 1, -2, true},
		{"zero delta", math.MaxInt64, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := Update{BalanceDelta: tt.delta}
			assert.Equal(t, tt.want, u.Overflows(Item{Balance: tt.balance}))
		})
	}
}

func TestValidateOperations(t *testing.T) {
	k := Key{PK: "Account#a", SK: "Account#a"}

	assert.ErrorIs(t, ValidateOperations(nil), ErrInvalidOperation)
	assert.ErrorIs(t, ValidateOperations([]Operation{Put{Item: Item{Key: k}}, Update{Key: k}}), ErrInvalidOperation)
	assert.ErrorIs(t, ValidateOperations([]Operation{Update{Key: Key{PK: "x"}}}), ErrInvalidOperation)
	assert.ErrorIs(t, ValidateOperations([]Operation{nil}), ErrInvalidOperation)

	tooMany := make([]Operation, 0, MaxOperations+1)
	for i := 0; i <= MaxOperations; i++ {
		id := fmt.Sprintf("Account#%d", i)
		tooMany = append(tooMany, Put{Item: Item{Key: Key{PK: id, SK: id}}})
	}
	assert.ErrorIs(t, ValidateOperations(tooMany), ErrInvalidOperation)
	assert.NoError(t, ValidateOperations(tooMany[:MaxOperations]))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("apply: %w", ErrUnavailable)))
	assert.True(t, IsRetryable(ErrConflict))
	assert.False(t, IsRetryable(ErrPreconditionFailed))
}
