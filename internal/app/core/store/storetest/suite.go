// Package storetest 提供所有 TransactionalStore 實作共用的行為測試
package storetest

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/suite"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
)

// Suite 是 TransactionalStore 的一致性測試組
// 使用方式: suite.Run(t, &storetest.Suite{NewStore: ...})
type Suite struct {
	suite.Suite
	// NewStore 每個測試案例呼叫一次，回傳全新的空 store
	NewStore func() store.TransactionalStore

	st store.TransactionalStore
}

func (s *Suite) SetupTest() {
	s.st = s.NewStore()
}

// Store 回傳目前測試案例使用的 store
func (s *Suite) Store() store.TransactionalStore {
	return s.st
}

// AccountItem 建立測試用帳戶資料
func AccountItem(id string, balance int64, denomination string) store.Item {
	k := "Account#" + id
	return store.Item{
		Key:          store.Key{PK: k, SK: k},
		Type:         store.ItemTypeAccount,
		InsertedAt:   1,
		Name:         "acct " + id,
		Denomination: denomination,
		Balance:      balance,
	}
}

// EntryItem 建立測試用交易紀錄資料
func EntryItem(accountID, id string, amount int64) store.Item {
	return store.Item{
		Key:          store.Key{PK: "Account#" + accountID, SK: "Transaction#" + id},
		Type:         store.ItemTypeTransaction,
		InsertedAt:   1,
		AccountID:    accountID,
		Denomination: "USD",
		Amount:       amount,
	}
}

func (s *Suite) seed(items ...store.Item) {
	ops := make([]store.Operation, 0, len(items))
	for _, it := range items {
		ops = append(ops, store.Put{Item: it})
	}
	s.Require().NoError(s.st.ApplyAtomic(context.Background(), ops))
}

func (s *Suite) balance(id string) int64 {
	k := "Account#" + id
	it, err := s.st.Get(context.Background(), store.Key{PK: k, SK: k})
	s.Require().NoError(err)
	return it.Balance
}

func (s *Suite) TestPutThenGet() {
	acct := AccountItem("a", 0, "USD")
	s.seed(acct)

	got, err := s.st.Get(context.Background(), acct.Key)
	s.Require().NoError(err)
	s.Equal(acct.Name, got.Name)
	s.Equal(acct.Denomination, got.Denomination)
	s.Equal(store.ItemTypeAccount, got.Type)
	s.Equal(int64(0), got.Balance)
}

func (s *Suite) TestGetMissing() {
	_, err := s.st.Get(context.Background(), store.Key{PK: "Account#nope", SK: "Account#nope"})
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestPutExistingKeyFails() {
	acct := AccountItem("a", 10, "USD")
	s.seed(acct)

	dup := AccountItem("a", 999, "EUR")
	err := s.st.ApplyAtomic(context.Background(), []store.Operation{store.Put{Item: dup}})
	s.ErrorIs(err, store.ErrPreconditionFailed)
	s.Equal(int64(10), s.balance("a"))
}

func (s *Suite) TestUpdateAppliesDelta() {
	s.seed(AccountItem("a", 100, "USD"), AccountItem("b", 0, "USD"))

	err := s.st.ApplyAtomic(context.Background(), []store.Operation{
		store.Update{
			Key:          AccountItem("a", 0, "").Key,
			Condition:    store.All(store.BalanceGreaterThan(40), store.DenominationEquals("USD")),
			BalanceDelta: -40,
		},
		store.Update{
			Key:          AccountItem("b", 0, "").Key,
			Condition:    store.All(store.DenominationEquals("USD")),
			BalanceDelta: 40,
		},
	})
	s.Require().NoError(err)
	s.Equal(int64(60), s.balance("a"))
	s.Equal(int64(40), s.balance("b"))
}

func (s *Suite) TestUpdateMissingItemFails() {
	err := s.st.ApplyAtomic(context.Background(), []store.Operation{
		store.Update{Key: AccountItem("ghost", 0, "").Key, BalanceDelta: 1},
	})
	s.ErrorIs(err, store.ErrPreconditionFailed)

	_, err = s.st.Get(context.Background(), AccountItem("ghost", 0, "").Key)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestBalanceAtMostGuardsCredit() {
	s.seed(AccountItem("a", math.MaxInt64-10, "USD"))
	key := AccountItem("a", 0, "").Key

	credit := func(amount int64) error {
		return s.st.ApplyAtomic(context.Background(), []store.Operation{
			store.Update{
				Key:          key,
				Condition:    store.All(store.DenominationEquals("USD"), store.BalanceAtMost(math.MaxInt64-amount)),
				BalanceDelta: amount,
			},
		})
	}
	s.Require().NoError(credit(10))
	s.Equal(int64(math.MaxInt64), s.balance("a"))

	s.ErrorIs(credit(1), store.ErrPreconditionFailed)
	s.Equal(int64(math.MaxInt64), s.balance("a"))
}

func (s *Suite) TestOverflowingUpdateFails() {
	s.seed(AccountItem("a", math.MaxInt64, "USD"), AccountItem("b", 0, "USD"))

	err := s.st.ApplyAtomic(context.Background(), []store.Operation{
		store.Update{Key: AccountItem("b", 0, "").Key, BalanceDelta: 5},
		store.Update{Key: AccountItem("a", 0, "").Key, BalanceDelta: 1},
	})
	s.ErrorIs(err, store.ErrPreconditionFailed)
	s.Equal(int64(math.MaxInt64), s.balance("a"))
	s.Equal(int64(0), s.balance("b"))
}

func (s *Suite) TestDenominationMatchIsCaseSensitive() {
	s.seed(AccountItem("a", 0, "USD"))

	err := s.st.ApplyAtomic(context.Background(), []store.Operation{
		store.Update{Key: AccountItem("a", 0, "").Key, Condition: store.All(store.DenominationEquals("usd")), BalanceDelta: 1},
	})
	s.ErrorIs(err, store.ErrPreconditionFailed)
	s.Equal(int64(0), s.balance("a"))
}

func (s *Suite) TestFailedPreconditionWritesNothing() {
	s.seed(AccountItem("a", 100, "USD"), AccountItem("b", 0, "USD"))
	entry := EntryItem("a", "e1", 30)

	err := s.st.ApplyAtomic(context.Background(), []store.Operation{
		store.Put{Item: entry},
		store.Update{Key: AccountItem("b", 0, "").Key, BalanceDelta: 30},
		store.Update{
			Key:          AccountItem("a", 0, "").Key,
			Condition:    store.All(store.DenominationEquals("EUR")),
			BalanceDelta: -30,
		},
	})
	s.ErrorIs(err, store.ErrPreconditionFailed)

	_, err = s.st.Get(context.Background(), entry.Key)
	s.ErrorIs(err, store.ErrNotFound)
	s.Equal(int64(100), s.balance("a"))
	s.Equal(int64(0), s.balance("b"))
}

func (s *Suite) TestInvalidOperationSet() {
	acct := AccountItem("a", 0, "USD")
	err := s.st.ApplyAtomic(context.Background(), []store.Operation{store.Put{Item: acct}, store.Update{Key: acct.Key}})
	s.ErrorIs(err, store.ErrInvalidOperation)

	_, err = s.st.Get(context.Background(), acct.Key)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	acct := AccountItem("a", 0, "USD")
	err := s.st.ApplyAtomic(ctx, []store.Operation{store.Put{Item: acct}})
	s.ErrorIs(err, store.ErrUnavailable)

	_, err = s.st.Get(context.Background(), acct.Key)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestQueryReturnsSortedRange() {
	s.seed(
		AccountItem("a", 0, "USD"),
		EntryItem("a", "0003", 3),
		EntryItem("a", "0001", 1),
		EntryItem("a", "0002", 2),
		EntryItem("b", "0004", 4),
	)

	items, err := s.st.Query(context.Background(), "Account#a", "Transaction#")
	s.Require().NoError(err)
	s.Require().Len(items, 3)
	s.Equal("Transaction#0001", items[0].SK)
	s.Equal("Transaction#0002", items[1].SK)
	s.Equal("Transaction#0003", items[2].SK)

	all, err := s.st.Query(context.Background(), "Account#a", "")
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	s.Equal(store.ItemTypeAccount, all[0].Type)
}

func (s *Suite) TestConcurrentDebitsSerialize() {
	s.seed(AccountItem("a", 100, "USD"))
	key := AccountItem("a", 0, "").Key

	const workers = 20
	var committed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			err := s.st.ApplyAtomic(context.Background(), []store.Operation{
				store.Update{Key: key, Condition: store.All(store.BalanceGreaterThan(10)), BalanceDelta: -10},
			})
			if err == nil {
				committed.Add(1)
			}
		}()
	}
	wg.Wait()

	// 100 -> 10 共 9 次成功，餘額 10 時 10 > 10 不成立
	s.Equal(int32(9), committed.Load())
	s.Equal(int64(10), s.balance("a"))
}
