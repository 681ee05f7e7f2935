package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/repository"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store/storetest"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, key string, event any) error {
	args := m.Called(ctx, topic, key, event)
	return args.Error(0)
}

type mockReplayCache struct {
	mock.Mock
}

func (m *mockReplayCache) Get(ctx context.Context, key string) (*repository.IdempotencyRecord, error) {
	args := m.Called(ctx, key)
	rec, _ := args.Get(0).(*repository.IdempotencyRecord)
	return rec, args.Error(1)
}

func (m *mockReplayCache) Set(ctx context.Context, key string, rec repository.IdempotencyRecord, ttl time.Duration) error {
	args := m.Called(ctx, key, rec, ttl)
	return args.Error(0)
}

// stallingPublisher 一直等到 context 結束才返回，模擬連不上的 broker
type stallingPublisher struct{}

func (stallingPublisher) Publish(ctx context.Context, _ string, _ string, _ any) error {
	<-ctx.Done()
	return ctx.Err()
}

// blockingStore 的寫入會一直等到 context 結束
type blockingStore struct {
	store.TransactionalStore
}

func (blockingStore) ApplyAtomic(ctx context.Context, _ []store.Operation) error {
	<-ctx.Done()
	return ctx.Err()
}

// failingStore 的寫入固定回傳指定錯誤
type failingStore struct {
	store.TransactionalStore
	err   error
	calls int
}

func (f *failingStore) ApplyAtomic(context.Context, []store.Operation) error {
	f.calls++
	return f.err
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	st     *memory.Store
	engine *LedgerEngine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	st, err := memory.NewStore(nil)
	s.Require().NoError(err)
	s.st = st
	s.engine = NewLedgerEngine(st, WithLogger(discardLogger))
}

func (s *EngineSuite) seed(id string, balance int64, denomination string) {
	s.Require().NoError(s.st.ApplyAtomic(s.ctx, []store.Operation{
		store.Put{Item: storetest.AccountItem(id, balance, denomination)},
	}))
}

func (s *EngineSuite) balance(id string) int64 {
	acct, err := s.engine.GetAccount(s.ctx, id)
	s.Require().NoError(err)
	return acct.Balance
}

func (s *EngineSuite) entries(id string) []domain.LedgerEntry {
	list, err := s.engine.ListEntries(s.ctx, id)
	s.Require().NoError(err)
	return list
}

func (s *EngineSuite) TestCreateAccount() {
	acct, err := s.engine.CreateAccount(s.ctx, "Alice", "USD")
	s.Require().NoError(err)
	s.NotEmpty(acct.ID)
	s.Equal(int64(0), acct.Balance)

	got, err := s.engine.GetAccount(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(acct, got)
}

func (s *EngineSuite) TestCreateAccountValidation() {
	_, err := s.engine.CreateAccount(s.ctx, "A", "USD")
	s.ErrorIs(err, domain.ErrValidation)
	_, err = s.engine.CreateAccount(s.ctx, "Alice", "DOLLAR")
	s.ErrorIs(err, domain.ErrInvalidDenomination)
}

func (s *EngineSuite) TestTransferMovesFundsAndWritesPairedEntries() {
	s.seed("alice", 100, "USD")
	s.seed("bob", 50, "USD")

	res, err := s.engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 30, Denomination: "USD",
	})
	s.Require().NoError(err)
	s.False(res.Replayed)
	s.NotEmpty(res.TransferID)
	s.False(res.Debit.Credit)
	s.True(res.Credit.Credit)

	s.Equal(int64(70), s.balance("alice"))
	s.Equal(int64(80), s.balance("bob"))

	debits := s.entries("alice")
	s.Require().Len(debits, 1)
	s.Equal(res.Debit.ID, debits[0].ID)
	s.Equal(int64(30), debits[0].Amount)
	s.False(debits[0].Credit)
	s.Equal(res.TransferID, debits[0].TransferID)

	credits := s.entries("bob")
	s.Require().Len(credits, 1)
	s.Equal(res.Credit.ID, credits[0].ID)
	s.True(credits[0].Credit)
	s.Equal(res.TransferID, credits[0].TransferID)
}

func (s *EngineSuite) TestTransferOfEntireBalanceIsRejected() {
	s.seed("alice", 100, "USD")
	s.seed("bob", 0, "USD")

	_, err := s.engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 100, Denomination: "USD",
	})
	s.ErrorIs(err, domain.ErrTransferRejected)
	s.Equal(domain.RejectInsufficientFunds, domain.ReasonOf(err))

	s.Equal(int64(100), s.balance("alice"))
	s.Equal(int64(0), s.balance("bob"))
	s.Empty(s.entries("alice"))
	s.Empty(s.entries("bob"))

	// 留下 1 的轉帳可以成功
	_, err = s.engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 99, Denomination: "USD",
	})
	s.NoError(err)
	s.Equal(int64(1), s.balance("alice"))
}

func (s *EngineSuite) TestTransferDenominationMismatch() {
	s.seed("alice", 100, "USD")
	s.seed("bob", 0, "EUR")

	_, err := s.engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 10, Denomination: "USD",
	})
	s.ErrorIs(err, domain.ErrTransferRejected)
	s.Equal(domain.RejectDenominationMismatch, domain.ReasonOf(err))

	_, err = s.engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 10, Denomination: "JPY",
	})
	s.ErrorIs(err, domain.ErrTransferRejected)

	s.Equal(int64(100), s.balance("alice"))
	s.Empty(s.entries("alice"))
	s.Empty(s.entries("bob"))
}

func (s *EngineSuite) TestTransferMissingAccounts() {
	s.seed("alice", 100, "USD")

	_, err := s.engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "ghost", CreditorAccountID: "alice", Amount: 10, Denomination: "USD",
	})
	s.ErrorIs(err, domain.ErrTransferRejected)
	s.Equal(domain.RejectDebtorNotFound, domain.ReasonOf(err))

	_, err = s.engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "ghost", Amount: 10, Denomination: "USD",
	})
	s.ErrorIs(err, domain.ErrTransferRejected)
	s.Equal(domain.RejectCreditorNotFound, domain.ReasonOf(err))
	s.Equal(int64(100), s.balance("alice"))

	_, err = s.engine.GetAccount(s.ctx, "ghost")
	s.ErrorIs(err, domain.ErrAccountNotFound)
	_, err = s.engine.ListEntries(s.ctx, "ghost")
	s.ErrorIs(err, domain.ErrAccountNotFound)
}

func (s *EngineSuite) TestTransferValidationNeverTouchesStore() {
	fs := &failingStore{err: errors.New("should not be called")}
	engine := NewLedgerEngine(fs, WithLogger(discardLogger))

	cases := []struct {
		name string
		cmd  domain.TransferCommand
		want error
	}{
		{"zero amount", domain.TransferCommand{DebtorAccountID: "a1", CreditorAccountID: "b1", Amount: 0, Denomination: "USD"}, domain.ErrAmountMustBePositive},
		{"negative amount", domain.TransferCommand{DebtorAccountID: "a1", CreditorAccountID: "b1", Amount: -5, Denomination: "USD"}, domain.ErrAmountMustBePositive},
		{"self transfer", domain.TransferCommand{DebtorAccountID: "a1", CreditorAccountID: "a1", Amount: 5, Denomination: "USD"}, domain.ErrSameAccount},
		{"bad denomination", domain.TransferCommand{DebtorAccountID: "a1", CreditorAccountID: "b1", Amount: 5, Denomination: "U"}, domain.ErrInvalidDenomination},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := engine.Transfer(s.ctx, tc.cmd)
			s.ErrorIs(err, tc.want)
			s.ErrorIs(err, domain.ErrValidation)
		})
	}
	s.Zero(fs.calls)
}

func (s *EngineSuite) TestNewAccountsCannotTransferUntilFunded() {
	alice, err := s.engine.CreateAccount(s.ctx, "Alice", "USD")
	s.Require().NoError(err)
	bob, err := s.engine.CreateAccount(s.ctx, "Bob", "USD")
	s.Require().NoError(err)

	cmd := domain.TransferCommand{DebtorAccountID: alice.ID, CreditorAccountID: bob.ID, Amount: 1, Denomination: "USD"}
	_, err = s.engine.Transfer(s.ctx, cmd)
	s.ErrorIs(err, domain.ErrTransferRejected)

	dep, err := s.engine.Deposit(s.ctx, domain.DepositCommand{AccountID: alice.ID, Amount: 10, Denomination: "USD"})
	s.Require().NoError(err)
	s.True(dep.Credit.Credit)

	_, err = s.engine.Transfer(s.ctx, cmd)
	s.Require().NoError(err)
	s.Equal(int64(9), s.balance(alice.ID))
	s.Equal(int64(1), s.balance(bob.ID))
	s.Len(s.entries(alice.ID), 2)
}

func (s *EngineSuite) TestDepositRejections() {
	s.seed("alice", 0, "USD")

	_, err := s.engine.Deposit(s.ctx, domain.DepositCommand{AccountID: "alice", Amount: 10, Denomination: "EUR"})
	s.ErrorIs(err, domain.ErrTransferRejected)
	s.Equal(domain.RejectDenominationMismatch, domain.ReasonOf(err))

	_, err = s.engine.Deposit(s.ctx, domain.DepositCommand{AccountID: "ghost", Amount: 10, Denomination: "USD"})
	s.ErrorIs(err, domain.ErrTransferRejected)
	s.Equal(domain.RejectCreditorNotFound, domain.ReasonOf(err))

	_, err = s.engine.Deposit(s.ctx, domain.DepositCommand{AccountID: "alice", Amount: 0, Denomination: "USD"})
	s.ErrorIs(err, domain.ErrAmountMustBePositive)
	s.Empty(s.entries("alice"))
}

func (s *EngineSuite) TestCreditsCannotOverflowBalance() {
	s.seed("alice", 0, "USD")
	s.seed("bob", 100, "USD")

	_, err := s.engine.Deposit(s.ctx, domain.DepositCommand{AccountID: "alice", Amount: math.MaxInt64, Denomination: "USD"})
	s.Require().NoError(err)
	s.Equal(int64(math.MaxInt64), s.balance("alice"))

	_, err = s.engine.Deposit(s.ctx, domain.DepositCommand{AccountID: "alice", Amount: 1, Denomination: "USD"})
	s.ErrorIs(err, domain.ErrTransferRejected)
	s.Equal(domain.RejectBalanceLimit, domain.ReasonOf(err))
	s.Equal(int64(math.MaxInt64), s.balance("alice"))
	s.Len(s.entries("alice"), 1)

	_, err = s.engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "bob", CreditorAccountID: "alice", Amount: 10, Denomination: "USD",
	})
	s.ErrorIs(err, domain.ErrTransferRejected)
	s.Equal(domain.RejectBalanceLimit, domain.ReasonOf(err))
	s.Equal(int64(100), s.balance("bob"))
	s.Equal(int64(math.MaxInt64), s.balance("alice"))
	s.Empty(s.entries("bob"))
}

func (s *EngineSuite) TestStalledPublisherDoesNotHoldRequest() {
	engine := NewLedgerEngine(s.st, WithLogger(discardLogger), WithEventPublisher(stallingPublisher{}), WithTimeout(10*time.Second))
	s.seed("alice", 100, "USD")

	start := time.Now()
	_, err := engine.Deposit(s.ctx, domain.DepositCommand{AccountID: "alice", Amount: 5, Denomination: "USD"})
	s.Require().NoError(err)
	s.Less(time.Since(start), 5*PostCommitTimeout)
	s.Equal(int64(105), s.balance("alice"))
}

func (s *EngineSuite) TestPostCommitSurvivesCallerCancel() {
	cache := new(mockReplayCache)
	engine := NewLedgerEngine(s.st, WithLogger(discardLogger), WithReplayCache(cache, time.Minute))
	s.seed("alice", 100, "USD")

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	cache.On("Get", mock.Anything, "k").Return(nil, nil).Once()
	cache.On("Set", mock.MatchedBy(func(c context.Context) bool {
		cancel()
		return c.Err() == nil
	}), "k", mock.Anything, time.Minute).Return(nil).Once()

	_, err := engine.Deposit(ctx, domain.DepositCommand{AccountID: "alice", Amount: 5, Denomination: "USD", IdempotencyKey: "k"})
	s.Require().NoError(err)
	cache.AssertExpectations(s.T())
}

func (s *EngineSuite) TestConcurrentTransfersCannotOverdraw() {
	// 餘額 100，兩筆各 60 的轉帳同時送出: 最多只能成功一筆
	s.seed("alice", 100, "USD")
	s.seed("bob", 0, "USD")
	s.seed("carol", 0, "USD")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, creditor := range []string{"bob", "carol"} {
		wg.Add(1)
		go func(i int, creditor string) {
			defer wg.Done()
			_, errs[i] = s.engine.Transfer(s.ctx, domain.TransferCommand{
				DebtorAccountID: "alice", CreditorAccountID: creditor, Amount: 60, Denomination: "USD",
			})
		}(i, creditor)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
			continue
		}
		s.ErrorIs(err, domain.ErrTransferRejected)
	}
	s.Equal(1, committed)
	s.Equal(int64(40), s.balance("alice"))
	s.Equal(int64(60), s.balance("bob")+s.balance("carol"))
	s.Len(s.entries("alice"), 1)
}

func (s *EngineSuite) TestConcurrentTransfersConserveTotal() {
	ids := []string{"a1", "a2", "a3", "a4"}
	for _, id := range ids {
		s.seed(id, 1000, "USD")
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.engine.Transfer(s.ctx, domain.TransferCommand{
				DebtorAccountID:   ids[i%len(ids)],
				CreditorAccountID: ids[(i+1)%len(ids)],
				Amount:            int64(10 + i),
				Denomination:      "USD",
			})
		}(i)
	}
	wg.Wait()

	var total int64
	for _, id := range ids {
		total += s.balance(id)
		// 每個帳戶的餘額等於初始值加上其紀錄的淨額
		net := int64(1000)
		for _, e := range s.entries(id) {
			if e.Credit {
				net += e.Amount
			} else {
				net -= e.Amount
			}
		}
		s.Equal(net, s.balance(id))
	}
	s.Equal(int64(4000), total)
}

func (s *EngineSuite) TestIdempotentTransferReplays() {
	s.seed("alice", 100, "USD")
	s.seed("bob", 0, "USD")

	cmd := domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 10, Denomination: "USD",
		IdempotencyKey: "req-1",
	}
	first, err := s.engine.Transfer(s.ctx, cmd)
	s.Require().NoError(err)
	s.False(first.Replayed)

	second, err := s.engine.Transfer(s.ctx, cmd)
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.TransferID, second.TransferID)
	s.Equal(first.Debit, second.Debit)
	s.Equal(first.Credit, second.Credit)

	s.Equal(int64(90), s.balance("alice"))
	s.Len(s.entries("alice"), 1)

	cmd.Amount = 20
	_, err = s.engine.Transfer(s.ctx, cmd)
	s.ErrorIs(err, domain.ErrIdempotencyKeyReused)
	s.Equal(int64(90), s.balance("alice"))
}

func (s *EngineSuite) TestIdempotentDepositReplays() {
	s.seed("alice", 0, "USD")
	cmd := domain.DepositCommand{AccountID: "alice", Amount: 10, Denomination: "USD", IdempotencyKey: "dep-1"}

	first, err := s.engine.Deposit(s.ctx, cmd)
	s.Require().NoError(err)
	second, err := s.engine.Deposit(s.ctx, cmd)
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.Credit, second.Credit)
	s.Equal(int64(10), s.balance("alice"))

	// 同一個 key 不能拿去做轉帳
	_, err = s.engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 1, Denomination: "USD", IdempotencyKey: "dep-1",
	})
	s.ErrorIs(err, domain.ErrIdempotencyKeyReused)
}

func (s *EngineSuite) TestRejectedTransferDoesNotConsumeIdempotencyKey() {
	s.seed("alice", 5, "USD")
	s.seed("bob", 0, "USD")
	cmd := domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 10, Denomination: "USD",
		IdempotencyKey: "req-2",
	}
	_, err := s.engine.Transfer(s.ctx, cmd)
	s.ErrorIs(err, domain.ErrTransferRejected)

	_, err = s.engine.Deposit(s.ctx, domain.DepositCommand{AccountID: "alice", Amount: 100, Denomination: "USD"})
	s.Require().NoError(err)

	res, err := s.engine.Transfer(s.ctx, cmd)
	s.Require().NoError(err)
	s.False(res.Replayed)
}

func (s *EngineSuite) TestPublishesEventAfterCommit() {
	pub := new(mockPublisher)
	engine := NewLedgerEngine(s.st, WithLogger(discardLogger), WithEventPublisher(pub))
	s.seed("alice", 100, "USD")
	s.seed("bob", 0, "USD")

	pub.On("Publish", mock.Anything, domain.TopicTransferCompleted, mock.AnythingOfType("string"),
		mock.MatchedBy(func(ev domain.TransferCompleted) bool {
			return ev.DebtorAccountID == "alice" && ev.CreditorAccountID == "bob" && ev.Amount == 25
		})).Return(errors.New("broker down")).Once()

	res, err := engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 25, Denomination: "USD",
	})
	// 發佈失敗不影響已提交的轉帳
	s.Require().NoError(err)
	s.NotEmpty(res.TransferID)
	s.Equal(int64(75), s.balance("alice"))
	pub.AssertExpectations(s.T())

	// 被拒絕的轉帳不發佈
	_, err = engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 500, Denomination: "USD",
	})
	s.ErrorIs(err, domain.ErrTransferRejected)
	pub.AssertNumberOfCalls(s.T(), "Publish", 1)
}

func (s *EngineSuite) TestReplayCacheShortCircuitsStore() {
	cache := new(mockReplayCache)
	fs := &failingStore{err: errors.New("should not be called")}
	engine := NewLedgerEngine(fs, WithLogger(discardLogger), WithReplayCache(cache, time.Minute))

	cmd := domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 10, Denomination: "USD",
		IdempotencyKey: "cached",
	}
	cache.On("Get", mock.Anything, "cached").Return(&repository.IdempotencyRecord{
		Fingerprint: cmd.Fingerprint(),
		TransferID:  "tr-1",
		Entries:     []domain.EntryRef{{ID: "d1", Credit: false}, {ID: "c1", Credit: true}},
	}, nil).Once()

	res, err := engine.Transfer(s.ctx, cmd)
	s.Require().NoError(err)
	s.True(res.Replayed)
	s.Equal("tr-1", res.TransferID)
	s.Equal(domain.EntryRef{ID: "d1"}, res.Debit)
	s.Equal(domain.EntryRef{ID: "c1", Credit: true}, res.Credit)
	s.Zero(fs.calls)

	cache.On("Get", mock.Anything, "cached").Return(&repository.IdempotencyRecord{Fingerprint: "other"}, nil).Once()
	_, err = engine.Transfer(s.ctx, cmd)
	s.ErrorIs(err, domain.ErrIdempotencyKeyReused)
	cache.AssertExpectations(s.T())
}

func (s *EngineSuite) TestReplayCacheIsFilledOnCommit() {
	cache := new(mockReplayCache)
	engine := NewLedgerEngine(s.st, WithLogger(discardLogger), WithReplayCache(cache, time.Minute))
	s.seed("alice", 100, "USD")
	s.seed("bob", 0, "USD")

	cache.On("Get", mock.Anything, "k").Return(nil, errors.New("redis down")).Once()
	cache.On("Set", mock.Anything, "k", mock.AnythingOfType("repository.IdempotencyRecord"), time.Minute).Return(nil).Once()

	res, err := engine.Transfer(s.ctx, domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 10, Denomination: "USD", IdempotencyKey: "k",
	})
	s.Require().NoError(err)
	s.False(res.Replayed)
	cache.AssertExpectations(s.T())
}

func TestEngineTimeoutReportsUnavailable(t *testing.T) {
	engine := NewLedgerEngine(blockingStore{}, WithLogger(discardLogger), WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := engine.Transfer(context.Background(), domain.TransferCommand{
		DebtorAccountID: "alice", CreditorAccountID: "bob", Amount: 10, Denomination: "USD",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEngineDoesNotRetryConflicts(t *testing.T) {
	fs := &failingStore{err: store.ErrConflict}
	engine := NewLedgerEngine(fs, WithLogger(discardLogger))

	_, err := engine.Deposit(context.Background(), domain.DepositCommand{AccountID: "alice", Amount: 1, Denomination: "USD"})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.True(t, store.IsRetryable(err))
	assert.Equal(t, 1, fs.calls)
}
