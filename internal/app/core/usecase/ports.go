package usecase

import (
	"context"
	"time"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/repository"
)

// EventPublisher 提交後的事件發佈介面 (Kafka 或 no-op)
type EventPublisher interface {
	// Publish 發佈一筆事件，key 用於分區 (同一筆轉帳的事件進同一個分區)
	Publish(ctx context.Context, topic string, key string, event any) error
}

// ReplayCache 冪等重播的快取層，只是捷徑，真正的保證在 store 內的冪等紀錄
type ReplayCache interface {
	// Get 讀取快取，未命中回傳 (nil, nil)
	Get(ctx context.Context, key string) (*repository.IdempotencyRecord, error)
	// Set 寫入快取
	Set(ctx context.Context, key string, rec repository.IdempotencyRecord, ttl time.Duration) error
}

// nopPublisher 未設定 Kafka 時使用
type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, any) error { return nil }

// LedgerService 對外 adapter (gRPC / HTTP) 使用的帳本操作，由 LedgerEngine 實作
type LedgerService interface {
	CreateAccount(ctx context.Context, name, denomination string) (domain.Account, error)
	GetAccount(ctx context.Context, accountID string) (domain.Account, error)
	ListEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error)
	Transfer(ctx context.Context, cmd domain.TransferCommand) (domain.TransferResult, error)
	Deposit(ctx context.Context, cmd domain.DepositCommand) (domain.DepositResult, error)
}

var _ LedgerService = (*LedgerEngine)(nil)
