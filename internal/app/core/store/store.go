package store

import "context"

// MaxOperations 單次 ApplyAtomic 允許的最大操作數 (對齊 DynamoDB TransactWriteItems 上限)
const MaxOperations = 100

// ItemType 對應儲存層的 type 屬性
type ItemType string

const (
	ItemTypeAccount     ItemType = "Account"
	ItemTypeTransaction ItemType = "Transaction"
	ItemTypeIdempotency ItemType = "Idempotency"
)

// Key 複合主鍵 (partition key + sort key)
type Key struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

// Item 儲存層中的單筆資料
// 採單表設計，不同 Type 只使用其中部分欄位
type Item struct {
	Key
	Type ItemType `json:"type"`
	// InsertedAt: 建立時間 (Unix 毫秒)
	InsertedAt int64 `json:"insertedAt"`

	// Account 欄位
	Name    string `json:"name,omitempty"`
	Balance int64  `json:"balance,omitempty"`

	// Account 與 Transaction 共用
	Denomination string `json:"denomination,omitempty"`

	// Transaction 欄位
	AccountID  string `json:"accountId,omitempty"`
	TransferID string `json:"transferId,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	Credit     bool   `json:"credit,omitempty"`

	// Payload: 不透明資料 (Idempotency 紀錄的結果)
	Payload []byte `json:"payload,omitempty"`
}

// TransactionalStore 是交易型 Key-Value 儲存的介面
type TransactionalStore interface {
	// ApplyAtomic 原子地套用一組操作: 全部成功或全部不生效
	ApplyAtomic(ctx context.Context, ops []Operation) error
	// Get 依主鍵讀取單筆資料，不存在回傳 ErrNotFound
	Get(ctx context.Context, key Key) (*Item, error)
	// Query 讀取同一 partition 下 sort key 以 skPrefix 開頭的資料，依 sort key 排序
	Query(ctx context.Context, pk string, skPrefix string) ([]Item, error)
}
