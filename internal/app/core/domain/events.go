package domain

import "time"

// 事件 topic 名稱 (實際 topic 會再加上設定的前綴)
const (
	TopicTransferCompleted = "transfer_completed"
	TopicDepositCompleted  = "deposit_completed"
)

// TransferCompleted 轉帳提交後發出的事件
type TransferCompleted struct {
	TransferID        string    `json:"transferId"`
	DebtorAccountID   string    `json:"debtorAccountId"`
	CreditorAccountID string    `json:"creditorAccountId"`
	DebitEntryID      string    `json:"debitEntryId"`
	CreditEntryID     string    `json:"creditEntryId"`
	Amount            int64     `json:"amount"`
	Denomination      string    `json:"denomination"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// DepositCompleted 存款提交後發出的事件
type DepositCompleted struct {
	TransferID   string    `json:"transferId"`
	AccountID    string    `json:"accountId"`
	EntryID      string    `json:"entryId"`
	Amount       int64     `json:"amount"`
	Denomination string    `json:"denomination"`
	OccurredAt   time.Time `json:"occurredAt"`
}
