// Package ledgerapi 定義帳本 gRPC 服務的訊息、服務描述與客戶端
//
// 訊息以 JSON codec 傳輸 (content-subtype "json")，不需要 protoc 產生程式碼。
package ledgerapi

// Account 帳戶
type Account struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Denomination string `json:"denomination"`
	Balance      int64  `json:"balance"`
	InsertedAt   int64  `json:"insertedAt"`
}

// EntryRef 交易紀錄參照
type EntryRef struct {
	ID     string `json:"id"`
	Credit bool   `json:"credit"`
}

// Entry 交易紀錄
type Entry struct {
	ID           string `json:"id"`
	AccountID    string `json:"accountId"`
	TransferID   string `json:"transferId"`
	Amount       int64  `json:"amount"`
	Denomination string `json:"denomination"`
	Credit       bool   `json:"credit"`
	InsertedAt   int64  `json:"insertedAt"`
}

type CreateAccountRequest struct {
	Name         string `json:"name"`
	Denomination string `json:"denomination"`
}

type CreateAccountResponse struct {
	ID string `json:"id"`
}

type GetAccountRequest struct {
	AccountID string `json:"accountId"`
}

type GetAccountResponse struct {
	Account Account `json:"account"`
}

type ListEntriesRequest struct {
	AccountID string `json:"accountId"`
}

type ListEntriesResponse struct {
	Entries []Entry `json:"entries"`
}

type TransferRequest struct {
	DebtorAccountID   string `json:"debtorAccountId"`
	CreditorAccountID string `json:"creditorAccountId"`
	Amount            int64  `json:"amount"`
	Denomination      string `json:"denomination"`
	IdempotencyKey    string `json:"idempotencyKey,omitempty"`
}

// TransferResponse Transactions 依序為 debit、credit
type TransferResponse struct {
	TransferID   string     `json:"transferId"`
	Transactions []EntryRef `json:"transactions"`
	Replayed     bool       `json:"replayed,omitempty"`
}

type DepositRequest struct {
	AccountID      string `json:"accountId"`
	Amount         int64  `json:"amount"`
	Denomination   string `json:"denomination"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type DepositResponse struct {
	TransferID  string   `json:"transferId"`
	Transaction EntryRef `json:"transaction"`
	Replayed    bool     `json:"replayed,omitempty"`
}
