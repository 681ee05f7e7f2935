package domain

// LedgerEntry 單一帳戶的一筆餘額變動紀錄，寫入後不可變
// 一次 Transfer 產生兩筆: 轉出帳戶 Credit=false，轉入帳戶 Credit=true，兩者共用 TransferID
type LedgerEntry struct {
	ID           string `json:"id"`
	AccountID    string `json:"accountId"`
	TransferID   string `json:"transferId"`
	Amount       int64  `json:"amount"`
	Denomination string `json:"denomination"`
	Credit       bool   `json:"credit"`
	InsertedAt   int64  `json:"insertedAt"`
}

// EntryRef 回傳給呼叫端的紀錄摘要
type EntryRef struct {
	ID     string `json:"id"`
	Credit bool   `json:"credit"`
}

// Ref 取得摘要
func (e LedgerEntry) Ref() EntryRef {
	return EntryRef{ID: e.ID, Credit: e.Credit}
}
