package repository

import (
	"strings"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
)

// 單表設計的 key 前綴
// Account 與其 Transaction 共用 partition key，"Account#" < "Transaction#"
// 因此同一帳戶的紀錄會排在帳戶資料之後形成連續範圍
const (
	AccountPrefix     = "Account#"
	TransactionPrefix = "Transaction#"
	IdempotencyPrefix = "Idempotency#"
)

// AccountKey 帳戶資料的 key: pk = sk = Account#<id>
func AccountKey(accountID string) store.Key {
	k := AccountPrefix + accountID
	return store.Key{PK: k, SK: k}
}

// EntryKey 交易紀錄的 key: pk = Account#<accountId>, sk = Transaction#<id>
func EntryKey(accountID, entryID string) store.Key {
	return store.Key{PK: AccountPrefix + accountID, SK: TransactionPrefix + entryID}
}

// IdempotencyKey 冪等紀錄的 key: pk = sk = Idempotency#<key>
func IdempotencyKey(key string) store.Key {
	k := IdempotencyPrefix + key
	return store.Key{PK: k, SK: k}
}

func trimPrefix(s, prefix string) string {
	return strings.TrimPrefix(s, prefix)
}
