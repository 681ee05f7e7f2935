package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// IdempotencyKeyMaxLen 冪等鍵最大長度
const IdempotencyKeyMaxLen = 128

// TransferCommand 轉帳請求
type TransferCommand struct {
	DebtorAccountID   string
	CreditorAccountID string
	Amount            int64
	Denomination      string
	// IdempotencyKey: 可選，相同的 key 重送不會重複入帳
	IdempotencyKey string
}

// Validate 檢查請求層級的不變量: 金額為正、不可自己轉給自己
func (c TransferCommand) Validate() error {
	if err := ValidateAccountID(c.DebtorAccountID); err != nil {
		return fmt.Errorf("debtor: %w", err)
	}
	if err := ValidateAccountID(c.CreditorAccountID); err != nil {
		return fmt.Errorf("creditor: %w", err)
	}
	if c.DebtorAccountID == c.CreditorAccountID {
		return ErrSameAccount
	}
	if c.Amount <= 0 {
		return ErrAmountMustBePositive
	}
	if err := ValidateDenomination(c.Denomination); err != nil {
		return err
	}
	return validateIdempotencyKey(c.IdempotencyKey)
}

// Fingerprint 判斷冪等鍵是否被用在相同內容的請求
func (c TransferCommand) Fingerprint() string {
	return strings.Join([]string{
		"transfer", c.DebtorAccountID, c.CreditorAccountID,
		strconv.FormatInt(c.Amount, 10), c.Denomination,
	}, "|")
}

// TransferResult 轉帳結果，Debit 在前 Credit 在後
type TransferResult struct {
	TransferID string   `json:"transferId"`
	Debit      EntryRef `json:"debit"`
	Credit     EntryRef `json:"credit"`
	// Replayed: 由冪等紀錄重播，本次未產生新的寫入
	Replayed bool `json:"-"`
}

// Entries 依對外格式排列 (debit, credit)
func (r TransferResult) Entries() []EntryRef {
	return []EntryRef{r.Debit, r.Credit}
}

// DepositCommand 存款請求，等同 Transfer 的入帳那一半
type DepositCommand struct {
	AccountID      string
	Amount         int64
	Denomination   string
	IdempotencyKey string
}

// Validate 檢查存款請求
func (c DepositCommand) Validate() error {
	if err := ValidateAccountID(c.AccountID); err != nil {
		return err
	}
	if c.Amount <= 0 {
		return ErrAmountMustBePositive
	}
	if err := ValidateDenomination(c.Denomination); err != nil {
		return err
	}
	return validateIdempotencyKey(c.IdempotencyKey)
}

// Fingerprint 判斷冪等鍵是否被用在相同內容的請求
func (c DepositCommand) Fingerprint() string {
	return strings.Join([]string{
		"deposit", c.AccountID, strconv.FormatInt(c.Amount, 10), c.Denomination,
	}, "|")
}

// DepositResult 存款結果
type DepositResult struct {
	TransferID string   `json:"transferId"`
	Credit     EntryRef `json:"credit"`
	Replayed   bool     `json:"-"`
}

func validateIdempotencyKey(key string) error {
	if len(key) > IdempotencyKeyMaxLen {
		return ErrInvalidIdempotencyKey
	}
	return nil
}
