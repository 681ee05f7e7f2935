package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// 欄位長度限制 (與對外 API 的 request schema 一致)
const (
	NameMinLen         = 2
	NameMaxLen         = 128
	DenominationMinLen = 2
	DenominationMaxLen = 5
	AccountIDMaxLen    = 128
	// AccountIDMinLen 只套用在對外轉帳請求上，內部命令不強制
	AccountIDMinLen = 8
)

// Account 帳戶
// Balance 以最小貨幣單位的 int64 表示，不使用浮點數
type Account struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Denomination string `json:"denomination"`
	Balance      int64  `json:"balance"`
	// InsertedAt: 建立時間 (Unix 毫秒)
	InsertedAt int64 `json:"insertedAt"`
}

// ValidateName 檢查帳戶名稱
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < NameMinLen || n > NameMaxLen {
		return ErrInvalidName
	}
	return nil
}

// ValidateDenomination 檢查幣別代碼
func ValidateDenomination(denomination string) error {
	n := utf8.RuneCountInString(denomination)
	if n < DenominationMinLen || n > DenominationMaxLen {
		return ErrInvalidDenomination
	}
	return nil
}

// ValidateExternalAccountID 檢查對外 API 傳入的轉帳帳戶 ID 長度
func ValidateExternalAccountID(id string) error {
	if n := len(id); n < AccountIDMinLen || n > AccountIDMaxLen {
		return fmt.Errorf("%w: length must be %d..%d", ErrInvalidAccountID, AccountIDMinLen, AccountIDMaxLen)
	}
	return nil
}

// ValidateAccountID 檢查帳戶 ID
func ValidateAccountID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > AccountIDMaxLen {
		return ErrInvalidAccountID
	}
	return nil
}
