package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation 輸入格式錯誤，所有欄位檢查錯誤都包裝它
	ErrValidation = errors.New("validation failed")

	// ErrAmountMustBePositive 金額必須為正數
	ErrAmountMustBePositive = fmt.Errorf("%w: amount must be positive", ErrValidation)

	// ErrSameAccount 轉出與轉入帳戶相同
	ErrSameAccount = fmt.Errorf("%w: debtor and creditor must differ", ErrValidation)

	// ErrInvalidName 帳戶名稱長度不符
	ErrInvalidName = fmt.Errorf("%w: name must be %d-%d characters", ErrValidation, NameMinLen, NameMaxLen)

	// ErrInvalidDenomination 幣別長度不符
	ErrInvalidDenomination = fmt.Errorf("%w: denomination must be %d-%d characters", ErrValidation, DenominationMinLen, DenominationMaxLen)

	// ErrInvalidAccountID 帳戶 ID 為空
	ErrInvalidAccountID = fmt.Errorf("%w: account id is required", ErrValidation)

	// ErrInvalidIdempotencyKey 冪等鍵過長
	ErrInvalidIdempotencyKey = fmt.Errorf("%w: idempotency key must be at most %d characters", ErrValidation, IdempotencyKeyMaxLen)

	// ErrTransferRejected 原子寫入的前置條件不成立 (餘額不足、幣別不符或帳戶不存在)
	ErrTransferRejected = errors.New("transfer rejected")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrIdempotencyKeyReused 同一冪等鍵被用在不同內容的請求
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with a different request")
)

// RejectReason 交易被拒絕的診斷原因
type RejectReason string

const (
	RejectInsufficientFunds    RejectReason = "insufficient_funds"
	RejectDenominationMismatch RejectReason = "denomination_mismatch"
	RejectDebtorNotFound       RejectReason = "debtor_not_found"
	RejectCreditorNotFound     RejectReason = "creditor_not_found"
	RejectBalanceLimit         RejectReason = "balance_limit_exceeded" // 入帳後餘額會超出 int64
	RejectUnknown              RejectReason = "unknown"
)

// RejectionError 攜帶診斷原因的 ErrTransferRejected
// 原因是寫入失敗後再讀取判斷，只供參考，不影響結果
type RejectionError struct {
	Reason RejectReason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTransferRejected, e.Reason)
}

// Unwrap 讓 errors.Is(err, ErrTransferRejected) 成立
func (e *RejectionError) Unwrap() error {
	return ErrTransferRejected
}

// ReasonOf 取出拒絕原因，非 RejectionError 回傳 RejectUnknown
func ReasonOf(err error) RejectReason {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return RejectUnknown
}
