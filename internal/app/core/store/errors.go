package store

import "errors"

var (
	// ErrPreconditionFailed 至少一個操作的前置條件不成立，整組操作未生效
	ErrPreconditionFailed = errors.New("store: precondition failed")

	// ErrUnavailable 後端暫時不可用 (含逾時)，可整組重試
	ErrUnavailable = errors.New("store: unavailable")

	// ErrConflict 偵測到並發修改 (deadlock / serialization failure)，可整組重試
	ErrConflict = errors.New("store: conflict")

	// ErrInvalidOperation 操作組本身不合法 (空集合、過多、重複 key)
	ErrInvalidOperation = errors.New("store: invalid operation set")

	// ErrNotFound 找不到資料
	ErrNotFound = errors.New("store: item not found")
)

// IsRetryable 回傳錯誤是否可原封不動重試
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrConflict)
}
