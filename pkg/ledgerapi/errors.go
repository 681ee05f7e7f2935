package ledgerapi

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain 放在 ErrorInfo.Domain
const ErrorDomain = "slsledger"

// ErrorInfo.Reason 的值
const (
	ReasonValidationFailed     = "VALIDATION_FAILED"
	ReasonTransferRejected     = "TRANSFER_REJECTED"
	ReasonAccountNotFound      = "ACCOUNT_NOT_FOUND"
	ReasonIdempotencyKeyReused = "IDEMPOTENCY_KEY_REUSED"
	ReasonStoreUnavailable     = "STORE_UNAVAILABLE"
	ReasonStoreConflict        = "STORE_CONFLICT"
	ReasonInternal             = "INTERNAL"
)

// MetadataRejectReason 拒絕原因 (insufficient_funds 等) 在 ErrorInfo.Metadata 中的 key
const MetadataRejectReason = "reject_reason"

// NewError 建立帶 ErrorInfo 的 gRPC status error
func NewError(code codes.Code, reason, msg string, metadata map[string]string) error {
	st := status.New(code, msg)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   reason,
		Domain:   ErrorDomain,
		Metadata: metadata,
	})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

// ErrorInfoOf 取出 gRPC 錯誤中的 ErrorInfo，沒有時回傳 nil
func ErrorInfoOf(err error) *errdetails.ErrorInfo {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info
		}
	}
	return nil
}
