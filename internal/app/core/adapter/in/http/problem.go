package http

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
)

// ProblemDetails 依 RFC 9457 回傳錯誤
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Reason: 交易被拒絕時的診斷原因
	Reason string       `json:"reason,omitempty"`
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError 單一欄位的驗證錯誤
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func problem(c *fiber.Ctx, status int, title, detail string) ProblemDetails {
	return ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.OriginalURL(),
	}
}

func writeProblem(c *fiber.Ctx, pd ProblemDetails) error {
	c.Set(fiber.HeaderContentType, "application/problem+json")
	return c.Status(pd.Status).JSON(pd)
}

// writeError 將帳本錯誤對應到 HTTP 狀態碼
func writeError(c *fiber.Ctx, err error) error {
	var pd ProblemDetails
	switch {
	case errors.Is(err, domain.ErrValidation):
		pd = problem(c, fiber.StatusBadRequest, "Validation failed", err.Error())
	case errors.Is(err, domain.ErrAccountNotFound):
		pd = problem(c, fiber.StatusNotFound, "Account not found", err.Error())
	case errors.Is(err, domain.ErrTransferRejected):
		pd = problem(c, fiber.StatusUnprocessableEntity, "Transfer rejected", err.Error())
		pd.Reason = string(domain.ReasonOf(err))
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		pd = problem(c, fiber.StatusConflict, "Idempotency key reused", err.Error())
	case store.IsRetryable(err):
		c.Set(fiber.HeaderRetryAfter, "1")
		pd = problem(c, fiber.StatusServiceUnavailable, "Ledger unavailable", "the request was not applied and can be retried unchanged")
	default:
		pd = problem(c, fiber.StatusInternalServerError, "Internal Server Error", "")
	}
	return writeProblem(c, pd)
}

// newValidator 建立 validator，decimal 金額轉成 int64 後再套用規則
// 非整數或超出 int64 的金額轉成 0，讓 gt=0 失敗
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		d, ok := field.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		n, ok := toInt64(d)
		if !ok {
			return int64(0)
		}
		return n
	}, decimal.Decimal{})
	return v
}

var maxInt64 = decimal.NewFromInt(int64(^uint64(0) >> 1))

func toInt64(d decimal.Decimal) (int64, bool) {
	if !d.IsInteger() || d.GreaterThan(maxInt64) || d.LessThan(maxInt64.Neg()) {
		return 0, false
	}
	return d.IntPart(), true
}

// bindAndValidate 解析 body 並驗證，失敗時已寫入回應並回傳 false
func bindAndValidate[T any](c *fiber.Ctx, v *validator.Validate, input *T) (bool, error) {
	if err := c.BodyParser(input); err != nil {
		return false, writeProblem(c, problem(c, fiber.StatusBadRequest, "Invalid request body", err.Error()))
	}
	if err := v.Struct(input); err != nil {
		pd := problem(c, fiber.StatusBadRequest, "Validation failed", "")
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				pd.Errors = append(pd.Errors, FieldError{Field: fe.Field(), Rule: fe.Tag()})
			}
		} else {
			pd.Detail = err.Error()
		}
		return false, writeProblem(c, pd)
	}
	return true, nil
}
