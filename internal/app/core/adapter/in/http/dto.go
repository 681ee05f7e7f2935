package http

import (
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/domain"
)

type createAccountRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=128"`
	Denomination string `json:"denomination" validate:"required,min=2,max=5"`
}

type createAccountResponse struct {
	ID string `json:"id"`
}

type transferRequest struct {
	DebtorAccountID   string          `json:"debtorAccountId" validate:"required,min=8,max=128"`
	CreditorAccountID string          `json:"creditorAccountId" validate:"required,min=8,max=128,nefield=DebtorAccountID"`
	Amount            decimal.Decimal `json:"amount" validate:"gt=0"`
	Denomination      string          `json:"denomination" validate:"required,min=2,max=5"`
}

type depositRequest struct {
	Amount       decimal.Decimal `json:"amount" validate:"gt=0"`
	Denomination string          `json:"denomination" validate:"required,min=2,max=5"`
}

type entryRef struct {
	ID     string `json:"id"`
	Credit bool   `json:"credit"`
}

type transferResponse struct {
	TransferID   string     `json:"transferId"`
	Transactions []entryRef `json:"transactions"`
}

type accountResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Denomination string `json:"denomination"`
	Balance      int64  `json:"balance"`
	InsertedAt   int64  `json:"insertedAt"`
}

type entryResponse struct {
	ID           string `json:"id"`
	TransferID   string `json:"transferId"`
	Amount       int64  `json:"amount"`
	Denomination string `json:"denomination"`
	Credit       bool   `json:"credit"`
	InsertedAt   int64  `json:"insertedAt"`
}

func toRefs(refs ...domain.EntryRef) []entryRef {
	out := make([]entryRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, entryRef{ID: r.ID, Credit: r.Credit})
	}
	return out
}
