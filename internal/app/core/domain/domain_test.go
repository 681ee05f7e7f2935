package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferCommandValidate(t *testing.T) {
	valid := TransferCommand{
		DebtorAccountID:   "debtor-0001",
		CreditorAccountID: "creditor-0001",
		Amount:            10,
		Denomination:      "USD",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *TransferCommand)
		want   error
	}{
		{"zero amount", func(c *TransferCommand) { c.Amount = 0 }, ErrAmountMustBePositive},
		{"negative amount", func(c *TransferCommand) { c.Amount = -5 }, ErrAmountMustBePositive},
		{"self transfer", func(c *TransferCommand) { c.CreditorAccountID = c.DebtorAccountID }, ErrSameAccount},
		{"missing debtor", func(c *TransferCommand) { c.DebtorAccountID = "" }, ErrInvalidAccountID},
		{"missing creditor", func(c *TransferCommand) { c.CreditorAccountID = " " }, ErrInvalidAccountID},
		{"short denomination", func(c *TransferCommand) { c.Denomination = "U" }, ErrInvalidDenomination},
		{"long denomination", func(c *TransferCommand) { c.Denomination = "USDUSD" }, ErrInvalidDenomination},
		{"long idempotency key", func(c *TransferCommand) { c.IdempotencyKey = strings.Repeat("k", 129) }, ErrInvalidIdempotencyKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDepositCommandValidate(t *testing.T) {
	c := DepositCommand{AccountID: "acct-0001", Amount: 1, Denomination: "EUR"}
	assert.NoError(t, c.Validate())

	c.Amount = 0
	assert.ErrorIs(t, c.Validate(), ErrAmountMustBePositive)
}

func TestValidateName(t *testing.T) {
	assert.ErrorIs(t, ValidateName("a"), ErrInvalidName)
	assert.NoError(t, ValidateName("ab"))
	assert.NoError(t, ValidateName(strings.Repeat("名", NameMaxLen)))
	assert.ErrorIs(t, ValidateName(strings.Repeat("a", NameMaxLen+1)), ErrInvalidName)
}

func TestValidateExternalAccountID(t *testing.T) {
	assert.NoError(t, ValidateExternalAccountID("acct-001"))
	assert.NoError(t, ValidateExternalAccountID(strings.Repeat("a", AccountIDMaxLen)))
	assert.ErrorIs(t, ValidateExternalAccountID("acct-01"), ErrInvalidAccountID)
	assert.ErrorIs(t, ValidateExternalAccountID(strings.Repeat("a", AccountIDMaxLen+1)), ErrValidation)
}

func TestFingerprintDistinguishesRequests(t *testing.T) {
	a := TransferCommand{DebtorAccountID: "a", CreditorAccountID: "b", Amount: 10, Denomination: "USD", IdempotencyKey: "k1"}
	b := a
	b.IdempotencyKey = "k2"
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Amount = 11
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	d := DepositCommand{AccountID: "a", Amount: 10, Denomination: "USD"}
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}

func TestRejectionError(t *testing.T) {
	err := fmt.Errorf("transfer: %w", &RejectionError{Reason: RejectInsufficientFunds})
	assert.True(t, errors.Is(err, ErrTransferRejected))
	assert.Equal(t, RejectInsufficientFunds, ReasonOf(err))
	assert.Equal(t, RejectUnknown, ReasonOf(errors.New("other")))
	assert.Contains(t, err.Error(), "insufficient_funds")
}

func TestTransferResultEntriesOrder(t *testing.T) {
	r := TransferResult{
		Debit:  EntryRef{ID: "d", Credit: false},
		Credit: EntryRef{ID: "c", Credit: true},
	}
	entries := r.Entries()
	assert.False(t, entries[0].Credit)
	assert.True(t, entries[1].Credit)
}
