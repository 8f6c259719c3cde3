package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError reports a rejected input: a non-positive amount or a
// balance policy violation at account creation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// AccountNotFoundError is returned when an account id does not resolve, or
// when none of a user's accounts belong to the bank being searched (in that
// case UserID and BankID are set instead of ID).
type AccountNotFoundError struct {
	ID     string
	UserID string
	BankID string
}

func (e *AccountNotFoundError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("no account for user %s in bank %s", e.UserID, e.BankID)
	}
	return fmt.Sprintf("account not found: %s", e.ID)
}

type UserNotFoundError struct {
	ID string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user not found: %s", e.ID)
}

type BankNotFoundError struct {
	ID string
}

func (e *BankNotFoundError) Error() string {
	return fmt.Sprintf("bank not found: %s", e.ID)
}

// InsufficientFundsError reports a debit that would take a non-negative
// account below zero. For a failed transfer AccountID holds every source
// account id joined by commas and Available the total that could have been
// moved.
type InsufficientFundsError struct {
	AccountID string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: requested %s, available %s",
		e.AccountID, e.Requested, e.Available)
}

// TransferError wraps an unexpected failure hit mid-transfer, after the
// partial effects have been rolled back.
type TransferError struct {
	Cause error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed: %v", e.Cause)
}

func (e *TransferError) Unwrap() error {
	return e.Cause
}
