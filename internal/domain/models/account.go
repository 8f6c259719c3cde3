package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// Entry is one record of an account's append-only transaction history.
// Balance is the account balance immediately after the entry was applied.
type Entry struct {
	Type    EntryType       `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
	At      time.Time       `json:"at"`
}

// Account is a ledger: a balance plus the history of credits and debits that
// produced it. Unless allowNegative is set at creation the balance may never
// go below zero.
//
// Every exported operation takes the account mutex. Bank.SendTo instead locks
// all accounts of a transfer up front (in ascending id order) and uses the
// *Held variants, so the can-debit check and the debit itself are atomic.
type Account struct {
	mu            sync.Mutex
	id            string
	balance       decimal.Decimal
	allowNegative bool
	history       []Entry
}

// NewAccount creates an account and registers it with the directory.
// A negative initial balance is rejected unless allowNegative is set.
func NewAccount(dir Directory, balance decimal.Decimal, allowNegative bool) (*Account, error) {
	if balance.Sign() < 0 && !allowNegative {
		return nil, &ValidationError{Reason: "initial balance must not be negative"}
	}
	a := &Account{
		id:            uuid.NewString(),
		balance:       balance,
		allowNegative: allowNegative,
	}
	dir.RegisterAccount(a)
	return a, nil
}

func (a *Account) ID() string {
	return a.id
}

func (a *Account) AllowsNegative() bool {
	return a.allowNegative
}

func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// History returns a snapshot of the transaction log, never the live slice.
func (a *Account) History() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.history))
	copy(out, a.history)
	return out
}

// Credit increases the balance. The amount must be positive; a credit can
// never violate the non-negative invariant.
func (a *Account) Credit(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return &ValidationError{Reason: "credit amount must be positive"}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creditHeld(amount)
	return nil
}

// Debit decreases the balance. The amount must be positive, and unless the
// account allows negative balances it must not exceed the current balance.
func (a *Account) Debit(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return &ValidationError{Reason: "debit amount must be positive"}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.debitHeld(amount, false)
}

// CanDebit reports whether a debit of amount would succeed right now. If it
// returns true and no mutation intervenes, Debit(amount) will not fail with
// insufficient funds.
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canDebitHeld(amount)
}

// The *Held variants require a.mu to be held by the caller.

func (a *Account) creditHeld(amount decimal.Decimal) {
	a.balance = a.balance.Add(amount)
	a.history = append(a.history, Entry{
		Type:    EntryCredit,
		Amount:  amount,
		Balance: a.balance,
		At:      time.Now(),
	})
}

// debitHeld applies a debit. With force set the non-negative check is skipped;
// that is only used for the compensating debit that undoes a failed transfer.
func (a *Account) debitHeld(amount decimal.Decimal, force bool) error {
	if !force && !a.allowNegative && a.balance.Cmp(amount) < 0 {
		return &InsufficientFundsError{
			AccountID: a.id,
			Requested: amount,
			Available: a.balance,
		}
	}
	a.balance = a.balance.Sub(amount)
	a.history = append(a.history, Entry{
		Type:    EntryDebit,
		Amount:  amount,
		Balance: a.balance,
		At:      time.Now(),
	})
	return nil
}

func (a *Account) canDebitHeld(amount decimal.Decimal) bool {
	return a.allowNegative || a.balance.Cmp(amount) >= 0
}
