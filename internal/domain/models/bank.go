package models

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Options configures a new bank namespace.
type Options struct {
	// AllowNegativeBalance is the default negative-balance policy applied to
	// accounts created through this bank.
	AllowNegativeBalance bool
}

// Bank is a namespace of accounts and the transfer orchestrator over them.
// It owns only the membership relation: accounts live in the directory and
// may be looked up globally, the bank just knows which ids belong to it.
type Bank struct {
	mu            sync.Mutex
	id            string
	dir           Directory
	allowNegative bool
	members       map[string]struct{}
	memberIDs     []string
}

// NewBank creates an empty namespace and registers it with the directory.
func NewBank(dir Directory, opts Options) *Bank {
	b := &Bank{
		id:            uuid.NewString(),
		dir:           dir,
		allowNegative: opts.AllowNegativeBalance,
		members:       make(map[string]struct{}),
	}
	dir.RegisterBank(b)
	return b
}

func (b *Bank) ID() string {
	return b.id
}

// CreateAccount opens an account under this bank's negative-balance policy
// and adds it to the namespace.
func (b *Bank) CreateAccount(balance decimal.Decimal) (*Account, error) {
	a, err := NewAccount(b.dir, balance, b.allowNegative)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.members[a.ID()] = struct{}{}
	b.memberIDs = append(b.memberIDs, a.ID())
	b.mu.Unlock()
	return a, nil
}

// HasAccount reports namespace membership.
func (b *Bank) HasAccount(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.members[id]
	return ok
}

// GetAccount resolves an account through the directory. Non-member ids still
// resolve; membership only matters for transfer source/target selection.
func (b *Bank) GetAccount(id string) (*Account, error) {
	return b.dir.Account(id)
}

// Accounts returns the member accounts in creation order. A member id that no
// longer resolves is an invariant violation and surfaces as an error.
func (b *Bank) Accounts() ([]*Account, error) {
	b.mu.Lock()
	ids := append([]string(nil), b.memberIDs...)
	b.mu.Unlock()

	out := make([]*Account, 0, len(ids))
	for _, id := range ids {
		a, err := b.dir.Account(id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Send transfers amount between two users within this bank.
func (b *Bank) Send(fromUserID, toUserID string, amount decimal.Decimal) error {
	return b.SendTo(fromUserID, toUserID, amount, b.id)
}

// SendTo transfers amount from a user's accounts in this bank to the first
// account the receiver holds in the target bank.
//
// Source accounts are tried in the sender's priority order. An account that
// can cover the whole remainder is debited for it and ends the draw; anything
// short of that contributes its entire positive balance and the draw moves on
// to the next account. The call either moves the full amount or leaves every
// balance exactly as it found it: on shortfall (or any unexpected failure)
// the receiver is debited back everything credited so far and an error is
// returned.
//
// All touched accounts are locked in ascending id order before the first
// mutation and stay locked until the call returns, so concurrent transfers
// over overlapping account sets serialize instead of deadlocking and no
// partial state is ever observable.
func (b *Bank) SendTo(fromUserID, toUserID string, amount decimal.Decimal, toBankID string) error {
	if amount.Sign() <= 0 {
		return &ValidationError{Reason: "transfer amount must be positive"}
	}

	sender, err := b.dir.User(fromUserID)
	if err != nil {
		return err
	}
	receiver, err := b.dir.User(toUserID)
	if err != nil {
		return err
	}

	var sources []*Account
	seen := make(map[string]struct{})
	for _, id := range sender.AccountIDs() {
		if !b.HasAccount(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		a, err := b.dir.Account(id)
		if err != nil {
			return err
		}
		sources = append(sources, a)
	}
	if len(sources) == 0 {
		return &AccountNotFoundError{UserID: fromUserID, BankID: b.id}
	}

	target := b
	if toBankID != b.id {
		target, err = b.dir.Bank(toBankID)
		if err != nil {
			return err
		}
	}
	var dest *Account
	for _, id := range receiver.AccountIDs() {
		if target.HasAccount(id) {
			dest, err = b.dir.Account(id)
			if err != nil {
				return err
			}
			break
		}
	}
	if dest == nil {
		return &AccountNotFoundError{UserID: toUserID, BankID: target.id}
	}

	release := lockAccounts(append(append([]*Account(nil), sources...), dest))
	defer release()

	// Draft the draw: the receiver is credited as contributions are found,
	// the matching source debits are held back until the full amount is
	// covered. On shortfall the only applied side effect is the receiver
	// credit, undone below with one compensating debit.
	remaining := amount
	transferred := decimal.Zero
	var draws []draw

	for _, src := range sources {
		if src.canDebitHeld(remaining) {
			dest.creditHeld(remaining)
			draws = append(draws, draw{src: src, amount: remaining})
			transferred = transferred.Add(remaining)
			remaining = decimal.Zero
			break
		}
		// Partial draw: the account contributes its entire balance, never a
		// sub-amount picked by the algorithm.
		part := src.balance
		if part.Sign() <= 0 || !src.canDebitHeld(part) {
			continue
		}
		dest.creditHeld(part)
		draws = append(draws, draw{src: src, amount: part})
		transferred = transferred.Add(part)
		remaining = remaining.Sub(part)
	}

	if remaining.Sign() == 0 {
		cause := commitDraws(draws)
		if cause == nil {
			return nil
		}
		if transferred.Sign() > 0 {
			_ = dest.debitHeld(transferred, true)
		}
		return &TransferError{Cause: cause}
	}

	// The compensating debit is forced past the receiver's balance policy so
	// the rollback itself can never fail.
	if transferred.Sign() > 0 {
		_ = dest.debitHeld(transferred, true)
	}
	ids := make([]string, len(sources))
	for i, src := range sources {
		ids[i] = src.id
	}
	return &InsufficientFundsError{
		AccountID: strings.Join(ids, ","),
		Requested: amount,
		Available: transferred,
	}
}

// draw is one drafted contribution of a transfer: a source account and the
// amount it covers.
type draw struct {
	src    *Account
	amount decimal.Decimal
}

// commitDraws applies the drafted source debits. Every draw was validated
// against a balance that cannot have changed since (all account locks are
// still held), so a failure here is unexpected; any debits already applied
// are undone before the cause is reported.
func commitDraws(draws []draw) error {
	for i, d := range draws {
		if err := d.src.debitHeld(d.amount, false); err != nil {
			for j := 0; j < i; j++ {
				draws[j].src.creditHeld(draws[j].amount)
			}
			return err
		}
	}
	return nil
}

// lockAccounts locks the given accounts in ascending id order, skipping
// duplicates, and returns the matching release func.
func lockAccounts(accts []*Account) func() {
	seen := make(map[string]struct{}, len(accts))
	locked := make([]*Account, 0, len(accts))
	for _, a := range accts {
		if _, ok := seen[a.id]; ok {
			continue
		}
		seen[a.id] = struct{}{}
		locked = append(locked, a)
	}
	sort.Slice(locked, func(i, j int) bool { return locked[i].id < locked[j].id })
	for _, a := range locked {
		a.mu.Lock()
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].mu.Unlock()
		}
	}
}
