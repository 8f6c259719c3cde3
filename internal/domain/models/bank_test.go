package models_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/atabekov-a/minibank/internal/domain/models"
	"github.com/atabekov-a/minibank/internal/registry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newUserWithAccounts opens one account per balance, in priority order, and
// creates a user owning them.
func newUserWithAccounts(t *testing.T, dir models.Directory, bank *models.Bank, name string, balances ...string) (*models.User, []*models.Account) {
	t.Helper()
	accounts := make([]*models.Account, 0, len(balances))
	ids := make([]string, 0, len(balances))
	for _, b := range balances {
		a, err := bank.CreateAccount(dec(b))
		require.NoError(t, err)
		accounts = append(accounts, a)
		ids = append(ids, a.ID())
	}
	u, err := models.NewUser(dir, name, ids)
	require.NoError(t, err)
	return u, accounts
}

func totalBalance(accounts ...*models.Account) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range accounts {
		sum = sum.Add(a.Balance())
	}
	return sum
}

func TestBankCreateAccount(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{})

	a, err := bank.CreateAccount(dec("100"))
	require.NoError(t, err)
	assert.True(t, bank.HasAccount(a.ID()))
	assert.False(t, a.AllowsNegative())

	got, err := bank.GetAccount(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)

	accounts, err := bank.Accounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Same(t, a, accounts[0])
}

func TestBankCreateAccountInheritsNegativePolicy(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{AllowNegativeBalance: true})

	a, err := bank.CreateAccount(dec("-50"))
	require.NoError(t, err)
	assert.True(t, a.AllowsNegative())
	assert.True(t, a.Balance().Equal(dec("-50")))
}

func TestBankCreateAccountRejectsNegativeBalance(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{})

	_, err := bank.CreateAccount(dec("-1"))
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestBankRegistersWithDirectory(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{})

	got, err := dir.Bank(bank.ID())
	require.NoError(t, err)
	assert.Same(t, bank, got)
}

func TestSendRejectsNonPositiveAmount(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{})
	alice, aliceAccounts := newUserWithAccounts(t, dir, bank, "alice", "100")
	bob, bobAccounts := newUserWithAccounts(t, dir, bank, "bob", "100")

	var verr *models.ValidationError
	require.ErrorAs(t, bank.Send(alice.ID(), bob.ID(), decimal.Zero), &verr)
	require.ErrorAs(t, bank.Send(alice.ID(), bob.ID(), dec("-10")), &verr)

	assert.True(t, aliceAccounts[0].Balance().Equal(dec("100")))
	assert.True(t, bobAccounts[0].Balance().Equal(dec("100")))
	assert.Empty(t, aliceAccounts[0].History())
	assert.Empty(t, bobAccounts[0].History())
}

func TestSendSingleAccount(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{})
	alice, aliceAccounts := newUserWithAccounts(t, dir, bank, "alice", "100")
	bob, bobAccounts := newUserWithAccounts(t, dir, bank, "bob", "20")

	before := totalBalance(aliceAccounts[0], bobAccounts[0])
	require.NoError(t, bank.Send(alice.ID(), bob.ID(), dec("60")))

	assert.True(t, aliceAccounts[0].Balance().Equal(dec("40")))
	assert.True(t, bobAccounts[0].Balance().Equal(dec("80")))
	assert.True(t, totalBalance(aliceAccounts[0], bobAccounts[0]).Equal(before))

	sent := aliceAccounts[0].History()
	require.Len(t, sent, 1)
	assert.Equal(t, models.EntryDebit, sent[0].Type)
	assert.True(t, sent[0].Amount.Equal(dec("60")))

	received := bobAccounts[0].History()
	require.Len(t, received, 1)
	assert.Equal(t, models.EntryCredit, received[0].Type)
	assert.True(t, received[0].Amount.Equal(dec("60")))
}

func TestSendPartialFill(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{})
	alice, aliceAccounts := newUserWithAccounts(t, dir, bank, "alice", "30", "20")
	bob, bobAccounts := newUserWithAccounts(t, dir, bank, "bob", "0")

	require.NoError(t, bank.Send(alice.ID(), bob.ID(), dec("40")))

	assert.True(t, aliceAccounts[0].Balance().Equal(decimal.Zero))
	assert.True(t, aliceAccounts[1].Balance().Equal(dec("10")))
	assert.True(t, bobAccounts[0].Balance().Equal(dec("40")))

	// The first account is drained entirely, the second covers the rest.
	first := aliceAccounts[0].History()
	require.Len(t, first, 1)
	assert.True(t, first[0].Amount.Equal(dec("30")))
	second := aliceAccounts[1].History()
	require.Len(t, second, 1)
	assert.True(t, second[0].Amount.Equal(dec("10")))

	received := bobAccounts[0].History()
	require.Len(t, received, 2)
	assert.True(t, received[0].Amount.Equal(dec("30")))
	assert.True(t, received[1].Amount.Equal(dec("10")))
}

func TestSendPriorityOrderNotBalanceOrder(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{})
	alice, aliceAccounts := newUserWithAccounts(t, dir, bank, "alice", "10", "500")
	bob, bobAccounts := newUserWithAccounts(t, dir, bank, "bob", "0")

	// The second account alone could cover the transfer, but the first one in
	// the user's order is still drained first.
	require.NoError(t, bank.Send(alice.ID(), bob.ID(), dec("40")))

	assert.True(t, aliceAccounts[0].Balance().Equal(decimal.Zero))
	assert.True(t, aliceAccounts[1].Balance().Equal(dec("470")))
	assert.True(t, bobAccounts[0].Balance().Equal(dec("40")))
}

func TestSendInsufficientFundsRollsBack(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{})
	alice, aliceAccounts := newUserWithAccounts(t, dir, bank, "alice", "30", "20")
	bob, bobAccounts := newUserWithAccounts(t, dir, bank, "bob", "5")

	err := bank.Send(alice.ID(), bob.ID(), dec("100"))
	var ierr *models.InsufficientFundsError
	require.ErrorAs(t, err, &ierr)
	assert.True(t, ierr.Requested.Equal(dec("100")))
	assert.True(t, ierr.Available.Equal(dec("50")))
	assert.True(t, strings.Contains(ierr.AccountID, aliceAccounts[0].ID()))
	assert.True(t, strings.Contains(ierr.AccountID, aliceAccounts[1].ID()))

	// Every touched account is back at its pre-call balance.
	assert.True(t, aliceAccounts[0].Balance().Equal(dec("30")))
	assert.True(t, aliceAccounts[1].Balance().Equal(dec("20")))
	assert.True(t, bobAccounts[0].Balance().Equal(dec("5")))

	// The receiver's ledger keeps the credits and the compensating debit.
	received := bobAccounts[0].History()
	require.Len(t, received, 3)
	assert.Equal(t, models.EntryCredit, received[0].Type)
	assert.Equal(t, models.EntryCredit, received[1].Type)
	assert.Equal(t, models.EntryDebit, received[2].Type)
	assert.True(t, received[2].Amount.Equal(dec("50")))
	assert.True(t, received[2].Balance.Equal(dec("5")))
}

func TestSendNegativeAllowedAccountCoversAnything(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{AllowNegativeBalance: true})
	alice, aliceAccounts := newUserWithAccounts(t, dir, bank, "alice", "5")
	bob, bobAccounts := newUserWithAccounts(t, dir, bank, "bob", "0")

	require.NoError(t, bank.Send(alice.ID(), bob.ID(), dec("100")))

	assert.True(t, aliceAccounts[0].Balance().Equal(dec("-95")))
	assert.True(t, bobAccounts[0].Balance().Equal(dec("100")))
}

func TestSendUserNotFound(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{})
	alice, _ := newUserWithAccounts(t, dir, bank, "alice", "100")

	var uerr *models.UserNotFoundError
	require.ErrorAs(t, bank.Send("ghost", alice.ID(), dec("10")), &uerr)
	assert.Equal(t, "ghost", uerr.ID)
	require.ErrorAs(t, bank.Send(alice.ID(), "ghost", dec("10")), &uerr)
}

func TestSendSenderHasNoAccountInBank(t *testing.T) {
	dir := registry.New()
	bankA := models.NewBank(dir, models.Options{})
	bankB := models.NewBank(dir, models.Options{})
	alice, _ := newUserWithAccounts(t, dir, bankB, "alice", "100")
	bob, _ := newUserWithAccounts(t, dir, bankA, "bob", "100")

	// Alice only banks with B, so A has nothing to draw from.
	err := bankA.Send(alice.ID(), bob.ID(), dec("10"))
	var aerr *models.AccountNotFoundError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, alice.ID(), aerr.UserID)
	assert.Equal(t, bankA.ID(), aerr.BankID)
}

func TestSendReceiverHasNoAccountInTargetBank(t *testing.T) {
	dir := registry.New()
	bankA := models.NewBank(dir, models.Options{})
	bankB := models.NewBank(dir, models.Options{})
	alice, _ := newUserWithAccounts(t, dir, bankA, "alice", "100")
	bob, _ := newUserWithAccounts(t, dir, bankA, "bob", "100")

	err := bankA.SendTo(alice.ID(), bob.ID(), dec("10"), bankB.ID())
	var aerr *models.AccountNotFoundError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, bob.ID(), aerr.UserID)
	assert.Equal(t, bankB.ID(), aerr.BankID)
}

func TestSendBankNotFound(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{})
	alice, _ := newUserWithAccounts(t, dir, bank, "alice", "100")
	bob, _ := newUserWithAccounts(t, dir, bank, "bob", "100")

	var berr *models.BankNotFoundError
	require.ErrorAs(t, bank.SendTo(alice.ID(), bob.ID(), dec("10"), "nowhere"), &berr)
	assert.Equal(t, "nowhere", berr.ID)
}

func TestSendAcrossBanks(t *testing.T) {
	dir := registry.New()
	bankA := models.NewBank(dir, models.Options{})
	bankB := models.NewBank(dir, models.Options{})

	alice, aliceAccounts := newUserWithAccounts(t, dir, bankA, "alice", "100")

	// Bob holds accounts in both banks; the target-bank one must be picked
	// even though his bank-A account comes first in priority order.
	bobA, err := bankA.CreateAccount(dec("0"))
	require.NoError(t, err)
	bobB, err := bankB.CreateAccount(dec("0"))
	require.NoError(t, err)
	bob, err := models.NewUser(dir, "bob", []string{bobA.ID(), bobB.ID()})
	require.NoError(t, err)

	require.NoError(t, bankA.SendTo(alice.ID(), bob.ID(), dec("25"), bankB.ID()))

	assert.True(t, aliceAccounts[0].Balance().Equal(dec("75")))
	assert.True(t, bobA.Balance().Equal(decimal.Zero))
	assert.True(t, bobB.Balance().Equal(dec("25")))
}

// Concurrent transfers over overlapping accounts must neither deadlock nor
// break conservation.
func TestSendConcurrentConservation(t *testing.T) {
	dir := registry.New()
	bank := models.NewBank(dir, models.Options{})
	alice, aliceAccounts := newUserWithAccounts(t, dir, bank, "alice", "500", "500")
	bob, bobAccounts := newUserWithAccounts(t, dir, bank, "bob", "500", "500")

	all := append(append([]*models.Account(nil), aliceAccounts...), bobAccounts...)
	before := totalBalance(all...)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = bank.Send(alice.ID(), bob.ID(), dec("7"))
		}()
		go func() {
			defer wg.Done()
			_ = bank.Send(bob.ID(), alice.ID(), dec("11"))
		}()
	}
	wg.Wait()

	assert.True(t, totalBalance(all...).Equal(before))
	for _, a := range all {
		assert.True(t, a.Balance().Sign() >= 0, "non-negative invariant broken for %s", a.ID())
	}
}
