package registry

import (
	"sync"

	"github.com/atabekov-a/minibank/internal/domain/models"
)

// Registry is the in-memory Directory: it maps opaque ids to live accounts,
// users and banks. Each New() call gives an isolated instance, there is no
// process-wide registry.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
	users    map[string]*models.User
	banks    map[string]*models.Bank
}

var _ models.Directory = (*Registry)(nil)

func New() *Registry {
	return &Registry{
		accounts: make(map[string]*models.Account),
		users:    make(map[string]*models.User),
		banks:    make(map[string]*models.Bank),
	}
}

func (r *Registry) RegisterAccount(a *models.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID()] = a
}

func (r *Registry) RegisterUser(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID()] = u
}

func (r *Registry) RegisterBank(b *models.Bank) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banks[b.ID()] = b
}

func (r *Registry) Account(id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, &models.AccountNotFoundError{ID: id}
	}
	return a, nil
}

func (r *Registry) User(id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, &models.UserNotFoundError{ID: id}
	}
	return u, nil
}

func (r *Registry) Bank(id string) (*models.Bank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.banks[id]
	if !ok {
		return nil, &models.BankNotFoundError{ID: id}
	}
	return b, nil
}

// Reset drops every registered entity. Meant for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = make(map[string]*models.Account)
	r.users = make(map[string]*models.User)
	r.banks = make(map[string]*models.Bank)
}
