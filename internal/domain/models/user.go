package models

import (
	"sync"

	"github.com/google/uuid"
)

// User owns an ordered list of account ids. The order is the priority order:
// when a transfer has to draw from more than one account it consults them in
// exactly this sequence. The order is whatever the caller set up, it is never
// re-sorted.
type User struct {
	mu         sync.Mutex
	id         string
	name       string
	dir        Directory
	accountIDs []string
}

// NewUser creates a user owning the given accounts, in the given priority
// order, and registers it with the directory. Every account id must resolve.
func NewUser(dir Directory, name string, accountIDs []string) (*User, error) {
	for _, id := range accountIDs {
		if _, err := dir.Account(id); err != nil {
			return nil, err
		}
	}
	u := &User{
		id:         uuid.NewString(),
		name:       name,
		dir:        dir,
		accountIDs: append([]string(nil), accountIDs...),
	}
	dir.RegisterUser(u)
	return u, nil
}

func (u *User) ID() string {
	return u.id
}

func (u *User) Name() string {
	return u.name
}

// AccountIDs returns a copy of the priority-ordered account id list.
func (u *User) AccountIDs() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.accountIDs...)
}

// AddAccount appends an account id to the end of the priority order.
func (u *User) AddAccount(id string) error {
	if _, err := u.dir.Account(id); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.accountIDs = append(u.accountIDs, id)
	return nil
}

// RemoveAccount drops an account id from the priority order. A user that has
// had an account may not be left without one.
func (u *User) RemoveAccount(id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.accountIDs) == 1 && u.accountIDs[0] == id {
		return &ValidationError{Reason: "user must keep at least one account"}
	}
	for i, aid := range u.accountIDs {
		if aid == id {
			u.accountIDs = append(u.accountIDs[:i], u.accountIDs[i+1:]...)
			return nil
		}
	}
	return &AccountNotFoundError{ID: id}
}
