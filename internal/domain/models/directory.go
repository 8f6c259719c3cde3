package models

// Directory resolves opaque entity ids to live entities. Entities register
// themselves with the directory from their constructors; after that every
// lookup is an authoritative, side-effect-free read. The Account, User and
// Bank lookups return the typed not-found errors from errors.go.
//
// The directory is passed explicitly everywhere instead of living in a
// process-wide singleton, so tests can run against isolated instances.
type Directory interface {
	Account(id string) (*Account, error)
	User(id string) (*User, error)
	Bank(id string) (*Bank, error)

	RegisterAccount(a *Account)
	RegisterUser(u *User)
	RegisterBank(b *Bank)
}
