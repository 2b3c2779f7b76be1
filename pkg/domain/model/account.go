package model

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// ErrAccountNotFound is returned when an account key is not registered
var ErrAccountNotFound = goerr.New("account not found")

// Account identifies one credential scope of the remote backend. Accounts
// are built from configuration at startup and never change at runtime.
type Account struct {
	Key     types.AccountKey
	RoleRef string
	Name    string
}

// Validate checks if the Account is valid
func (a *Account) Validate() error {
	if err := a.Key.Validate(); err != nil {
		return goerr.Wrap(err, "invalid account key")
	}
	if a.RoleRef == "" {
		return goerr.New("account role_ref is required", goerr.V("key", a.Key))
	}
	if a.Name == "" {
		return goerr.New("account name is required", goerr.V("key", a.Key))
	}
	return nil
}

// AccountSet holds the configured accounts, keyed by account key.
// It preserves configuration order for deterministic iteration.
type AccountSet struct {
	accounts map[types.AccountKey]*Account
	order    []types.AccountKey
}

// NewAccountSet creates a new empty AccountSet
func NewAccountSet() *AccountSet {
	return &AccountSet{
		accounts: make(map[types.AccountKey]*Account),
	}
}

// Register adds an account to the set
func (s *AccountSet) Register(account *Account) {
	if _, exists := s.accounts[account.Key]; !exists {
		s.order = append(s.order, account.Key)
	}
	s.accounts[account.Key] = account
}

// Get retrieves an account by key
func (s *AccountSet) Get(key types.AccountKey) (*Account, error) {
	account, ok := s.accounts[key]
	if !ok {
		return nil, goerr.Wrap(ErrAccountNotFound, "account not found",
			goerr.V("account_key", key))
	}
	return account, nil
}

// List returns all registered accounts in configuration order
func (s *AccountSet) List() []*Account {
	result := make([]*Account, 0, len(s.order))
	for _, key := range s.order {
		result = append(result, s.accounts[key])
	}
	return result
}

// Len returns the number of registered accounts
func (s *AccountSet) Len() int {
	return len(s.order)
}
