package account

import "github.com/google/uuid"

// Store is the persistent record store for accounts. SaveAccounts must be
// atomic across all passed accounts: either every record is written or none,
// so no reader observes one half of a settlement or transfer.
type Store interface {
	SaveAccounts(accs ...*Account) error

	// LoadAccount returns (nil, nil) when the account does not exist.
	LoadAccount(id uuid.UUID) (*Account, error)
}
