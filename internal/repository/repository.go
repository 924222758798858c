package repository

import (
	"context"

	"github.com/tbhasan/tableforge/internal/model"
)

// AccountRepository is the persistence contract for accounts and their
// preference records. Implementations return apperror.ErrNotFound (wrapped)
// when a lookup matches nothing and apperror.ErrConflict on a name collision;
// any other store failure propagates unchanged.
type AccountRepository interface {
	// CreateEmptyOptions persists a preference record with every field NULL
	// and returns it with its id assigned.
	CreateEmptyOptions(ctx context.Context) (*model.AccountOptions, error)

	// CreateAccount persists a new account. The account must already
	// reference an existing options record via OptionsID. Fills in ID and
	// timestamps.
	CreateAccount(ctx context.Context, account *model.Account) error

	GetByID(ctx context.Context, id string) (*model.Account, error)

	// ByName looks up an account by name under case-insensitive comparison.
	ByName(ctx context.Context, name string) (*model.Account, error)

	// Update writes the account's mutable fields (email, password hash) back
	// to the store. This is the commit boundary for SetPassword.
	Update(ctx context.Context, account *model.Account) error

	GetOptions(ctx context.Context, id string) (*model.AccountOptions, error)

	// UpdateOptions writes all preference fields, preserving NULL for unset
	// ones so an override can be cleared as well as set.
	UpdateOptions(ctx context.Context, opts *model.AccountOptions) error

	// DeleteOptions removes a bare options record. Only used to clean up
	// when account creation fails after its options row was written.
	DeleteOptions(ctx context.Context, id string) error

	// Delete removes the account and its options record in one transaction:
	// either both rows go or neither does.
	Delete(ctx context.Context, id string) error
}
