package reconcile

import (
	"context"
)

// Source produces the raw records of one source for the current run.
// Every call re-fetches from scratch; no adapter keeps an incremental cursor.
type Source interface {
	// Name returns the unique name of this source (e.g., "ldap", "csv").
	Name() string

	// FetchAll returns every record currently in the source.
	FetchAll(ctx context.Context) ([]RawRecord, error)
}

// Scope restricts which raw records take part in a run. Records that do not
// match are ignored, never disabled.
type Scope interface {
	Matches(attributes map[string][][]byte) bool
}

// UserOptions tune how contact data is written to the provider.
type UserOptions struct {
	// VerifyContacts marks written email/phone as unverified so that the
	// provider starts its verification flow.
	VerifyContacts bool
}

// Provider is the identity provider the population is reconciled against.
// Every method is an independent remote call that may fail on its own;
// there is no transaction across calls.
type Provider interface {
	// ListUsers returns the full provider population. Paging is internal.
	ListUsers(ctx context.Context) ([]ProviderUser, error)

	// CreateUser creates the base account, storing the external id with it,
	// and returns the provider id.
	CreateUser(ctx context.Context, user CanonicalUser, opts UserOptions) (string, error)

	// UpdateUser writes the given profile/contact fields of user.
	UpdateUser(ctx context.Context, providerID string, user CanonicalUser, fields []Field, opts UserOptions) error

	// DisableUser deactivates the account. It never deletes it.
	DisableUser(ctx context.Context, providerID string) error

	// EnableUser reactivates a deactivated account.
	EnableUser(ctx context.Context, providerID string) error

	// SetMetadata stores a metadata entry on the account.
	SetMetadata(ctx context.Context, providerID, key, value string) error

	// AddGrant grants the account access to the configured project.
	AddGrant(ctx context.Context, providerID string) error

	// LinkSSO links the account to the configured external identity provider.
	LinkSSO(ctx context.Context, providerID string, user CanonicalUser) error
}
