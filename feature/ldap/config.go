package ldap

import (
	"time"

	"identity-sync/core/reconcile"
)

// Config holds configuration for the directory source.
type Config struct {
	// Enabled turns the source on.
	Enabled bool `mapstructure:"enabled" default:"false"`
	// URL is the directory URL (ldap:// or ldaps://).
	URL string `mapstructure:"url" default:"ldap://localhost:389"`
	// StartTLS upgrades a plain ldap:// connection.
	StartTLS bool `mapstructure:"start_tls" default:"false"`
	// InsecureSkipVerify disables certificate verification. Test setups only.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" default:"false"`
	// BindDN is the account the source binds as.
	BindDN string `mapstructure:"bind_dn" default:""`
	// BindPassword is the password of BindDN.
	BindPassword string `mapstructure:"bind_password" default:""`
	// BaseDN is the search base.
	BaseDN string `mapstructure:"base_dn" default:""`
	// UserFilter selects user entries.
	UserFilter string `mapstructure:"user_filter" default:"(objectClass=person)"`
	// ScopeFilter further restricts the synced users when attribute filters are enabled.
	ScopeFilter string `mapstructure:"scope_filter" default:""`
	// PageSize is the paged search page size.
	PageSize uint32 `mapstructure:"page_size" default:"500"`
	// Timeout bounds the connection and every request.
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
	// Attributes maps directory attributes onto user fields.
	Attributes reconcile.AttributeMapping `mapstructure:"attributes"`
}

// DefaultAttributes is the Active Directory mapping used for unmapped fields.
var DefaultAttributes = reconcile.AttributeMapping{
	ExternalID:        reconcile.Attribute{Name: "objectGUID", Binary: true},
	Email:             reconcile.Attribute{Name: "mail"},
	Phone:             reconcile.Attribute{Name: "telephoneNumber"},
	FirstName:         reconcile.Attribute{Name: "givenName"},
	LastName:          reconcile.Attribute{Name: "sn"},
	PreferredUsername: reconcile.Attribute{Name: "sAMAccountName"},
	Status:            reconcile.Attribute{Name: "userAccountControl"},
	// ACCOUNTDISABLE
	DisableBitmasks: []int64{2},
}

// Mapping returns the configured mapping completed with DefaultAttributes.
func (c Config) Mapping() reconcile.AttributeMapping {
	return c.Attributes.WithDefaults(DefaultAttributes)
}
