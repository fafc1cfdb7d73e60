package endpoint

import (
	"time"

	"identity-sync/core/reconcile"
)

// Config holds configuration for the HTTP endpoint source.
type Config struct {
	Enabled bool `mapstructure:"enabled" default:"false"`
	// URL returns the user list as a JSON array.
	URL string `mapstructure:"url" default:""`
	// DateParam names a query parameter set to the current date (YYYYMMDD). Empty omits it.
	DateParam string `mapstructure:"date_param" default:"date"`
	// TokenURL enables oauth2 client credentials authentication.
	TokenURL     string   `mapstructure:"token_url" default:""`
	ClientID     string   `mapstructure:"client_id" default:""`
	ClientSecret string   `mapstructure:"client_secret" default:""`
	Scopes       []string `mapstructure:"scopes"`
	// Timeout bounds one request.
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
	// ScopeFilter restricts the synced entries when attribute filters are enabled.
	ScopeFilter string                     `mapstructure:"scope_filter" default:""`
	Attributes  reconcile.AttributeMapping `mapstructure:"attributes"`
}

// DefaultAttributes keys users by email address.
var DefaultAttributes = reconcile.AttributeMapping{
	ExternalID:        reconcile.Attribute{Name: "email"},
	Email:             reconcile.Attribute{Name: "email"},
	Phone:             reconcile.Attribute{Name: "phone"},
	FirstName:         reconcile.Attribute{Name: "first_name"},
	LastName:          reconcile.Attribute{Name: "last_name"},
	PreferredUsername: reconcile.Attribute{Name: "email"},
}

// Mapping returns the configured mapping completed with DefaultAttributes.
func (c Config) Mapping() reconcile.AttributeMapping {
	return c.Attributes.WithDefaults(DefaultAttributes)
}
