package csv

import "identity-sync/core/reconcile"

// Config holds configuration for the flat-file source.
type Config struct {
	// Enabled turns the source on.
	Enabled bool `mapstructure:"enabled" default:"false"`
	// Path is a local CSV file.
	Path string `mapstructure:"path" default:""`
	// Object is an object key in the storage bucket. It takes precedence over Path.
	Object string `mapstructure:"object" default:""`
	// Delimiter separates cells.
	Delimiter string `mapstructure:"delimiter" default:","`
	// MultiValueSeparator splits a cell into several values. Empty keeps cells whole.
	MultiValueSeparator string `mapstructure:"multi_value_separator" default:""`
	// ScopeFilter restricts the synced rows when attribute filters are enabled.
	ScopeFilter string `mapstructure:"scope_filter" default:""`
	// Attributes maps columns onto user fields.
	Attributes reconcile.AttributeMapping `mapstructure:"attributes"`
}

// DefaultAttributes maps the email, first_name, last_name, phone layout.
// The email address doubles as the external id.
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
