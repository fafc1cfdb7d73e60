package zitadel

import (
	"strings"
	"time"
)

// Config holds configuration for the Zitadel provider.
type Config struct {
	// URL is the instance base URL (e.g., https://auth.example.com).
	URL string `mapstructure:"url" default:""`
	// OrganizationID scopes every request through the x-zitadel-orgid header.
	OrganizationID string `mapstructure:"organization_id" default:""`
	// ProjectID is the project users are granted.
	ProjectID string `mapstructure:"project_id" default:""`
	// Role is the project role granted to users.
	Role string `mapstructure:"role" default:"User"`
	// IdpID is the identity provider users are linked to when SSO is enforced.
	IdpID string `mapstructure:"idp_id" default:""`

	// Token is a personal access token. It takes precedence over client credentials.
	Token        string   `mapstructure:"token" default:""`
	ClientID     string   `mapstructure:"client_id" default:""`
	ClientSecret string   `mapstructure:"client_secret" default:""`
	TokenURL     string   `mapstructure:"token_url" default:""`
	Scopes       []string `mapstructure:"scopes"`

	// Timeout bounds one API call.
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
	// PageSize is the number of users requested per search page.
	PageSize int `mapstructure:"page_size" default:"500"`
	// Concurrency bounds the parallel metadata reads while listing users.
	Concurrency int `mapstructure:"concurrency" default:"8"`
}

// tokenURL returns the configured token endpoint or the instance default.
func (c Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return strings.TrimSuffix(c.URL, "/") + "/oauth/v2/token"
}

// scopes returns the configured scopes or the ones needed for the management API.
func (c Config) scopes() []string {
	if len(c.Scopes) > 0 {
		return c.Scopes
	}
	return []string{"openid", "urn:zitadel:iam:org:project:id:zitadel:aud"}
}
