// Package config provides configuration management for identity-sync.
//
// It utilizes Viper for loading configuration from a .env file, an optional
// YAML file and environment variables, in increasing order of precedence.
// Defaults come from the `default` struct tags of each section.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Log: Logging level and format
//   - Server: status API address and API key
//   - Database: run lock database (MySQL or SQLite)
//   - Storage: S3/MinIO credentials, bucket and report object
//   - Provider: Zitadel instance, organization, project and credentials
//   - Sources: ldap, csv and endpoint source adapters
//   - Features: require_verification, enforce_sso, attribute_filters, dry_run, deactivate_only
//   - Sync: interval, workers, timeouts and lock name
//
// Nested keys map to environment variables by joining them with underscores,
// e.g. sources.ldap.bind_dn is SOURCES_LDAP_BIND_DN.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
