package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"identity-sync/core/database"
	"identity-sync/core/ldapfilter"
	"identity-sync/core/logger"
	"identity-sync/core/reconcile"
	"identity-sync/core/server"
	"identity-sync/core/storage"
	"identity-sync/feature/csv"
	"identity-sync/feature/endpoint"
	"identity-sync/feature/ldap"
	"identity-sync/feature/zitadel"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileEnv names the environment variable pointing at a YAML configuration file.
const FileEnv = "IDSYNC_CONFIG"

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Server holds configuration for the status API.
	Server server.Config `mapstructure:"server"`
	// Database holds configuration for the run lock database.
	Database database.Config `mapstructure:"database"`
	// Storage holds configuration for the object storage (e.g., S3, Minio).
	Storage storage.Config `mapstructure:"storage"`
	// Provider holds configuration for the identity provider.
	Provider zitadel.Config `mapstructure:"provider"`
	// Sources holds the configuration of every source kind.
	Sources Sources `mapstructure:"sources"`
	// Features are the process-wide toggles of a run.
	Features reconcile.Features `mapstructure:"features"`
	// Sync holds run scheduling and execution settings.
	Sync Sync `mapstructure:"sync"`
}

// Sources groups the source adapters. Several may be enabled at once.
type Sources struct {
	LDAP     ldap.Config     `mapstructure:"ldap"`
	CSV      csv.Config      `mapstructure:"csv"`
	Endpoint endpoint.Config `mapstructure:"endpoint"`
}

// Sync holds run settings.
type Sync struct {
	// Interval is the time between scheduled runs of the start command.
	Interval time.Duration `mapstructure:"interval" default:"1h"`
	// Workers is the number of actions applied in parallel.
	Workers int `mapstructure:"workers" default:"1"`
	// FetchTimeout bounds reading each population.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" default:"5m"`
	// ActionTimeout bounds each provider action.
	ActionTimeout time.Duration `mapstructure:"action_timeout" default:"30s"`
	// LockName is the run lock held while reconciling when the database is enabled.
	LockName string `mapstructure:"lock_name" default:"identity-sync"`
}

// LoadConfig loads configuration from the .env file, the optional YAML file
// named by IDSYNC_CONFIG and environment variables.
func LoadConfig(path string) (*Config, error) {
	return Load(path, "")
}

// Load is LoadConfig with an explicit YAML file. An empty file falls back to
// IDSYNC_CONFIG, then to config.yaml in path if it exists.
func Load(path, file string) (*Config, error) {
	// 1. Load .env file if it exists
	envPath := filepath.Join(path, ".env")

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	if file == "" {
		file = os.Getenv(FileEnv)
	}
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate reports every setting that prevents a run.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !c.Sources.LDAP.Enabled && !c.Sources.CSV.Enabled && !c.Sources.Endpoint.Enabled {
		add("no source is enabled")
	}
	if c.Provider.URL == "" {
		add("provider.url is required")
	}
	if c.Provider.ProjectID == "" {
		add("provider.project_id is required")
	}
	if c.Features.EnforceSSO && c.Provider.IdpID == "" {
		add("provider.idp_id is required when features.enforce_sso is enabled")
	}
	if c.Sync.Workers < 1 {
		add("sync.workers must be at least 1, got %d", c.Sync.Workers)
	}
	if c.Sync.Interval <= 0 {
		add("sync.interval must be positive")
	}

	if src := c.Sources.CSV; src.Enabled {
		if src.Path == "" && src.Object == "" {
			add("sources.csv needs a path or an object")
		}
		if src.Object != "" && !c.Storage.IsConfigured() {
			add("sources.csv.object requires storage to be configured")
		}
	}
	if c.Sources.Endpoint.Enabled && c.Sources.Endpoint.URL == "" {
		add("sources.endpoint.url is required")
	}

	if c.Features.AttributeFilters {
		for name, filter := range map[string]string{
			"sources.ldap.scope_filter":     c.Sources.LDAP.ScopeFilter,
			"sources.csv.scope_filter":      c.Sources.CSV.ScopeFilter,
			"sources.endpoint.scope_filter": c.Sources.Endpoint.ScopeFilter,
		} {
			if filter == "" {
				continue
			}
			if err := ldapfilter.Validate(filter); err != nil {
				add("%s: %w", name, err)
			}
		}
	}

	return errors.Join(errs...)
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
