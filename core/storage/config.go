package storage

import "time"

// Config holds configuration for the storage provider.
type Config struct {
	// Endpoint is the host of the storage service. An http:// or https://
	// scheme overrides UseSSL.
	Endpoint string `mapstructure:"endpoint" default:"localhost:9000"`
	// AccessKey is the access key ID for authentication.
	AccessKey string `mapstructure:"access_key" default:""`
	// SecretKey is the secret access key for authentication.
	SecretKey string `mapstructure:"secret_key" default:""`
	// UseSSL indicates whether to use SSL/TLS for connections.
	UseSSL bool `mapstructure:"use_ssl" default:"false"`
	// Bucket holds source extracts and run reports.
	Bucket string `mapstructure:"bucket" default:"identity-sync"`
	// Region is the location of the bucket (e.g., us-east-1).
	Region string `mapstructure:"region" default:""`
	// Timeout bounds connection setup and the wait for a response.
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
	// ReportObject is the object the latest run report is written to. Empty disables the upload.
	ReportObject string `mapstructure:"report_object" default:""`
}

// IsConfigured reports whether any storage consumer can use the client.
func (c Config) IsConfigured() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.Bucket != ""
}
