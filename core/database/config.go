package database

import "time"

// Config holds configuration for the database connection.
type Config struct {
	// Enabled turns on the run lock. Without it concurrent processes are not coordinated.
	Enabled bool `mapstructure:"enabled" default:"false"`
	// Driver is the database driver (mysql, sqlite).
	Driver string `mapstructure:"driver" default:"mysql"`
	// Host is the database host.
	Host string `mapstructure:"host" default:"localhost"`
	// Port is the database port.
	Port int `mapstructure:"port" default:"3306"`
	// User is the database user.
	User string `mapstructure:"user" default:"root"`
	// Password is the database password.
	Password string `mapstructure:"password" default:""`
	// Name is the database name, or the file path for sqlite.
	Name string `mapstructure:"name" default:"identity_sync"`
	// TimeoutSeconds is the connection timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// LockTTL is how long a run lock survives without renewal before another
	// process may take it over. A running sync renews it every third of the TTL.
	LockTTL time.Duration `mapstructure:"lock_ttl" default:"1h"`
}

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)
