package cmd

import (
	"errors"
	"fmt"
	"os"

	"identity-sync/core/logger"
	"identity-sync/core/reconcile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// configFile is the --config flag shared by every command.
var configFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "identity-sync",
	Short: "Identity reconciliation engine",
	Long: `identity-sync keeps the users of an identity provider in line with one or
more authoritative sources (LDAP directory, CSV file, HTTP endpoint).
Users are created, updated and disabled; they are never deleted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError ends the process with Code. Err, when set, is logged first.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func Execute() {
	err := RootCmd.Execute()
	if err == nil {
		return
	}

	code := reconcile.ExitFatal
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
		err = exitErr.Err
	}

	if err != nil {
		// Console format and the development config (ISO8601 timestamps) suit a CLI.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			// Absolute fallback if logger creation fails (rare)
			fmt.Println(err)
		}
	}
	os.Exit(code)
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file (default $IDSYNC_CONFIG or ./config.yaml)")
}
