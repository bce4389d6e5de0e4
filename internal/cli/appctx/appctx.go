// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, logger setup and catalog cache opening
// to reduce boilerplate across commands.
package appctx

import (
	"fmt"

	"github.com/lherron/navmerge/internal/config"
	"github.com/lherron/navmerge/internal/db"
	"github.com/lherron/navmerge/internal/logging"
	"github.com/spf13/cobra"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Log receives progress and warnings (stderr of the command)
	Log *logging.Logger

	// DB is the catalog cache (nil if NeedsCatalog is false)
	DB *db.DB
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsCatalog indicates whether to open the catalog cache.
	NeedsCatalog bool

	// MigrateCatalog applies pending cache migrations instead of failing
	// on them. Only meaningful with NeedsCatalog.
	MigrateCatalog bool
}

// DefaultOptions returns default options (config and logger only).
func DefaultOptions() Options {
	return Options{}
}

// WithCatalog returns options that open and migrate the catalog cache.
func WithCatalog() Options {
	return Options{
		NeedsCatalog:   true,
		MigrateCatalog: true,
	}
}

// ReadCatalog returns options that open the catalog cache as it is,
// failing if it needs migrating.
func ReadCatalog() Options {
	return Options{NeedsCatalog: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The catalog cache is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	if f := cmd.Flag("cache"); f != nil && f.Value.String() != "" {
		app.Config.CachePath = f.Value.String()
	}
	if f := cmd.Flag("log-level"); f != nil && f.Value.String() != "" {
		app.Config.LogLevel = f.Value.String()
	}

	level, err := logging.ParseLevel(app.Config.LogLevel)
	if err != nil {
		return nil, err
	}
	app.Log = logging.New(cmd.ErrOrStderr(), level)

	if opts.NeedsCatalog {
		database, err := db.Open(app.Config.CachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open catalog cache: %w", err)
		}
		app.DB = database

		if opts.MigrateCatalog {
			applied, err := database.MigrateWithInfo()
			if err != nil {
				app.Close()
				return nil, fmt.Errorf("failed to migrate catalog cache: %w", err)
			}
			for _, m := range applied {
				app.Log.Debugf("applied migration %s", m)
			}
		} else if err := database.RequiresMigrationError(); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}
