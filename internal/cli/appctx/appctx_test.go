package appctx

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/navmerge/internal/db"
	"github.com/spf13/cobra"
)

// testCommand returns a command carrying the global flags and a sandboxed
// HOME so no user config leaks into the test.
func testCommand(t *testing.T, cachePath string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("NAVMERGE_CACHE_PATH", cachePath)
	t.Setenv("NAVMERGE_LOG_LEVEL", "")

	oldCwd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(oldCwd) })
	if err := os.Chdir(home); err != nil {
		t.Fatalf("Failed to change to temp directory: %v", err)
	}

	stderr := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetErr(stderr)
	cmd.Flags().String("cache", "", "Catalog cache path")
	cmd.Flags().String("log-level", "", "Log level")
	return cmd, stderr
}

func TestBootstrap_ConfigOnly(t *testing.T) {
	cmd, stderr := testCommand(t, filepath.Join(t.TempDir(), "cache.db"))

	app, err := Bootstrap(cmd, DefaultOptions())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config == nil {
		t.Error("Config should not be nil")
	}
	if app.DB != nil {
		t.Error("DB should be nil when NeedsCatalog is false")
	}

	app.Log.Infof("hello")
	if stderr.String() != "hello\n" {
		t.Errorf("expected logger to write to command stderr, got %q", stderr.String())
	}
}

func TestBootstrap_WithCatalogMigrates(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "nested", "cache.db")
	cmd, _ := testCommand(t, cachePath)

	app, err := Bootstrap(cmd, WithCatalog())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.DB == nil {
		t.Fatal("DB should not be nil when NeedsCatalog is true")
	}
	if err := app.DB.RequiresMigrationError(); err != nil {
		t.Errorf("expected migrated cache, got %v", err)
	}
}

func TestBootstrap_ReadCatalogRequiresMigration(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	cmd, _ := testCommand(t, cachePath)

	_, err := Bootstrap(cmd, ReadCatalog())
	if err == nil {
		t.Fatal("expected error for unmigrated cache")
	}
	if !strings.Contains(err.Error(), "navmerge catalog sync") {
		t.Errorf("expected hint to run catalog sync, got %v", err)
	}

	database, err := db.Open(cachePath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	database.Close()

	app, err := Bootstrap(cmd, ReadCatalog())
	if err != nil {
		t.Fatalf("Bootstrap failed on migrated cache: %v", err)
	}
	app.Close()
	app.Close()
}

func TestBootstrap_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	cmd, stderr := testCommand(t, filepath.Join(dir, "env.db"))
	override := filepath.Join(dir, "override.db")
	if err := cmd.ParseFlags([]string{"--cache", override, "--log-level", "warn"}); err != nil {
		t.Fatal(err)
	}

	app, err := Bootstrap(cmd, DefaultOptions())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config.CachePath != override {
		t.Errorf("CachePath should be override path %q, got %q", override, app.Config.CachePath)
	}
	app.Log.Infof("hidden")
	app.Log.Warnf("shown")
	if stderr.String() != "warning: shown\n" {
		t.Errorf("expected only the warning, got %q", stderr.String())
	}
}

func TestBootstrap_InvalidLogLevel(t *testing.T) {
	cmd, _ := testCommand(t, filepath.Join(t.TempDir(), "cache.db"))
	t.Setenv("NAVMERGE_LOG_LEVEL", "chatty")

	if _, err := Bootstrap(cmd, DefaultOptions()); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestWithApp(t *testing.T) {
	cmd, _ := testCommand(t, filepath.Join(t.TempDir(), "cache.db"))

	var got *App
	run := WithApp(WithCatalog(), func(app *App, cmd *cobra.Command, args []string) error {
		got = app
		if app.DB == nil {
			t.Error("expected catalog inside run function")
		}
		return nil
	})
	if err := run(cmd, nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got == nil || got.DB != nil {
		t.Error("expected catalog to be closed after run")
	}
}
