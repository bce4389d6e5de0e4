package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lherron/navmerge/internal/catalog"
	"github.com/lherron/navmerge/internal/cli/appctx"
	"github.com/lherron/navmerge/internal/config"
	"github.com/lherron/navmerge/internal/db"
	"github.com/lherron/navmerge/internal/paths"
	"github.com/lherron/navmerge/internal/render"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, catalog cache and layers folder",
	Long: `Performs health checks on the configuration, the catalog cache and the
layers download folder. Exits with status 1 when a check fails.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runDoctor),
}

var (
	doctorJSON    bool
	doctorYAML    bool
	doctorVerbose bool
)

// catalogStaleAfter is the age past which a catalog sync is reported.
const catalogStaleAfter = 30 * 24 * time.Hour

const (
	statusOK      = "ok"
	statusWarning = "warning"
	statusError   = "error"
)

type checkResult struct {
	Name     string   `json:"name" yaml:"name"`
	Category string   `json:"category" yaml:"category"`
	Status   string   `json:"status" yaml:"status"`
	Message  string   `json:"message,omitempty" yaml:"message,omitempty"`
	Details  []string `json:"details,omitempty" yaml:"details,omitempty"`
}

type doctorReport struct {
	Version       string        `json:"version" yaml:"version"`
	CachePath     string        `json:"cache_path" yaml:"cache_path"`
	LayersPath    string        `json:"layers_path" yaml:"layers_path"`
	Checks        []checkResult `json:"checks" yaml:"checks"`
	Warnings      int           `json:"warnings" yaml:"warnings"`
	Errors        int           `json:"errors" yaml:"errors"`
	OverallStatus string        `json:"overall_status" yaml:"overall_status"`
}

func (r *doctorReport) add(category string, checks ...checkResult) {
	for _, c := range checks {
		c.Category = category
		r.Checks = append(r.Checks, c)
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output JSON")
	doctorCmd.Flags().BoolVar(&doctorYAML, "yaml", false, "Output YAML")
	doctorCmd.Flags().BoolVar(&doctorVerbose, "verbose", false, "Verbose output")
}

func runDoctor(app *appctx.App, cmd *cobra.Command, args []string) error {
	format, err := render.SelectFormat(doctorJSON, doctorYAML, false)
	if err != nil {
		return exitError(2, err)
	}

	cfg := app.Config
	report := &doctorReport{
		Version:       Version,
		CachePath:     cfg.CachePath,
		LayersPath:    firstNonEmpty(cfg.LayersPath, config.DefaultLayersPath),
		Checks:        []checkResult{},
		OverallStatus: statusOK,
	}

	report.add("Configuration", checkConfig(cfg)...)
	report.add("Catalog Cache", checkCatalogCache(cfg.CachePath, time.Now())...)
	report.add("Layers", checkLayersPath(report.LayersPath)...)

	for _, check := range report.Checks {
		switch check.Status {
		case statusWarning:
			report.Warnings++
		case statusError:
			report.Errors++
			report.OverallStatus = statusError
		}
	}
	if report.Warnings > 0 && report.OverallStatus == statusOK {
		report.OverallStatus = statusWarning
	}

	r := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: format})
	if r.Structured() {
		if err := r.Render(report); err != nil {
			return err
		}
	} else {
		printDoctorReport(cmd, report)
	}

	if report.Errors > 0 {
		return exitError(1, fmt.Errorf("%d check(s) failed", report.Errors))
	}
	return nil
}

func checkConfig(cfg *config.Config) []checkResult {
	var results []checkResult

	if err := cfg.Validate(); err != nil {
		results = append(results, checkResult{
			Name:    "config_valid",
			Status:  statusError,
			Message: fmt.Sprintf("Invalid configuration: %v", err),
		})
	} else {
		results = append(results, checkResult{
			Name:    "config_valid",
			Status:  statusOK,
			Message: fmt.Sprintf("Configuration is valid (log level %s, max score floor %g)", cfg.LogLevel, cfg.MaxScoreFloor),
		})
	}

	output := firstNonEmpty(cfg.Output, config.DefaultOutput)
	exists, err := fileExists(output)
	switch {
	case err != nil:
		results = append(results, checkResult{
			Name:    "output_file",
			Status:  statusError,
			Message: fmt.Sprintf("Merged layer output is unusable: %v", err),
		})
	case exists:
		results = append(results, checkResult{
			Name:    "output_file",
			Status:  statusWarning,
			Message: fmt.Sprintf("Merged layer %s already exists", output),
			Details: []string{"navmerge merge needs --force to overwrite it"},
		})
	default:
		results = append(results, checkResult{
			Name:    "output_file",
			Status:  statusOK,
			Message: fmt.Sprintf("Merged layer output: %s", output),
		})
	}
	return results
}

// checkCatalogCache inspects the cache without creating or migrating it.
func checkCatalogCache(cachePath string, now time.Time) []checkResult {
	var results []checkResult

	info, err := os.Stat(cachePath)
	if err != nil {
		return append(results, checkResult{
			Name:    "cache_file",
			Status:  statusWarning,
			Message: fmt.Sprintf("Catalog cache not found: %s", cachePath),
			Details: []string{"Run 'navmerge catalog sync' to create it"},
		})
	}
	results = append(results, checkResult{
		Name:    "cache_file",
		Status:  statusOK,
		Message: fmt.Sprintf("Catalog cache: %s (%.1f KB)", cachePath, float64(info.Size())/1024),
	})

	database, err := db.Open(cachePath)
	if err != nil {
		return append(results, checkResult{
			Name:    "cache_open",
			Status:  statusError,
			Message: fmt.Sprintf("Failed to open catalog cache: %v", err),
		})
	}
	defer database.Close()

	var integrity string
	if err := database.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil || integrity != "ok" {
		if err != nil {
			integrity = err.Error()
		}
		return append(results, checkResult{
			Name:    "integrity_check",
			Status:  statusError,
			Message: fmt.Sprintf("Catalog cache integrity check failed: %s", integrity),
			Details: []string{"Delete the cache file and run 'navmerge catalog sync'"},
		})
	}
	results = append(results, checkResult{
		Name:    "integrity_check",
		Status:  statusOK,
		Message: "Catalog cache integrity check passed",
	})

	applied, pending, err := database.MigrationStatus()
	if err != nil {
		return append(results, checkResult{
			Name:    "migrations",
			Status:  statusError,
			Message: fmt.Sprintf("Failed to read migration status: %v", err),
		})
	}
	if len(pending) > 0 {
		return append(results, checkResult{
			Name:    "migrations",
			Status:  statusWarning,
			Message: fmt.Sprintf("%d pending migration(s)", len(pending)),
			Details: append([]string{"Run 'navmerge catalog sync' to update"}, pending...),
		})
	}
	results = append(results, checkResult{
		Name:    "migrations",
		Status:  statusOK,
		Message: fmt.Sprintf("Schema up to date (%d migrations)", len(applied)),
	})

	store := catalog.NewStore(database)
	for _, domain := range catalog.Domains {
		results = append(results, checkSync(store, domain, now))
	}
	return results
}

func checkSync(store *catalog.Store, domain string, now time.Time) checkResult {
	name := "sync_" + domain
	last, err := store.LastSync(domain)
	if err != nil {
		return checkResult{Name: name, Status: statusError, Message: err.Error()}
	}
	if last == nil {
		return checkResult{
			Name:    name,
			Status:  statusWarning,
			Message: fmt.Sprintf("The %s catalog was never synced", domain),
			Details: []string{"Run 'navmerge catalog sync --domain " + domain + "'"},
		}
	}

	syncedAt, err := time.Parse(time.RFC3339, last.SyncedAt)
	if err != nil {
		return checkResult{
			Name:    name,
			Status:  statusWarning,
			Message: fmt.Sprintf("The %s catalog has an unreadable sync time %q", domain, last.SyncedAt),
		}
	}
	if age := now.Sub(syncedAt); age > catalogStaleAfter {
		return checkResult{
			Name:    name,
			Status:  statusWarning,
			Message: fmt.Sprintf("The %s catalog was synced %d days ago (%d entries)", domain, int(age.Hours()/24), last.Count),
			Details: []string{"Run 'navmerge catalog sync' to pick up new groups and software"},
		}
	}
	return checkResult{
		Name:    name,
		Status:  statusOK,
		Message: fmt.Sprintf("The %s catalog was synced at %s (%d entries)", domain, last.SyncedAt, last.Count),
	}
}

func checkLayersPath(root string) []checkResult {
	info, err := os.Stat(root)
	if errors.Is(err, os.ErrNotExist) {
		return []checkResult{{
			Name:    "layers_path",
			Status:  statusOK,
			Message: fmt.Sprintf("Layers folder %s will be created by navmerge download", root),
		}}
	}
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("not a directory")
		}
		return []checkResult{{
			Name:    "layers_path",
			Status:  statusError,
			Message: fmt.Sprintf("Layers folder %s is unusable: %v", root, err),
		}}
	}

	results := []checkResult{{
		Name:    "layers_path",
		Status:  statusOK,
		Message: fmt.Sprintf("Layers folder: %s", root),
	}}

	var details []string
	total := 0
	for _, domain := range catalog.Domains {
		for _, kind := range []string{catalog.KindGroups, catalog.KindSoftware} {
			files, err := paths.MatchFiles(filepath.Join(root, domain, kind), paths.ActorLayers)
			if err != nil {
				continue
			}
			total += len(files)
			details = append(details, fmt.Sprintf("%s/%s: %d", domain, kind, len(files)))
		}
	}
	results = append(results, checkResult{
		Name:    "layers_count",
		Status:  statusOK,
		Message: fmt.Sprintf("%d downloaded layers", total),
		Details: details,
	})
	return results
}

func printDoctorReport(cmd *cobra.Command, report *doctorReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "navmerge doctor %s\n\n", report.Version)
	fmt.Fprintf(out, "Catalog cache: %s\n", report.CachePath)
	fmt.Fprintf(out, "Layers folder: %s\n\n", report.LayersPath)

	for _, category := range []string{"Configuration", "Catalog Cache", "Layers"} {
		printed := false
		for _, check := range report.Checks {
			if check.Category != category {
				continue
			}
			if !printed {
				fmt.Fprintf(out, "%s\n", category)
				printed = true
			}
			icon := "✓"
			if check.Status == statusWarning {
				icon = "⚠"
			} else if check.Status == statusError {
				icon = "✗"
			}
			fmt.Fprintf(out, "  %s %s\n", icon, check.Message)
			if doctorVerbose {
				for _, detail := range check.Details {
					fmt.Fprintf(out, "      %s\n", detail)
				}
			}
		}
		if printed {
			fmt.Fprintln(out)
		}
	}

	if report.Errors > 0 {
		fmt.Fprintf(out, "Summary: %d error(s), %d warning(s)\n", report.Errors, report.Warnings)
	} else if report.Warnings > 0 {
		fmt.Fprintf(out, "Summary: %d warning(s)\n", report.Warnings)
	} else {
		fmt.Fprintf(out, "Summary: All checks passed ✓\n")
	}
	if !doctorVerbose && (report.Warnings > 0 || report.Errors > 0) {
		fmt.Fprintf(out, "\nRun with --verbose for detailed information\n")
	}
}
