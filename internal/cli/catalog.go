package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/lherron/navmerge/internal/catalog"
	"github.com/lherron/navmerge/internal/cli/appctx"
	"github.com/lherron/navmerge/internal/config"
	"github.com/lherron/navmerge/internal/download"
	"github.com/lherron/navmerge/internal/render"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the cached list of ATT&CK groups and software",
	Long: `The catalog lists the ATT&CK groups and software and the domains their
layers are published in. It is read from the STIX bundles of the
mitre/cti repository and cached in a local SQLite database.`,
}

var catalogSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the catalog cache from the ATT&CK STIX bundles",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.WithCatalog(), runCatalogSync),
}

var catalogLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached groups and software",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.ReadCatalog(), runCatalogLs),
}

var (
	catalogSyncDomain string

	catalogLsKind      string
	catalogLsDomain    string
	catalogLsJSON      bool
	catalogLsYAML      bool
	catalogLsPorcelain bool
)

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogSyncCmd)
	catalogCmd.AddCommand(catalogLsCmd)

	catalogSyncCmd.Flags().StringVar(&catalogSyncDomain, "domain", catalog.DomainAll, "Domain to refresh: all, enterprise, mobile or ics")

	catalogLsCmd.Flags().StringVar(&catalogLsKind, "kind", "", "Only list groups or software")
	catalogLsCmd.Flags().StringVar(&catalogLsDomain, "domain", catalog.DomainAll, "Only list entries published in this domain")
	catalogLsCmd.Flags().BoolVar(&catalogLsJSON, "json", false, "Output as JSON")
	catalogLsCmd.Flags().BoolVar(&catalogLsYAML, "yaml", false, "Output as YAML")
	catalogLsCmd.Flags().BoolVar(&catalogLsPorcelain, "porcelain", false, "Tab-separated output for scripts")
}

func runCatalogSync(app *appctx.App, cmd *cobra.Command, args []string) error {
	domains, err := catalog.ParseDomains(catalogSyncDomain)
	if err != nil {
		return exitError(2, err)
	}

	session := newSession(app)
	total, err := syncCatalog(commandContext(cmd), app, session, domains)
	if err != nil {
		return exitError(1, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d catalog entries cached in %s\n", total, app.DB.Path())
	return nil
}

// syncCatalog refreshes the cached entries of domains and returns how many
// entries were stored.
func syncCatalog(ctx context.Context, app *appctx.App, fetcher catalog.Fetcher, domains []string) (int, error) {
	app.Log.Infof("Fetching the ATT&CK catalog, this could take a while ...")
	client := catalog.NewClient(fetcher, firstNonEmpty(app.Config.CatalogURL, config.DefaultCatalogURL), app.Log)

	byDomain, err := client.FetchDomains(ctx, domains)
	if err != nil {
		return 0, err
	}

	store := catalog.NewStore(app.DB)
	total := 0
	for _, domain := range domains {
		syncID, err := store.Replace(domain, byDomain[domain])
		if err != nil {
			return total, err
		}
		total += len(byDomain[domain])
		app.Log.Debugf("sync %s stored %d %s entries", syncID, len(byDomain[domain]), domain)
	}
	return total, nil
}

func runCatalogLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	format, err := render.SelectFormat(catalogLsJSON, catalogLsYAML, catalogLsPorcelain)
	if err != nil {
		return exitError(2, err)
	}
	if catalogLsKind != "" && catalogLsKind != catalog.KindGroups && catalogLsKind != catalog.KindSoftware {
		return exitError(2, fmt.Errorf("invalid kind %q: must be one of: groups, software", catalogLsKind))
	}
	if _, err := catalog.ParseDomains(catalogLsDomain); err != nil {
		return exitError(2, err)
	}

	entries, err := catalog.NewStore(app.DB).List()
	if err != nil {
		return exitError(1, err)
	}

	var listed []catalog.Entry
	for _, e := range entries {
		if catalogLsKind != "" && e.Kind != catalogLsKind {
			continue
		}
		if catalogLsDomain != "" && catalogLsDomain != catalog.DomainAll && !hasDomain(e, catalogLsDomain) {
			continue
		}
		listed = append(listed, e)
	}

	r := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: format})
	if r.Structured() {
		if listed == nil {
			listed = []catalog.Entry{}
		}
		return r.Render(listed)
	}

	if len(listed) == 0 {
		app.Log.Infof("No catalog entries (run 'navmerge catalog sync' first)")
		return nil
	}
	rows := make([][]string, 0, len(listed))
	for _, e := range listed {
		rows = append(rows, []string{e.ID, e.Kind, e.Name, strings.Join(e.Domains, ",")})
	}
	return r.RenderTable([]string{"ID", "KIND", "NAME", "DOMAINS"}, rows)
}

func hasDomain(e catalog.Entry, domain string) bool {
	for _, d := range e.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// newSession builds the one HTTP session shared by a command run.
func newSession(app *appctx.App) *download.Session {
	opts := []download.SessionOption{
		download.WithRetries(app.Config.HTTPRetries),
		download.WithLogger(app.Log),
	}
	if app.Config.HTTPTimeout > 0 {
		opts = append(opts, download.WithTimeout(app.Config.HTTPTimeout))
	}
	return download.NewSession(opts...)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
