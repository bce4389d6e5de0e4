package cli

import (
	"fmt"
	"strings"

	"github.com/lherron/navmerge/internal/catalog"
	"github.com/lherron/navmerge/internal/cli/appctx"
	"github.com/lherron/navmerge/internal/config"
	"github.com/lherron/navmerge/internal/download"
	"github.com/lherron/navmerge/internal/render"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download group and software layers from the ATT&CK website",
	Long: `Download the ATT&CK Navigator layers of groups and software from the
official ATT&CK website into <layers-path>/<domain>/<groups|software>/<ID>.json.

For each kind, choose the IDs to download, all of them, or none:
  navmerge download --groups G0016,G0007 --no-software
  navmerge download --all-software --domain mobile --no-groups

The list of groups and software comes from the catalog cache, which is
synced on first use (or with --refresh).`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.WithCatalog(), runDownload),
}

var (
	downloadLayersPath string
	downloadForcePath  bool
	downloadGroups     []string
	downloadAllGroups  bool
	downloadNoGroups   bool
	downloadSoftware   []string
	downloadAllSoft    bool
	downloadNoSoftware bool
	downloadDomain     string
	downloadRefresh    bool
	downloadJSON       bool
	downloadYAML       bool
)

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVar(&downloadLayersPath, "layers-path", "", "Folder where layers will be downloaded (default from config, ./layers)")
	downloadCmd.Flags().BoolVar(&downloadForcePath, "force-path", false, "Allow downloading into an existing folder (can overwrite existing files)")
	downloadCmd.Flags().StringSliceVar(&downloadGroups, "groups", nil, "Download the layers of these group IDs")
	downloadCmd.Flags().BoolVar(&downloadAllGroups, "all-groups", false, "Download all group layers")
	downloadCmd.Flags().BoolVar(&downloadNoGroups, "no-groups", false, "Don't download group layers")
	downloadCmd.Flags().StringSliceVar(&downloadSoftware, "software", nil, "Download the layers of these software IDs")
	downloadCmd.Flags().BoolVar(&downloadAllSoft, "all-software", false, "Download all software layers")
	downloadCmd.Flags().BoolVar(&downloadNoSoftware, "no-software", false, "Don't download software layers")
	downloadCmd.Flags().StringVar(&downloadDomain, "domain", catalog.DomainAll, "Only download layers of this domain: all, enterprise, mobile or ics")
	downloadCmd.Flags().BoolVar(&downloadRefresh, "refresh", false, "Refresh the catalog cache before downloading")
	downloadCmd.Flags().BoolVar(&downloadJSON, "json", false, "Print the download report as JSON")
	downloadCmd.Flags().BoolVar(&downloadYAML, "yaml", false, "Print the download report as YAML")

	downloadCmd.MarkFlagsMutuallyExclusive("groups", "all-groups", "no-groups")
	downloadCmd.MarkFlagsMutuallyExclusive("software", "all-software", "no-software")
}

// kindSelection is what the user asked for one kind of entry.
type kindSelection struct {
	kind string
	ids  []string
	all  bool
	none bool
}

func (s kindSelection) validate() error {
	set := 0
	if len(s.ids) > 0 {
		set++
	}
	if s.all {
		set++
	}
	if s.none {
		set++
	}
	if set != 1 {
		return fmt.Errorf("choose exactly one of --%s <IDs>, --all-%s or --no-%s", s.kind, s.kind, s.kind)
	}
	return nil
}

type downloadReport struct {
	Root     string          `json:"root" yaml:"root"`
	Domains  []string        `json:"domains" yaml:"domains"`
	NotFound []string        `json:"not_found" yaml:"not_found"`
	Stats    *download.Stats `json:"stats" yaml:"stats"`
}

func runDownload(app *appctx.App, cmd *cobra.Command, args []string) error {
	format, err := render.SelectFormat(downloadJSON, downloadYAML, false)
	if err != nil {
		return exitError(2, err)
	}

	selections := []kindSelection{
		{kind: catalog.KindGroups, ids: downloadGroups, all: downloadAllGroups, none: downloadNoGroups},
		{kind: catalog.KindSoftware, ids: downloadSoftware, all: downloadAllSoft, none: downloadNoSoftware},
	}
	for _, s := range selections {
		if err := s.validate(); err != nil {
			return exitError(2, err)
		}
	}
	if downloadNoGroups && downloadNoSoftware {
		app.Log.Infof("Nothing to download!")
		return nil
	}

	domains, err := catalog.ParseDomains(downloadDomain)
	if err != nil {
		return exitError(2, err)
	}

	root := firstNonEmpty(downloadLayersPath, app.Config.LayersPath, config.DefaultLayersPath)
	if err := download.PrepareRoot(root, downloadForcePath, app.Log); err != nil {
		return exitError(1, err)
	}

	ctx := commandContext(cmd)
	session := newSession(app)
	store := catalog.NewStore(app.DB)

	synced, err := store.Synced(catalog.Domains)
	if err != nil {
		return exitError(1, err)
	}
	if downloadRefresh || !synced {
		if _, err := syncCatalog(ctx, app, session, catalog.Domains); err != nil {
			return exitError(1, fmt.Errorf("failed to sync catalog: %w", err))
		}
	}

	entries, err := store.List()
	if err != nil {
		return exitError(1, err)
	}

	var selected []catalog.Entry
	var notFound []string
	for _, s := range selections {
		if s.none {
			continue
		}
		ofKind := catalog.Restrict(entries, s.kind, catalog.DomainAll)
		if s.all {
			selected = append(selected, ofKind...)
			continue
		}
		found, pending := catalog.Select(ofKind, s.ids)
		if len(pending) > 0 {
			app.Log.Warnf("%s %s IDs could not be found!", strings.Join(pending, ", "), s.kind)
			notFound = append(notFound, pending...)
		}
		selected = append(selected, found...)
	}
	selected = catalog.NarrowDomains(selected, domains)

	downloader := download.NewDownloader(session, root, firstNonEmpty(app.Config.AttackURL, config.DefaultAttackURL), app.Log)
	stats, err := downloader.DownloadAll(ctx, selected)
	if err != nil {
		return exitError(1, err)
	}

	r := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: format})
	if r.Structured() {
		if notFound == nil {
			notFound = []string{}
		}
		return r.Render(downloadReport{Root: root, Domains: domains, NotFound: notFound, Stats: stats})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d Groups and %d/%d Software layers entirely downloaded, %d files written in %s\n",
		stats.Downloaded[catalog.KindGroups], stats.Planned[catalog.KindGroups],
		stats.Downloaded[catalog.KindSoftware], stats.Planned[catalog.KindSoftware],
		stats.Files, root)
	return nil
}
