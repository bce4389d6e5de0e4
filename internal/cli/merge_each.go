package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lherron/navmerge/internal/cli/appctx"
	"github.com/lherron/navmerge/internal/merge"
	"github.com/lherron/navmerge/internal/paths"
	"github.com/lherron/navmerge/internal/render"
	"github.com/lherron/navmerge/internal/source"
	"github.com/spf13/cobra"
)

var mergeEachCmd = &cobra.Command{
	Use:   "merge-each",
	Short: "Merge the layers of each folder into a file inside that folder",
	Long: `Merge the group, software and custom layers of each given folder.

Files named like ATT&CK IDs (G0016.json, S0154.json) and files starting
with CUSTOM are merged into processed.json in the same folder. Folders
without layers are skipped. By default a file that is not a valid layer
stops the run.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runMergeEach),
}

var (
	eachPaths       []string
	eachPatterns    []string
	eachOutputName  string
	eachOnInvalid   string
	eachResetColors bool
	eachJSON        bool
	eachYAML        bool
)

func init() {
	rootCmd.AddCommand(mergeEachCmd)

	mergeEachCmd.Flags().StringSliceVarP(&eachPaths, "path", "p", nil, "Folder containing JSON ATT&CK layer files (repeatable, required)")
	mergeEachCmd.Flags().StringSliceVar(&eachPatterns, "pattern", nil, "File name patterns to merge (default [A-Z]????.json and CUSTOM*.json)")
	mergeEachCmd.Flags().StringVar(&eachOutputName, "output-name", "processed.json", "Name of the merged file written in each folder")
	mergeEachCmd.Flags().StringVar(&eachOnInvalid, "on-invalid", "", "What to do with files that are not valid layers: fail or skip (default fail)")
	mergeEachCmd.Flags().BoolVar(&eachResetColors, "reset-colors", false, "Clear technique colors in the merged layers")
	mergeEachCmd.Flags().BoolVar(&eachJSON, "json", false, "Print the merge report as JSON")
	mergeEachCmd.Flags().BoolVar(&eachYAML, "yaml", false, "Print the merge report as YAML")
	mergeEachCmd.MarkFlagRequired("path")
}

func runMergeEach(app *appctx.App, cmd *cobra.Command, args []string) error {
	format, err := render.SelectFormat(eachJSON, eachYAML, false)
	if err != nil {
		return exitError(2, err)
	}
	if len(eachPaths) == 0 {
		return exitError(2, fmt.Errorf("at least one --path is required"))
	}

	outputName := firstNonEmpty(eachOutputName, "processed.json")
	if strings.ContainsAny(outputName, `/\`) {
		return exitError(2, fmt.Errorf("--output-name must be a file name, got %q", outputName))
	}

	policy, err := source.ParsePolicy(firstNonEmpty(eachOnInvalid, app.Config.OnInvalid, string(source.PolicyFail)))
	if err != nil {
		return exitError(2, err)
	}

	patterns, err := layerPatterns(eachPatterns, paths.ActorLayers)
	if err != nil {
		return exitError(2, err)
	}

	dirs, invalid := paths.ExpandDirs(eachPaths, false)
	for _, e := range invalid {
		app.Log.Warnf("%v", e)
	}

	cfg := mergeConfig(app.Config)
	cfg.Merge.ResetColor = eachResetColors
	cfg.Metadata.Title = merge.DefaultTitle

	collector := source.NewCollector(policy, app.Log)
	run := newRunReport()
	for _, dir := range dirs {
		app.Log.Infof("Processing layers in %q ...", dir)

		output := filepath.Join(dir, outputName)
		sources, err := collector.Collect(dir, patterns, func(p string) bool {
			return paths.SamePath(p, output)
		})
		if err != nil {
			return exitError(1, err)
		}
		if len(sources) == 0 {
			app.Log.Infof("No layers have been imported in this path, skipping ...")
			run.Skipped = append(run.Skipped, dir)
			continue
		}
		app.Log.Infof("%d layers have been imported.", len(sources))

		result, err := merge.Run(sources, cfg, app.Log)
		if err != nil {
			return exitError(1, fmt.Errorf("failed to merge layers in %s: %w", dir, err))
		}

		rep, err := writeMerged(result, output, false)
		if err != nil {
			return exitError(1, err)
		}
		run.Merged = append(run.Merged, *rep)
	}

	return printRunReport(cmd, format, run)
}
