package cli

import (
	"fmt"

	"github.com/lherron/navmerge/internal/cli/appctx"
	"github.com/lherron/navmerge/internal/config"
	"github.com/lherron/navmerge/internal/merge"
	"github.com/lherron/navmerge/internal/paths"
	"github.com/lherron/navmerge/internal/render"
	"github.com/lherron/navmerge/internal/source"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge all the layers found in folders into one file",
	Long: `Merge all the ATT&CK Navigator layers from folders into one file.

By default the current folder is scanned for *.json files. Each technique
score is added and comments are merged. If a technique is disabled in a
layer, it is disabled in the merged layer too. The merged layer is named
after the number of layers merged and its description lists them.

Use --dry-run to print a diff against the existing output instead of
writing it.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runMerge),
}

var (
	mergePaths      []string
	mergeRecursive  bool
	mergeOutput     string
	mergeForce      bool
	mergeOnInvalid  string
	mergePatterns   []string
	mergeKeepColors bool
	mergeDryRun     bool
	mergeJSON       bool
	mergeYAML       bool
)

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringSliceVarP(&mergePaths, "path", "p", []string{"./"}, "Folders containing JSON ATT&CK layer files (repeatable, globs allowed)")
	mergeCmd.Flags().BoolVarP(&mergeRecursive, "recursive", "r", false, "Recursively search for layer files in paths")
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "Path of the output merged layer file (default from config, ./merged_layers.json)")
	mergeCmd.Flags().BoolVarP(&mergeForce, "force", "f", false, "Allow overwriting an existing merged layer file")
	mergeCmd.Flags().StringVar(&mergeOnInvalid, "on-invalid", "", "What to do with files that are not valid layers: fail or skip (default skip)")
	mergeCmd.Flags().StringSliceVar(&mergePatterns, "pattern", nil, "File name patterns to merge (default *.json)")
	mergeCmd.Flags().BoolVar(&mergeKeepColors, "keep-colors", false, "Keep technique colors instead of resetting them")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "Show the changes without writing the output")
	mergeCmd.Flags().BoolVar(&mergeJSON, "json", false, "Print the merge report as JSON")
	mergeCmd.Flags().BoolVar(&mergeYAML, "yaml", false, "Print the merge report as YAML")
}

func runMerge(app *appctx.App, cmd *cobra.Command, args []string) error {
	format, err := render.SelectFormat(mergeJSON, mergeYAML, false)
	if err != nil {
		return exitError(2, err)
	}

	output := firstNonEmpty(mergeOutput, app.Config.Output, config.DefaultOutput)
	exists, err := fileExists(output)
	if err != nil {
		return exitError(1, err)
	}
	if exists && !mergeForce && !mergeDryRun {
		return exitError(1, fmt.Errorf("a merged layer file already exists in %q, and --force has not been given", output))
	}

	policy, err := source.ParsePolicy(firstNonEmpty(mergeOnInvalid, app.Config.OnInvalid, string(source.PolicySkip)))
	if err != nil {
		return exitError(2, err)
	}

	patterns, err := layerPatterns(mergePatterns, paths.AllLayers)
	if err != nil {
		return exitError(2, err)
	}

	roots := mergePaths
	if len(roots) == 0 {
		roots = []string{"./"}
	}
	dirs, invalid := paths.ExpandDirs(roots, mergeRecursive)
	for _, e := range invalid {
		app.Log.Warnf("%v", e)
	}

	collector := source.NewCollector(policy, app.Log)
	sources, err := collector.CollectAll(dirs, patterns, func(p string) bool {
		return paths.SamePath(p, output)
	})
	if err != nil {
		return exitError(1, err)
	}

	app.Log.Infof("All layers have been imported, merging ...")
	if len(sources) == 0 {
		app.Log.Infof("Nothing to do!")
		return nil
	}

	cfg := mergeConfig(app.Config)
	cfg.Merge.ResetColor = !mergeKeepColors
	cfg.Metadata.CountTitle = true
	cfg.Metadata.IncludeMaxScore = true

	result, err := merge.Run(sources, cfg, app.Log)
	if err != nil {
		return exitError(1, err)
	}

	rep, err := writeMerged(result, output, mergeDryRun)
	if err != nil {
		return exitError(1, err)
	}

	run := newRunReport()
	run.Merged = append(run.Merged, *rep)
	return printRunReport(cmd, format, run)
}

// mergeConfig derives merge policies from the configuration.
func mergeConfig(cfg *config.Config) merge.Config {
	c := merge.DefaultConfig()
	if cfg.MaxScoreFloor >= 1 {
		c.Merge.MaxScoreFloor = cfg.MaxScoreFloor
	}
	c.Metadata.LegendHigh = cfg.LegendHigh
	c.Metadata.LegendLow = cfg.LegendLow
	return c
}

// layerPatterns validates user patterns, falling back to defaults.
func layerPatterns(custom, defaults []string) ([]string, error) {
	if len(custom) == 0 {
		return defaults, nil
	}
	for _, p := range custom {
		if err := paths.ValidatePattern(p); err != nil {
			return nil, err
		}
	}
	return custom, nil
}
