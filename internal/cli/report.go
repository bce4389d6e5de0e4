package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/lherron/navmerge/internal/layer"
	"github.com/lherron/navmerge/internal/merge"
	"github.com/lherron/navmerge/internal/render"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
)

// mergeReport describes one merged layer file.
type mergeReport struct {
	Output     string   `json:"output" yaml:"output"`
	Layers     int      `json:"layers" yaml:"layers"`
	Labels     []string `json:"labels" yaml:"labels"`
	Techniques int      `json:"techniques" yaml:"techniques"`
	Enabled    int      `json:"enabled" yaml:"enabled"`
	MaxScore   float64  `json:"max_score" yaml:"max_score"`
	DryRun     bool     `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Diff       string   `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// runReport is what a merge command prints in structured mode.
type runReport struct {
	RunID   string        `json:"run_id" yaml:"run_id"`
	Merged  []mergeReport `json:"merged" yaml:"merged"`
	Skipped []string      `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

func newRunReport() *runReport {
	return &runReport{RunID: uuid.New().String(), Merged: []mergeReport{}}
}

// writeMerged encodes the merged layer and writes it to output. With dryRun
// nothing is written and the report carries a unified diff of output
// against the would-be content instead.
func writeMerged(result *merge.Result, output string, dryRun bool) (*mergeReport, error) {
	data, err := layer.Encode(result.Document)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged layer: %w", err)
	}

	rep := &mergeReport{
		Output:     output,
		Layers:     result.Layers,
		Labels:     result.Labels,
		Techniques: result.Techniques,
		Enabled:    result.Enabled(),
		MaxScore:   result.MaxScore,
		DryRun:     dryRun,
	}

	if dryRun {
		rep.Diff, err = layerDiff(output, data)
		if err != nil {
			return nil, err
		}
		return rep, nil
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write merged layer: %w", err)
	}
	return rep, nil
}

// layerDiff returns a unified diff from the file at path to content. A
// missing file diffs as empty.
func layerDiff(path string, content []byte) (string, error) {
	fromFile := path
	current, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		current = nil
		fromFile = "/dev/null"
	} else if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(current)),
		B:        difflib.SplitLines(string(content)),
		FromFile: fromFile,
		ToFile:   path,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}

func printRunReport(cmd *cobra.Command, format render.Format, run *runReport) error {
	r := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: format})
	if r.Structured() {
		return r.Render(run)
	}

	out := cmd.OutOrStdout()
	for _, rep := range run.Merged {
		if rep.DryRun {
			if rep.Diff == "" {
				fmt.Fprintf(out, "%s is up to date.\n", rep.Output)
			} else {
				fmt.Fprint(out, rep.Diff)
			}
		}
		fmt.Fprintf(out, "Maximum score is %s.\n", merge.FormatScore(rep.MaxScore))
		fmt.Fprintf(out, "%d/%d techniques enabled\n", rep.Enabled, rep.Techniques)
		if rep.DryRun {
			fmt.Fprintf(out, "%d layers would be merged in %s\n", rep.Layers, rep.Output)
		} else {
			fmt.Fprintf(out, "%d layers merged in %s\n", rep.Layers, rep.Output)
		}
	}
	return nil
}
