package merge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lherron/navmerge/internal/layer"
)

// Gradient colors of a merged layer: transparent white to solid red.
const (
	GradientLowColor  = "#ffffff00"
	GradientHighColor = "#ff6666ff"
)

// DefaultTitle is the fixed name given to merged layers.
const DefaultTitle = "Matrix of aggregated techniques"

// ErrDegenerateGradient is returned when the maximum score would not leave
// room above the gradient minimum of 0.
var ErrDegenerateGradient = errors.New("merge: maximum score must be at least 1")

// MetadataOptions controls the wording of the merged layer metadata.
type MetadataOptions struct {
	// Title is the merged layer name. Ignored when CountTitle is set.
	Title string

	// CountTitle names the layer "<N> layers merged".
	CountTitle bool

	// IncludeMaxScore appends the maximum score to the description.
	IncludeMaxScore bool

	// LegendHigh and LegendLow label the gradient ends.
	LegendHigh string
	LegendLow  string
}

// DefaultMetadataOptions returns the fixed-title wording.
func DefaultMetadataOptions() MetadataOptions {
	return MetadataOptions{
		Title:      DefaultTitle,
		LegendHigh: "Most frequent",
		LegendLow:  "Least frequent",
	}
}

// Aggregator rewrites the display metadata of a merged layer.
type Aggregator struct {
	opts MetadataOptions
}

// NewAggregator creates an Aggregator. Empty legend labels fall back to the
// defaults.
func NewAggregator(opts MetadataOptions) *Aggregator {
	defaults := DefaultMetadataOptions()
	if opts.LegendHigh == "" {
		opts.LegendHigh = defaults.LegendHigh
	}
	if opts.LegendLow == "" {
		opts.LegendLow = defaults.LegendLow
	}
	if opts.Title == "" {
		opts.Title = defaults.Title
	}
	return &Aggregator{opts: opts}
}

// Apply overwrites the title, description, display flags, layout, sorting,
// gradient and legend of summary.Document. layers is the number of merged
// layers and labels their provenance labels, in input order.
func (a *Aggregator) Apply(summary *Summary, layers int, labels []string) error {
	if summary.MaxScore < 1 {
		return fmt.Errorf("%w (got %s)", ErrDegenerateGradient, FormatScore(summary.MaxScore))
	}
	doc := summary.Document

	description := "ATT&CK Techniques used by " + strings.TrimSpace(strings.Join(labels, ", "))
	if a.opts.IncludeMaxScore {
		description += ". Maximum score is " + FormatScore(summary.MaxScore)
	}
	doc.Description = description

	if a.opts.CountTitle {
		doc.Name = fmt.Sprintf("%d layers merged", layers)
	} else {
		doc.Name = a.opts.Title
	}

	doc.HideDisabled = true
	doc.ExpandSubtechniques = false
	doc.SelectTechniquesAcrossTactics = true

	doc.Layout = &layer.Layout{
		Layout:              "flat",
		AggregateFunction:   "max",
		ShowAggregateScores: true,
		CountUnscored:       false,
		ShowID:              false,
		ShowName:            true,
	}
	doc.Sorting = layer.SortDescendingScore

	doc.Gradient = &layer.Gradient{
		Colors:   []string{GradientLowColor, GradientHighColor},
		MinValue: 0,
		MaxValue: summary.MaxScore,
	}
	doc.LegendItems = []layer.LegendItem{
		{Label: a.opts.LegendHigh, Color: GradientHighColor},
		{Label: a.opts.LegendLow, Color: GradientLowColor},
	}
	return nil
}

// FormatScore renders a score without a trailing ".0".
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
