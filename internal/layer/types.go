// Package layer models ATT&CK Navigator layer documents and reads and writes
// them as JSON. Only the fields touched by merging are typed; every other key
// is carried in Extra and written back unchanged.
package layer

import "encoding/json"

// SortDescendingScore is the Navigator sorting value for "score, descending".
const SortDescendingScore = 3

// Document is one Navigator layer.
type Document struct {
	Name                          string       `json:"name"`
	Description                   string       `json:"description"`
	Domain                        string       `json:"domain,omitempty"`
	Layout                        *Layout      `json:"layout,omitempty"`
	Techniques                    []*Technique `json:"techniques"`
	Gradient                      *Gradient    `json:"gradient,omitempty"`
	LegendItems                   []LegendItem `json:"legendItems"`
	Sorting                       int          `json:"sorting"`
	HideDisabled                  bool         `json:"hideDisabled"`
	ExpandSubtechniques           bool         `json:"expandSubtechniques"`
	SelectTechniquesAcrossTactics bool         `json:"selectTechniquesAcrossTactics"`

	// Extra holds keys this package does not model (versions, filters, ...).
	Extra map[string]json.RawMessage `json:"-"`
}

// Technique is one technique annotation. Score, Comment and Enabled are
// pointers so an absent value can be told apart from a zero value.
type Technique struct {
	TechniqueID       string   `json:"techniqueID"`
	Score             *float64 `json:"score"`
	Comment           *string  `json:"comment"`
	Enabled           *bool    `json:"enabled"`
	ShowSubtechniques bool     `json:"showSubtechniques"`
	Color             string   `json:"color"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Layout is the layer display layout block.
type Layout struct {
	Layout              string `json:"layout"`
	AggregateFunction   string `json:"aggregateFunction"`
	ShowAggregateScores bool   `json:"showAggregateScores"`
	CountUnscored       bool   `json:"countUnscored"`
	ShowID              bool   `json:"showID"`
	ShowName            bool   `json:"showName"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Gradient maps scores onto a color scale.
type Gradient struct {
	Colors   []string `json:"colors"`
	MinValue float64  `json:"minValue"`
	MaxValue float64  `json:"maxValue"`
}

// LegendItem is a label/color pair shown in the layer legend.
type LegendItem struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// ScoreValue returns the score, or 0 when absent.
func (t *Technique) ScoreValue() float64 {
	if t.Score == nil {
		return 0
	}
	return *t.Score
}

// CommentValue returns the comment, or "" when absent.
func (t *Technique) CommentValue() string {
	if t.Comment == nil {
		return ""
	}
	return *t.Comment
}

// IsEnabled reports whether the technique is enabled. Absent means enabled.
func (t *Technique) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// SetScore stores a score value.
func (t *Technique) SetScore(v float64) { t.Score = &v }

// SetComment stores a comment value.
func (t *Technique) SetComment(v string) { t.Comment = &v }

// SetEnabled stores an enabled value.
func (t *Technique) SetEnabled(v bool) { t.Enabled = &v }
