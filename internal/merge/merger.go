package merge

import (
	"errors"
	"strings"

	"github.com/lherron/navmerge/internal/layer"
	"github.com/lherron/navmerge/internal/logging"
)

// ErrNoDocuments is returned when there is nothing to merge.
var ErrNoDocuments = errors.New("merge: no documents to merge")

// commentSeparator joins comments contributed by different layers.
const commentSeparator = "\n\n"

// Options holds the policies that differ between the merge entry points.
type Options struct {
	// MaxScoreFloor is the starting value of the running maximum score.
	// Keep it at 1 or above so the gradient never collapses.
	MaxScoreFloor float64

	// ResetColor clears explicit technique colors in the merged layer.
	ResetColor bool
}

// DefaultOptions returns the canonical policy: floor 1, colors kept.
func DefaultOptions() Options {
	return Options{MaxScoreFloor: 1}
}

// Summary is the outcome of one fold.
type Summary struct {
	// Document is the seed layer, mutated into the merged layer.
	Document *layer.Document

	// MaxScore is the highest score among enabled techniques, never below
	// Options.MaxScoreFloor.
	MaxScore float64

	// Disabled counts techniques left disabled after the merge.
	Disabled int

	// Techniques counts distinct techniques in the merged layer.
	Techniques int
}

// Enabled returns the number of techniques left enabled.
func (s *Summary) Enabled() int {
	return s.Techniques - s.Disabled
}

// Merger folds normalized layers into one.
type Merger struct {
	opts Options
	log  *logging.Logger
}

// NewMerger creates a Merger with the given policies. log may be nil.
func NewMerger(opts Options, log *logging.Logger) *Merger {
	return &Merger{opts: opts, log: log}
}

// Merge folds docs into the last one (the seed) and returns it along with
// the score maximum and disabled count.
//
// Documents other than the seed are folded in the order given. Scores add
// up, any explicit enabled=false disables the technique for good, and
// comments are concatenated in input order. A technique seen for the first
// time is adopted by pointer, not copied.
func (m *Merger) Merge(docs []*layer.Document) (*Summary, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	seed := docs[len(docs)-1]
	acc := newAccumulator(len(seed.Techniques))
	for _, t := range seed.Techniques {
		if t == nil {
			continue
		}
		if e, ok := acc.index[t.TechniqueID]; ok {
			e.absorb(t)
			e.tail = append(e.tail, t.CommentValue())
			continue
		}
		acc.add(t).tail = []string{t.CommentValue()}
	}

	for i, doc := range docs[:len(docs)-1] {
		matched, adopted := 0, 0
		for _, t := range doc.Techniques {
			if t == nil {
				continue
			}
			if e, ok := acc.index[t.TechniqueID]; ok {
				e.absorb(t)
				e.lead = append(e.lead, t.CommentValue())
				matched++
				continue
			}
			acc.add(t).lead = []string{t.CommentValue()}
			adopted++
		}
		m.log.Debugf("folded layer %d: %d techniques matched, %d adopted", i+1, matched, adopted)
	}

	return m.finish(seed, acc), nil
}

// finish writes the accumulated records back into the seed and runs the
// post-merge pass.
func (m *Merger) finish(seed *layer.Document, acc *accumulator) *Summary {
	summary := &Summary{
		Document: seed,
		MaxScore: m.opts.MaxScoreFloor,
	}

	seed.Techniques = make([]*layer.Technique, 0, len(acc.order))
	for _, e := range acc.order {
		t := e.rec
		t.SetComment(joinComments(append(e.lead, e.tail...)))
		t.ShowSubtechniques = false
		if m.opts.ResetColor {
			t.Color = ""
		}

		if !t.IsEnabled() {
			summary.Disabled++
		} else {
			if score := t.ScoreValue(); score > summary.MaxScore {
				summary.MaxScore = score
			}
			t.SetComment(strings.TrimSpace(t.CommentValue()))
		}
		seed.Techniques = append(seed.Techniques, t)
	}
	summary.Techniques = len(seed.Techniques)
	return summary
}

// accumulator indexes merged records by technique ID and remembers the order
// in which IDs were first seen.
type accumulator struct {
	index map[string]*entry
	order []*entry
}

// entry is one merged technique. lead holds comments from folded layers,
// tail the comments of the seed's own records, which come last in input
// order.
type entry struct {
	rec  *layer.Technique
	lead []string
	tail []string
}

func newAccumulator(size int) *accumulator {
	return &accumulator{
		index: make(map[string]*entry, size),
		order: make([]*entry, 0, size),
	}
}

func (a *accumulator) add(t *layer.Technique) *entry {
	e := &entry{rec: t}
	a.index[t.TechniqueID] = e
	a.order = append(a.order, e)
	return e
}

// absorb reconciles the score and enabled state of t into the entry.
func (e *entry) absorb(t *layer.Technique) {
	if score := t.ScoreValue(); score != 0 {
		e.rec.SetScore(e.rec.ScoreValue() + score)
	}
	if t.Enabled != nil && !*t.Enabled {
		e.rec.SetEnabled(false)
	}
}

// joinComments concatenates the non-empty comments with a blank line.
func joinComments(comments []string) string {
	var kept []string
	for _, c := range comments {
		if c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, commentSeparator)
}
