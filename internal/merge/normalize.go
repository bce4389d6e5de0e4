// Package merge folds several Navigator layers into one: it normalizes
// technique records, reconciles records that share a technique ID, and
// recomputes the display metadata of the merged layer.
package merge

import "github.com/lherron/navmerge/internal/layer"

// Normalize fills the absent optional fields of every technique in doc:
// score 0, comment "", enabled true. Other fields are left alone, so running
// it twice changes nothing.
func Normalize(doc *layer.Document) {
	for _, t := range doc.Techniques {
		if t == nil {
			continue
		}
		if t.Score == nil {
			t.SetScore(0)
		}
		if t.Comment == nil {
			t.SetComment("")
		}
		if t.Enabled == nil {
			t.SetEnabled(true)
		}
	}
}
