package merge

import (
	"fmt"

	"github.com/lherron/navmerge/internal/layer"
	"github.com/lherron/navmerge/internal/logging"
)

// Source pairs a loaded layer with where it came from.
type Source struct {
	Document *layer.Document

	// Path is the file the layer was read from.
	Path string

	// Fallback is the label used when the layer names no ATT&CK ID,
	// usually the file name without extension.
	Fallback string
}

// Config bundles the policies of one merge run.
type Config struct {
	Merge       Options
	Metadata    MetadataOptions
	LabelFields []LabelField
}

// DefaultConfig returns the canonical policies.
func DefaultConfig() Config {
	return Config{
		Merge:    DefaultOptions(),
		Metadata: DefaultMetadataOptions(),
	}
}

// Result is a merged layer with its statistics.
type Result struct {
	*Summary

	// Layers is the number of layers merged.
	Layers int

	// Labels are the provenance labels, in input order.
	Labels []string
}

// Run normalizes every source, resolves provenance labels, folds the
// layers and rewrites the merged layer metadata. Sources are processed in
// the order given; the last one becomes the merged document.
func Run(sources []Source, cfg Config, log *logging.Logger) (*Result, error) {
	if len(sources) == 0 {
		return nil, ErrNoDocuments
	}

	resolver := NewResolver(log, cfg.LabelFields...)
	docs := make([]*layer.Document, 0, len(sources))
	labels := make([]string, 0, len(sources))
	for _, src := range sources {
		if src.Document == nil {
			return nil, fmt.Errorf("merge: source %q has no document", src.Path)
		}
		Normalize(src.Document)
		label, _ := resolver.Resolve(src.Document, src.Fallback)
		labels = append(labels, label)
		docs = append(docs, src.Document)
	}

	summary, err := NewMerger(cfg.Merge, log).Merge(docs)
	if err != nil {
		return nil, err
	}

	if err := NewAggregator(cfg.Metadata).Apply(summary, len(docs), labels); err != nil {
		return nil, err
	}

	return &Result{Summary: summary, Layers: len(docs), Labels: labels}, nil
}
