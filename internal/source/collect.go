// Package source turns layer files on disk into merge sources.
package source

import (
	"errors"
	"fmt"

	"github.com/lherron/navmerge/internal/layer"
	"github.com/lherron/navmerge/internal/logging"
	"github.com/lherron/navmerge/internal/merge"
	"github.com/lherron/navmerge/internal/paths"
)

// Policy decides what happens to a file that is not a valid layer.
type Policy string

const (
	// PolicyFail aborts the run on the first invalid layer.
	PolicyFail Policy = "fail"
	// PolicySkip warns and carries on without the invalid layer.
	PolicySkip Policy = "skip"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFail, PolicySkip:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("invalid policy %q: must be one of: fail, skip", s)
	}
}

// Collector loads layer files from directories.
type Collector struct {
	policy Policy
	log    *logging.Logger
}

// NewCollector creates a Collector applying policy to invalid files.
func NewCollector(policy Policy, log *logging.Logger) *Collector {
	return &Collector{policy: policy, log: log}
}

// Collect loads every file in dir matching patterns, in name order. Files
// for which exclude returns true are ignored. Under PolicyFail the first
// invalid layer is returned as an error wrapping *layer.ParseError.
func (c *Collector) Collect(dir string, patterns []string, exclude func(path string) bool) ([]merge.Source, error) {
	files, err := paths.MatchFiles(dir, patterns)
	if err != nil {
		return nil, err
	}

	var sources []merge.Source
	for _, file := range files {
		if exclude != nil && exclude(file) {
			c.log.Debugf("skipping %s", file)
			continue
		}
		src, err := c.load(file)
		if err != nil {
			return nil, err
		}
		if src == nil {
			continue
		}
		sources = append(sources, *src)
		c.log.Infof("%s layer imported", file)
	}
	return sources, nil
}

// CollectAll runs Collect over every directory, concatenating the sources
// in directory order. Directories without layers are skipped with a notice.
func (c *Collector) CollectAll(dirs []string, patterns []string, exclude func(path string) bool) ([]merge.Source, error) {
	var all []merge.Source
	for _, dir := range dirs {
		c.log.Infof("Processing layers in %q ...", dir)
		sources, err := c.Collect(dir, patterns, exclude)
		if err != nil {
			var invalid *paths.InvalidRootError
			if errors.As(err, &invalid) {
				c.log.Warnf("%v", invalid)
				continue
			}
			return nil, err
		}
		c.log.Infof("%d layers have been imported from %q", len(sources), dir)
		all = append(all, sources...)
	}
	return all, nil
}

func (c *Collector) load(file string) (*merge.Source, error) {
	doc, err := layer.Load(file)
	if err != nil {
		var parseErr *layer.ParseError
		if !errors.As(err, &parseErr) {
			return nil, err
		}
		if c.policy == PolicySkip {
			c.log.Warnf("%v, skipping", parseErr)
			return nil, nil
		}
		return nil, fmt.Errorf("could not import %s: %w", file, err)
	}
	return &merge.Source{
		Document: doc,
		Path:     file,
		Fallback: paths.FileLabel(file),
	}, nil
}
