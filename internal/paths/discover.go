package paths

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Default file patterns for layer discovery.
var (
	// AllLayers matches every JSON file.
	AllLayers = []string{"*.json"}

	// ActorLayers matches ATT&CK group/software downloads (G0016.json,
	// S0154.json) and hand-made layers prefixed with CUSTOM.
	ActorLayers = []string{"[A-Z]????.json", "CUSTOM*.json"}
)

// InvalidRootError reports a source directory that cannot be read.
type InvalidRootError struct {
	Path string
	Err  error
}

func (e *InvalidRootError) Error() string {
	return fmt.Sprintf("path %q is invalid: %v", e.Path, e.Err)
}

func (e *InvalidRootError) Unwrap() error {
	return e.Err
}

// ExpandDirs returns the directories to scan for layers. Roots containing
// glob characters are expanded first. Each root is returned as given; with
// recursive set, every directory below it follows in walk order. Roots
// that are missing or not directories are reported in invalid and left out
// of dirs.
func ExpandDirs(roots []string, recursive bool) (dirs []string, invalid []*InvalidRootError) {
	seen := make(map[string]bool)
	add := func(dir string) {
		key := filepath.Clean(dir)
		if seen[key] {
			return
		}
		seen[key] = true
		dirs = append(dirs, dir)
	}

	var expanded []string
	for _, root := range roots {
		if !IsGlobPattern(root) {
			expanded = append(expanded, root)
			continue
		}
		matches, err := filepath.Glob(root)
		if err != nil || len(matches) == 0 {
			if err == nil {
				err = fs.ErrNotExist
			}
			invalid = append(invalid, &InvalidRootError{Path: root, Err: err})
			continue
		}
		expanded = append(expanded, matches...)
	}

	for _, root := range expanded {
		info, err := os.Stat(root)
		if err != nil {
			invalid = append(invalid, &InvalidRootError{Path: root, Err: err})
			continue
		}
		if !info.IsDir() {
			invalid = append(invalid, &InvalidRootError{Path: root, Err: fmt.Errorf("not a directory")})
			continue
		}

		if !recursive {
			add(root)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				// Unreadable subdirectory: skip it, keep walking.
				return fs.SkipDir
			}
			if d.IsDir() {
				add(path)
			}
			return nil
		})
		if err != nil {
			invalid = append(invalid, &InvalidRootError{Path: root, Err: err})
		}
	}

	return dirs, invalid
}

// MatchFiles lists the regular files directly inside dir whose base name
// matches any of patterns, sorted by name.
func MatchFiles(dir string, patterns []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &InvalidRootError{Path: dir, Err: err}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if MatchAny(patterns, entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// FileLabel returns the base name of file without its extension. Both
// slash and backslash separators are accepted.
func FileLabel(file string) string {
	base := file
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SamePath reports whether a and b name the same file once made absolute.
func SamePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
