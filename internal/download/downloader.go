package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lherron/navmerge/internal/catalog"
	"github.com/lherron/navmerge/internal/logging"
)

// ErrRootExists is returned by PrepareRoot when the download directory
// already exists and overwriting was not allowed.
var ErrRootExists = errors.New("download directory already exists")

// LayerURL returns where the ATT&CK website publishes the layer of id in
// domain, below base (e.g. https://attack.mitre.org).
func LayerURL(base, kind, id, domain string) string {
	return fmt.Sprintf("%s/%s/%s/%s-%s-layer.json", strings.TrimRight(base, "/"), kind, id, id, domain)
}

// LayerPath returns where a downloaded layer is stored below root.
func LayerPath(root, domain, kind, id string) string {
	return filepath.Join(root, domain, kind, id+".json")
}

// PrepareRoot makes sure root/<domain>/<kind> exists and is writable for
// every domain and kind. An existing root is only accepted with force.
func PrepareRoot(root string, force bool, log *logging.Logger) error {
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(root, 0755); err != nil {
			return fmt.Errorf("could not create layers folder %s: %w", root, err)
		}
		log.Infof("%s folder created.", root)
	case err != nil:
		return fmt.Errorf("could not inspect layers folder %s: %w", root, err)
	case !info.IsDir():
		return fmt.Errorf("layers path %s is not a directory", root)
	case !force:
		return fmt.Errorf("%w: %s (use --force-path to reuse it)", ErrRootExists, root)
	default:
		if err := checkWritable(root); err != nil {
			return err
		}
	}

	for _, domain := range catalog.Domains {
		for _, kind := range []string{catalog.KindGroups, catalog.KindSoftware} {
			dir := filepath.Join(root, domain, kind)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("check / create subfolder %s failed: %w", dir, err)
			}
			if err := checkWritable(dir); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".navmerge-*")
	if err != nil {
		return fmt.Errorf("%s is not writable by the current user: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Stats counts planned and fully downloaded entries per kind.
type Stats struct {
	Planned    map[string]int `json:"planned" yaml:"planned"`
	Downloaded map[string]int `json:"downloaded" yaml:"downloaded"`
	Files      int            `json:"files" yaml:"files"`
}

// Downloader writes catalog entries' layers below a root directory.
type Downloader struct {
	session *Session
	root    string
	baseURL string
	log     *logging.Logger
}

// NewDownloader creates a Downloader using session for every request.
func NewDownloader(session *Session, root, baseURL string, log *logging.Logger) *Downloader {
	return &Downloader{
		session: session,
		root:    root,
		baseURL: baseURL,
		log:     log,
	}
}

// Download fetches the layer of entry for each of its domains. Failures are
// logged per domain; it returns the number of files written and whether
// every domain succeeded.
func (d *Downloader) Download(ctx context.Context, entry catalog.Entry) (int, bool) {
	written := 0
	for _, domain := range entry.Domains {
		url := LayerURL(d.baseURL, entry.Kind, entry.ID, domain)
		path := LayerPath(d.root, domain, entry.Kind, entry.ID)

		if err := d.fetchTo(ctx, url, path); err != nil {
			d.log.Warnf("An error occurred while downloading %s's %s layer: %v", entry.ID, domain, err)
			continue
		}
		written++
		d.log.Infof("%s's %s layer downloaded in %s.", entry.ID, domain, path)
	}
	return written, written == len(entry.Domains)
}

// DownloadAll downloads entries one after the other and reports the
// totals. It stops early only when ctx is done.
func (d *Downloader) DownloadAll(ctx context.Context, entries []catalog.Entry) (*Stats, error) {
	stats := &Stats{
		Planned:    catalog.CountByKind(entries),
		Downloaded: map[string]int{catalog.KindGroups: 0, catalog.KindSoftware: 0},
	}
	d.log.Infof("%d Groups and %d Software layers are going to be downloaded.",
		stats.Planned[catalog.KindGroups], stats.Planned[catalog.KindSoftware])

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		written, complete := d.Download(ctx, entry)
		stats.Files += written
		if complete {
			stats.Downloaded[entry.Kind]++
		}
	}

	d.log.Infof("%d/%d Software and %d/%d Groups Navigator layers were entirely downloaded.",
		stats.Downloaded[catalog.KindSoftware], stats.Planned[catalog.KindSoftware],
		stats.Downloaded[catalog.KindGroups], stats.Planned[catalog.KindGroups])
	return stats, nil
}

func (d *Downloader) fetchTo(ctx context.Context, url, path string) error {
	body, err := d.session.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
