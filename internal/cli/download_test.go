package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lherron/navmerge/internal/catalog"
	"github.com/lherron/navmerge/internal/download"
	"github.com/lherron/navmerge/internal/testutil"
)

const apt29Layer = `{"name": "APT29 (G0016)", "domain": "enterprise-attack",
	"techniques": [{"techniqueID": "T1566", "score": 1}]}`

func resetDownloadFlags() {
	downloadLayersPath = ""
	downloadForcePath = false
	downloadGroups = nil
	downloadAllGroups = false
	downloadNoGroups = false
	downloadSoftware = nil
	downloadAllSoft = false
	downloadNoSoftware = false
	downloadDomain = catalog.DomainAll
	downloadRefresh = false
	downloadJSON = false
	downloadYAML = false
}

func TestDownloadCommand_SelectedGroups(t *testing.T) {
	resetDownloadFlags()
	defer resetDownloadFlags()

	server := newAttackServer(t, map[string]string{
		"/groups/G0016/G0016-enterprise-layer.json": apt29Layer,
	})
	app, logs := createCatalogApp(t, server)

	root := filepath.Join(t.TempDir(), "layers")
	downloadLayersPath = root
	downloadGroups = []string{"g0016", "G0099"}
	downloadNoSoftware = true

	cmd, out := newTestCommand()
	if err := runDownload(app, cmd, nil); err != nil {
		t.Fatalf("runDownload failed: %v", err)
	}

	// The empty cache is synced before selecting.
	if !server.requested("/ics-attack/ics-attack.json") {
		t.Error("expected the catalog to be synced")
	}

	doc := testutil.ReadLayer(t, download.LayerPath(root, "enterprise", catalog.KindGroups, "G0016"))
	testutil.AssertEqual(t, "APT29 (G0016)", doc.Name)

	testutil.AssertStringContains(t, logs.String(), "G0099 groups IDs could not be found!")
	testutil.AssertStringContains(t, logs.String(), "1 Groups and 0 Software layers are going to be downloaded.")
	testutil.AssertStringContains(t, out.String(), "1/1 Groups and 0/0 Software layers entirely downloaded, 1 files written in "+root)

	for _, domain := range catalog.Domains {
		info, err := os.Stat(filepath.Join(root, domain, catalog.KindSoftware))
		if err != nil || !info.IsDir() {
			t.Errorf("expected %s/software to exist: %v", domain, err)
		}
	}
}

func TestDownloadCommand_AllSoftwareInDomain(t *testing.T) {
	resetDownloadFlags()
	defer resetDownloadFlags()

	// Pegasus' mobile layer is not published: the download fails but the
	// command goes on.
	server := newAttackServer(t, nil)
	app, logs := createCatalogApp(t, server)

	root := t.TempDir()
	downloadLayersPath = root
	downloadForcePath = true
	downloadAllSoft = true
	downloadNoGroups = true
	downloadDomain = "mobile"
	downloadJSON = true

	cmd, out := newTestCommand()
	if err := runDownload(app, cmd, nil); err != nil {
		t.Fatalf("runDownload failed: %v", err)
	}

	var report struct {
		Root     string         `json:"root"`
		Domains  []string       `json:"domains"`
		NotFound []string       `json:"not_found"`
		Stats    download.Stats `json:"stats"`
	}
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, out.String())
	}
	testutil.AssertEqual(t, root, report.Root)
	testutil.AssertEqual(t, 0, len(report.NotFound))
	testutil.AssertEqual(t, 1, report.Stats.Planned[catalog.KindSoftware])
	testutil.AssertEqual(t, 0, report.Stats.Downloaded[catalog.KindSoftware])
	testutil.AssertEqual(t, 0, report.Stats.Files)

	if !server.requested("/software/S0316/S0316-mobile-layer.json") {
		t.Error("expected Pegasus' mobile layer to be requested")
	}
	if server.requested("/software/S0154/S0154-enterprise-layer.json") {
		t.Error("enterprise layers should not be requested with --domain mobile")
	}
	testutil.AssertStringContains(t, logs.String(), "An error occurred while downloading S0316's mobile layer")
}

func TestDownloadCommand_UsesCachedCatalog(t *testing.T) {
	resetDownloadFlags()
	defer resetDownloadFlags()

	server := newAttackServer(t, map[string]string{
		"/groups/G0016/G0016-enterprise-layer.json": apt29Layer,
	})
	app, _ := createCatalogApp(t, server)

	store := catalog.NewStore(app.DB)
	for _, domain := range catalog.Domains {
		var entries []catalog.Entry
		if domain == "enterprise" {
			entries = []catalog.Entry{{ID: "G0016", Kind: catalog.KindGroups, Name: "APT29"}}
		}
		if _, err := store.Replace(domain, entries); err != nil {
			t.Fatalf("Replace(%s) failed: %v", domain, err)
		}
	}

	downloadLayersPath = filepath.Join(t.TempDir(), "layers")
	downloadAllGroups = true
	downloadNoSoftware = true

	cmd, _ := newTestCommand()
	if err := runDownload(app, cmd, nil); err != nil {
		t.Fatalf("runDownload failed: %v", err)
	}
	if server.requested("/enterprise-attack/enterprise-attack.json") {
		t.Error("a synced catalog should not be fetched again")
	}

	downloadRefresh = true
	downloadForcePath = true
	if err := runDownload(app, cmd, nil); err != nil {
		t.Fatalf("runDownload --refresh failed: %v", err)
	}
	if !server.requested("/enterprise-attack/enterprise-attack.json") {
		t.Error("--refresh should sync the catalog")
	}
	entry, err := store.Lookup("S0316")
	testutil.AssertNoError(t, err)
	if entry == nil {
		t.Error("expected S0316 in the refreshed catalog")
	}
}

func TestDownloadCommand_ExistingRoot(t *testing.T) {
	resetDownloadFlags()
	defer resetDownloadFlags()

	app, _ := createTestApp(t, true)
	downloadLayersPath = t.TempDir()
	downloadAllGroups = true
	downloadNoSoftware = true

	cmd, _ := newTestCommand()
	err := runDownload(app, cmd, nil)
	testutil.AssertEqual(t, 1, ExitCode(err))
	if !errors.Is(err, download.ErrRootExists) {
		t.Errorf("expected ErrRootExists, got %v", err)
	}
}

func TestDownloadCommand_Selection(t *testing.T) {
	resetDownloadFlags()
	defer resetDownloadFlags()

	app, logs := createTestApp(t, true)

	// Nothing chosen for groups.
	downloadNoSoftware = true
	cmd, _ := newTestCommand()
	err := runDownload(app, cmd, nil)
	testutil.AssertEqual(t, 2, ExitCode(err))

	downloadNoGroups = true
	if err := runDownload(app, cmd, nil); err != nil {
		t.Fatalf("runDownload failed: %v", err)
	}
	testutil.AssertStringContains(t, logs.String(), "Nothing to download!")

	resetDownloadFlags()
	downloadAllGroups = true
	downloadNoSoftware = true
	downloadDomain = "pre-attack"
	err = runDownload(app, cmd, nil)
	testutil.AssertEqual(t, 2, ExitCode(err))
}

func TestKindSelectionValidate(t *testing.T) {
	tests := []struct {
		name    string
		sel     kindSelection
		wantErr bool
	}{
		{"ids", kindSelection{kind: "groups", ids: []string{"G0016"}}, false},
		{"all", kindSelection{kind: "groups", all: true}, false},
		{"none", kindSelection{kind: "groups", none: true}, false},
		{"nothing", kindSelection{kind: "groups"}, true},
		{"ids and all", kindSelection{kind: "software", ids: []string{"S0154"}, all: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sel.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
