package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/lherron/navmerge/internal/catalog"
	"github.com/lherron/navmerge/internal/cli/appctx"
	"github.com/lherron/navmerge/internal/testutil"
)

var testBundles = map[string]string{
	"/enterprise-attack/enterprise-attack.json": `{"type": "bundle", "objects": [
		{"type": "intrusion-set", "name": "APT29", "x_mitre_domains": ["enterprise-attack"],
		 "external_references": [{"source_name": "mitre-attack", "external_id": "G0016"}]},
		{"type": "intrusion-set", "name": "APT28", "x_mitre_domains": ["enterprise-attack", "mobile-attack"],
		 "external_references": [{"source_name": "mitre-attack", "external_id": "G0007"}]},
		{"type": "tool", "name": "Cobalt Strike", "x_mitre_domains": ["enterprise-attack"],
		 "external_references": [{"source_name": "mitre-attack", "external_id": "S0154"}]}
	]}`,
	"/mobile-attack/mobile-attack.json": `{"type": "bundle", "objects": [
		{"type": "intrusion-set", "name": "APT28", "x_mitre_domains": ["mobile-attack"],
		 "external_references": [{"source_name": "mitre-attack", "external_id": "G0007"}]},
		{"type": "malware", "name": "Pegasus", "x_mitre_domains": ["mobile-attack"],
		 "external_references": [{"source_name": "mitre-attack", "external_id": "S0316"}]}
	]}`,
	"/ics-attack/ics-attack.json": `{"type": "bundle", "objects": []}`,
}

// attackServer serves STIX bundles and layer files from fixed paths and
// answers 404 to everything else.
type attackServer struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string]string
	requests []string
}

func newAttackServer(t *testing.T, files map[string]string) *attackServer {
	t.Helper()
	s := &attackServer{files: make(map[string]string)}
	for path, body := range testBundles {
		s.files[path] = body
	}
	for path, body := range files {
		s.files[path] = body
	}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.Path)
		body, ok := s.files[r.URL.Path]
		s.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *attackServer) requested(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.requests {
		if p == path {
			return true
		}
	}
	return false
}

// createCatalogApp returns an App with a migrated cache whose catalog and
// layer URLs point at server.
func createCatalogApp(t *testing.T, server *attackServer) (*appctx.App, *bytes.Buffer) {
	t.Helper()
	app, logs := createTestApp(t, true)
	app.Config.CatalogURL = server.URL
	app.Config.AttackURL = server.URL
	app.Config.HTTPRetries = 0
	return app, logs
}

func resetCatalogFlags() {
	catalogSyncDomain = catalog.DomainAll
	catalogLsKind = ""
	catalogLsDomain = catalog.DomainAll
	catalogLsJSON = false
	catalogLsYAML = false
	catalogLsPorcelain = false
}

func TestCatalogSyncAndList(t *testing.T) {
	resetCatalogFlags()
	defer resetCatalogFlags()

	server := newAttackServer(t, nil)
	app, _ := createCatalogApp(t, server)

	cmd, out := newTestCommand()
	if err := runCatalogSync(app, cmd, nil); err != nil {
		t.Fatalf("runCatalogSync failed: %v", err)
	}
	testutil.AssertStringContains(t, out.String(), "5 catalog entries cached in ")

	catalogLsPorcelain = true
	cmd, out = newTestCommand()
	if err := runCatalogLs(app, cmd, nil); err != nil {
		t.Fatalf("runCatalogLs failed: %v", err)
	}
	want := strings.Join([]string{
		"ID\tKIND\tNAME\tDOMAINS",
		"G0007\tgroups\tAPT28\tenterprise,mobile",
		"G0016\tgroups\tAPT29\tenterprise",
		"S0154\tsoftware\tCobalt Strike\tenterprise",
		"S0316\tsoftware\tPegasus\tmobile",
	}, "\n") + "\n"
	testutil.AssertEqual(t, want, out.String())
}

func TestCatalogList_Filters(t *testing.T) {
	resetCatalogFlags()
	defer resetCatalogFlags()

	server := newAttackServer(t, nil)
	app, _ := createCatalogApp(t, server)

	cmd, _ := newTestCommand()
	if err := runCatalogSync(app, cmd, nil); err != nil {
		t.Fatalf("runCatalogSync failed: %v", err)
	}

	catalogLsKind = catalog.KindGroups
	catalogLsDomain = "mobile"
	catalogLsJSON = true
	cmd, out := newTestCommand()
	if err := runCatalogLs(app, cmd, nil); err != nil {
		t.Fatalf("runCatalogLs failed: %v", err)
	}

	var entries []catalog.Entry
	if err := json.Unmarshal(out.Bytes(), &entries); err != nil {
		t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, out.String())
	}
	if len(entries) != 1 || entries[0].ID != "G0007" {
		t.Fatalf("expected only G0007, got %+v", entries)
	}

	catalogLsKind = "techniques"
	err := runCatalogLs(app, cmd, nil)
	testutil.AssertEqual(t, 2, ExitCode(err))
}

func TestCatalogList_EmptyCache(t *testing.T) {
	resetCatalogFlags()
	defer resetCatalogFlags()

	app, logs := createTestApp(t, true)
	cmd, out := newTestCommand()
	if err := runCatalogLs(app, cmd, nil); err != nil {
		t.Fatalf("runCatalogLs failed: %v", err)
	}
	testutil.AssertEqual(t, "", out.String())
	testutil.AssertStringContains(t, logs.String(), "navmerge catalog sync")

	catalogLsJSON = true
	cmd, out = newTestCommand()
	if err := runCatalogLs(app, cmd, nil); err != nil {
		t.Fatalf("runCatalogLs --json failed: %v", err)
	}
	testutil.AssertEqual(t, "[]", strings.TrimSpace(out.String()))
}

func TestCatalogSync_SingleDomain(t *testing.T) {
	resetCatalogFlags()
	defer resetCatalogFlags()

	server := newAttackServer(t, nil)
	app, _ := createCatalogApp(t, server)

	catalogSyncDomain = "mobile"
	cmd, out := newTestCommand()
	if err := runCatalogSync(app, cmd, nil); err != nil {
		t.Fatalf("runCatalogSync failed: %v", err)
	}
	testutil.AssertStringContains(t, out.String(), "2 catalog entries cached")
	if server.requested("/enterprise-attack/enterprise-attack.json") {
		t.Error("enterprise bundle should not be fetched")
	}

	store := catalog.NewStore(app.DB)
	synced, err := store.Synced(catalog.Domains)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, false, synced)

	catalogSyncDomain = "pre-attack"
	err = runCatalogSync(app, cmd, nil)
	testutil.AssertEqual(t, 2, ExitCode(err))
}

func TestCatalogSync_FetchFailure(t *testing.T) {
	resetCatalogFlags()
	defer resetCatalogFlags()

	server := newAttackServer(t, nil)
	server.mu.Lock()
	delete(server.files, "/ics-attack/ics-attack.json")
	server.mu.Unlock()
	app, _ := createCatalogApp(t, server)

	cmd, _ := newTestCommand()
	err := runCatalogSync(app, cmd, nil)
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, 1, ExitCode(err))
	testutil.AssertStringContains(t, err.Error(), "ics")

	entries, err := catalog.NewStore(app.DB).List()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, len(entries))
}
