package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/navmerge/internal/db"
	"github.com/lherron/navmerge/internal/layer"
)

// TempDB creates a migrated SQLite cache database for testing
func TempDB(t *testing.T) (*db.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "cache.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database, dbPath
}

// Tech describes one technique of a test layer. Nil pointers are written
// as null and load back as absent.
type Tech struct {
	ID      string
	Score   *float64
	Comment *string
	Enabled *bool
	Color   string
}

// Score, Comment and Enabled build the optional Tech fields inline.
func Score(v float64) *float64 { return &v }

func Comment(v string) *string { return &v }

func Enabled(v bool) *bool { return &v }

// Layer builds a layer document with the given name and techniques.
func Layer(name, description string, techs ...Tech) *layer.Document {
	doc := &layer.Document{
		Name:        name,
		Description: description,
		Domain:      "enterprise-attack",
	}
	for _, tech := range techs {
		doc.Techniques = append(doc.Techniques, &layer.Technique{
			TechniqueID: tech.ID,
			Score:       tech.Score,
			Comment:     tech.Comment,
			Enabled:     tech.Enabled,
			Color:       tech.Color,
		})
	}
	return doc
}

// WriteLayer saves doc as dir/filename and returns its path
func WriteLayer(t *testing.T, dir, filename string, doc *layer.Document) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := layer.Save(path, doc); err != nil {
		t.Fatalf("Failed to write layer %s: %v", path, err)
	}
	return path
}

// ReadLayer loads the layer at path
func ReadLayer(t *testing.T, path string) *layer.Document {
	t.Helper()
	doc, err := layer.Load(path)
	if err != nil {
		t.Fatalf("Failed to read layer %s: %v", path, err)
	}
	return doc
}

// TechniqueByID finds a technique in doc, failing the test if absent
func TechniqueByID(t *testing.T, doc *layer.Document, id string) *layer.Technique {
	t.Helper()
	for _, tech := range doc.Techniques {
		if tech.TechniqueID == id {
			return tech
		}
	}
	t.Fatalf("Technique %s not found in layer %q", id, doc.Name)
	return nil
}

// WriteFile writes content to a file in a temporary directory
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}

// AssertNoError asserts that an error is nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

// AssertError asserts that an error is not nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

// AssertEqual asserts that two values are equal
func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("Expected %v, got %v", expected, actual)
	}
}

// AssertStringContains asserts that a string contains a substring
func AssertStringContains(t *testing.T, str, substr string) {
	t.Helper()
	if !strings.Contains(str, substr) {
		t.Fatalf("Expected string to contain %q, got %q", substr, str)
	}
}
