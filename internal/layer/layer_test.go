package layer

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLayer = `{
  "name": "APT29 (G0016)",
  "versions": {"attack": "14", "navigator": "4.9.1", "layer": "4.5"},
  "domain": "enterprise-attack",
  "description": "Enterprise techniques used by APT29",
  "filters": {"platforms": ["Windows"]},
  "sorting": 0,
  "layout": {"layout": "side", "showID": true, "expandedSubtechniques": "none"},
  "hideDisabled": false,
  "techniques": [
    {"techniqueID": "T1059", "tactic": "execution", "score": 2, "comment": "seen", "enabled": false, "color": "#e60d0d", "metadata": []},
    {"techniqueID": "T1078", "showSubtechniques": true}
  ],
  "gradient": {"colors": ["#ffffff", "#66b1ff"], "minValue": 0, "maxValue": 1},
  "legendItems": [{"label": "used", "color": "#66b1ff"}]
}`

func TestDecodeTypedFields(t *testing.T) {
	doc, err := Decode([]byte(sampleLayer))
	require.NoError(t, err)

	assert.Equal(t, "APT29 (G0016)", doc.Name)
	assert.Equal(t, "enterprise-attack", doc.Domain)
	require.NotNil(t, doc.Layout)
	assert.Equal(t, "side", doc.Layout.Layout)
	assert.True(t, doc.Layout.ShowID)
	require.Len(t, doc.Techniques, 2)

	first := doc.Techniques[0]
	assert.Equal(t, "T1059", first.TechniqueID)
	require.NotNil(t, first.Score)
	assert.Equal(t, 2.0, *first.Score)
	assert.Equal(t, "seen", first.CommentValue())
	assert.False(t, first.IsEnabled())
	assert.Equal(t, "#e60d0d", first.Color)

	second := doc.Techniques[1]
	assert.Nil(t, second.Score)
	assert.Nil(t, second.Comment)
	assert.Nil(t, second.Enabled)
	assert.True(t, second.IsEnabled())
	assert.True(t, second.ShowSubtechniques)
}

func TestDecodeKeepsUnknownFields(t *testing.T) {
	doc, err := Decode([]byte(sampleLayer))
	require.NoError(t, err)

	assert.Contains(t, doc.Extra, "versions")
	assert.Contains(t, doc.Extra, "filters")
	assert.NotContains(t, doc.Extra, "techniques")
	assert.Contains(t, doc.Techniques[0].Extra, "tactic")
	assert.Contains(t, doc.Techniques[0].Extra, "metadata")
	assert.Contains(t, doc.Layout.Extra, "expandedSubtechniques")

	data, err := Encode(doc)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, map[string]any{"platforms": []any{"Windows"}}, out["filters"])

	techniques := out["techniques"].([]any)
	first := techniques[0].(map[string]any)
	assert.Equal(t, "execution", first["tactic"])
	layout := out["layout"].(map[string]any)
	assert.Equal(t, "none", layout["expandedSubtechniques"])
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`[{"techniqueID": "T1059"}]`))
	assert.Error(t, err)

	_, err = Decode([]byte(``))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"techniques": [`))
	assert.Error(t, err)
}

func TestLoadParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("<html>not a layer</html>"), 0644))

	_, err := Load(path)
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, path, parseErr.Path)
}

func TestLoadMissingFileIsNotParseError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	var parseErr *ParseError
	assert.False(t, errors.As(err, &parseErr))
}

func TestSaveThenLoad(t *testing.T) {
	doc, err := Decode([]byte(sampleLayer))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "out.json")
	require.NoError(t, Save(path, doc))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, doc.Name, loaded.Name)
	require.Len(t, loaded.Techniques, 2)
	assert.Equal(t, "T1078", loaded.Techniques[1].TechniqueID)
	assert.Contains(t, loaded.Extra, "versions")
}
