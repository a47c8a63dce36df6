package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcsync/internal/arcgis"
	"arcsync/internal/config"
	"arcsync/internal/etl"
)

// newProject scaffolds a sample project and points the credentials at url.
func newProject(t *testing.T, url string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, scaffold(&bytes.Buffer{}, dir, false))

	t.Setenv(config.EnvPortalURL, url)
	t.Setenv(config.EnvUsername, "alice")
	t.Setenv(config.EnvPassword, "pw")
	t.Setenv(config.EnvLogLevel, "error")
	return filepath.Join(dir, "settings.yaml")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScaffold(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	require.NoError(t, scaffold(&out, dir, false))

	for _, name := range []string{"settings.yaml", filepath.Join("data", "sample.csv"), ".gitignore"} {
		assert.FileExists(t, filepath.Join(dir, name))
		assert.Contains(t, out.String(), filepath.Join(dir, name))
	}

	err := scaffold(&out, dir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	require.NoError(t, scaffold(&out, dir, true))
}

func TestScaffold_SettingsAreValid(t *testing.T) {
	settings := newProject(t, "https://example.invalid")
	cfg, err := config.Load(settings)
	require.NoError(t, err)
	assert.Equal(t, "Sample Sites", cfg.ArcGIS.LayerName)
	assert.Equal(t, filepath.Join(filepath.Dir(settings), "data", "sample.csv"), cfg.Source.Path)
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	out, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "created")
	assert.FileExists(t, filepath.Join(dir, "settings.yaml"))
}

func TestSync_DryRun(t *testing.T) {
	settings := newProject(t, "https://example.invalid")
	dir := filepath.Dir(settings)
	geo := filepath.Join(dir, "out.geojson")
	rejects := filepath.Join(dir, "rejects.csv")

	out, err := execute(t, "-c", settings, "--dry-run", "--output", geo, "--rejects", rejects)
	require.NoError(t, err)
	assert.Contains(t, out, "records read: 3\n")
	assert.Contains(t, out, "valid: 2\n")
	assert.Contains(t, out, "invalid: 1\n")
	assert.Contains(t, out, "uploaded: 2\n")

	raw, err := os.ReadFile(geo)
	require.NoError(t, err)
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(raw, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 2)

	rej, err := os.ReadFile(rejects)
	require.NoError(t, err)
	assert.Contains(t, string(rej), "Ridge Station")
	assert.Contains(t, string(rej), string(etl.ReasonInvalidCoordinates))

	assert.NoFileExists(t, filepath.Join(dir, ".arcsync", "history.db"), "dry runs are not recorded")
}

func TestSync_SubcommandMatchesRoot(t *testing.T) {
	settings := newProject(t, "https://example.invalid")
	out, err := execute(t, "sync", "-c", settings, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "uploaded: 2\n")
}

func TestSync_OutputRequiresDryRun(t *testing.T) {
	settings := newProject(t, "https://example.invalid")
	_, err := execute(t, "-c", settings, "--output", "x.geojson")
	require.Error(t, err)
}

func TestSync_InvalidConfig(t *testing.T) {
	_, err := execute(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSync_AuthFailureIsRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":{"code":400,"message":"Unable to generate token.","details":["Invalid username or password."]}}`))
	}))
	defer srv.Close()

	settings := newProject(t, srv.URL)
	out, err := execute(t, "-c", settings)
	require.Error(t, err)
	assert.True(t, errors.Is(err, arcgis.ErrAuthentication))
	assert.Contains(t, out, "records read: 3\n")
	assert.Contains(t, out, "uploaded: 0\n")

	out, err = execute(t, "history", "-c", settings)
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, etl.StatusError)
	assert.Contains(t, out, "Invalid username or password.")
}

func TestHistory_Empty(t *testing.T) {
	settings := newProject(t, "https://example.invalid")
	out, err := execute(t, "history", "-c", settings)
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")
}

func TestPreview(t *testing.T) {
	settings := newProject(t, "https://example.invalid")
	out, err := execute(t, "preview", "-c", settings, "-n", "2")
	require.NoError(t, err)

	var rows []etl.PreviewRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Valid)
	assert.Equal(t, "Harbor Depot", rows[0].Attributes["SITE_NAME"])
	require.NotNil(t, rows[0].Geometry)
}

func TestPrintSummary_LayerURL(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, &etl.RunSummary{
		Read: 1, Valid: 1, Uploaded: 1,
		Layer: &etl.LayerDescriptor{URL: "https://services.example.com/arcgis/rest/services/Sites/FeatureServer"},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "layer: https://services.example.com/arcgis/rest/services/Sites/FeatureServer/0", lines[4])
}
