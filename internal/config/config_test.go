package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
xpi: zotero-better-bibtex.xpi
manifest: install.rdf
files:
  - install.rdf
  - chrome/**
changelog: https://github.com/retorquere/zotero-better-bibtex/releases
amo:
  issuer: AMO_API_KEY
  secret: AMO_API_SECRET
test:
  xpis:
    install: test/fixtures/profile/extensions
    download:
      - https://example.com/a.xpi
      - file:///tmp/b.xpi
editor:
  theme: dark
`

// TestParse decodes a full document and applies defaults.
func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	require.Equal(t, "zotero-better-bibtex.xpi", cfg.XPI)
	require.Equal(t, "install.rdf", cfg.Manifest)
	require.Equal(t, DefaultBranch, cfg.DefaultBranch)
	require.Equal(t, DefaultSigningEndpoint, cfg.AMO.Endpoint)
	require.Equal(t, "AMO_API_KEY", cfg.AMO.Issuer)
	require.Equal(t, "AMO_API_SECRET", cfg.AMO.Secret)
	require.Equal(t, "test/fixtures/profile/extensions", cfg.Test.XPIs.Install)
	require.Len(t, cfg.Test.XPIs.Download, 2)
	require.True(t, cfg.SigningConfigured())
	require.Contains(t, cfg.Extra, "editor")
}

// TestParse_SchemaViolations ensures the schema rejects malformed documents.
func TestParse_SchemaViolations(t *testing.T) {
	t.Parallel()

	documents := []string{
		"release: 1.0.0\n",
		"xpi: a.xpi\nrelease: one\n",
		"xpi: a.xpi\nfiles: install.rdf\n",
		"xpi: a.xpi\ntest:\n  xpis:\n    download: https://example.com/a.xpi\n",
	}

	for _, document := range documents {
		_, err := Parse([]byte(document))
		require.Error(t, err, document)
	}
}

// TestValidate checks required fields and format validations.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))
	require.Error(t, Validate(new(Config)))
	require.Error(t, Validate(&Config{XPI: "noext"}))
	require.Error(t, Validate(&Config{XPI: "a.xpi", Changelog: "not a url"}))

	cfg := &Config{XPI: "a.xpi", AMO: AMO{Endpoint: "https://sign.example.com/api/"}}
	require.NoError(t, Validate(cfg))
	require.Equal(t, "https://sign.example.com/api", cfg.AMO.Endpoint)
}

// TestVersionedXPI checks version insertion before the extension.
func TestVersionedXPI(t *testing.T) {
	t.Parallel()

	cfg := &Config{XPI: "build/plugin.xpi"}
	require.Equal(t, "plugin-1.2.3-circle-7.xpi", cfg.VersionedXPI("1.2.3-circle-7"))
}

// TestSaveLoadRoundtrip ensures the document, including unknown keys, survives a round trip.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigFilename)

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.XPI, loaded.XPI)
	require.Equal(t, cfg.Test.XPIs.Download, loaded.Test.XPIs.Download)
	require.Equal(t, cfg.Extra, loaded.Extra)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestEnvironmentHelpers covers SIGN and OFFLINE handling.
func TestEnvironmentHelpers(t *testing.T) {
	t.Parallel()

	require.False(t, SigningDisabled(MapEnvironment{}))
	require.False(t, SigningDisabled(MapEnvironment{"SIGN": "true"}))
	require.True(t, SigningDisabled(MapEnvironment{"SIGN": "false"}))

	require.False(t, Offline(MapEnvironment{}))
	require.True(t, Offline(MapEnvironment{"OFFLINE": "TRUE"}))
	require.Empty(t, Getenv(nil, "HOME"))
}
