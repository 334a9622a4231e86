package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the release configuration document.
type Config struct {
	// XPI is the file name of the built archive.
	XPI string `yaml:"xpi"`
	// Release is the fallback release version used when the manifest carries none.
	Release string `yaml:"release,omitempty"`
	// Manifest is the path of the extension metadata file.
	Manifest string `yaml:"manifest,omitempty"`
	// Files lists glob patterns of the archive sources.
	Files []string `yaml:"files,omitempty"`
	// Changelog is the URL announced in the update descriptor.
	Changelog string `yaml:"changelog,omitempty"`
	// DefaultBranch is the branch release builds are cut from.
	DefaultBranch string `yaml:"default_branch,omitempty"`
	// AMO configures the signing service.
	AMO AMO `yaml:"amo,omitempty"`
	// Test configures integration test fixtures.
	Test Test `yaml:"test,omitempty"`
	// Publish configures where signed releases are copied.
	Publish Publish `yaml:"publish,omitempty"`
	// Extra keeps unknown keys so that Save does not drop them.
	Extra map[string]any `yaml:",inline"`
}

// AMO names the environment variables holding the signing credentials.
type AMO struct {
	// Issuer is the name of the variable holding the JWT issuer.
	Issuer string `yaml:"issuer,omitempty"`
	// Secret is the name of the variable holding the JWT secret.
	Secret string `yaml:"secret,omitempty"`
	// Endpoint is the base URL of the signing API.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Test groups test-only settings.
type Test struct {
	XPIs Fixtures `yaml:"xpis,omitempty"`
}

// Fixtures lists fixture archive sources and where to install them.
type Fixtures struct {
	// Install is the directory fixture archives are synced into.
	Install string `yaml:"install,omitempty"`
	// Download lists fixture source descriptors.
	Download []string `yaml:"download,omitempty"`
}

// Publish configures the release publication step.
type Publish struct {
	// Dir receives the versioned archive and the update descriptor.
	Dir string `yaml:"dir,omitempty"`
	// URL is the public base URL of Dir, used for update links.
	URL string `yaml:"url,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename of the release configuration.
	DefaultConfigFilename = "xpi.yml"

	// DefaultManifest is the default extension metadata file.
	DefaultManifest = "install.rdf"

	// DefaultBranch is the default release branch.
	DefaultBranch = "master"

	// DefaultSigningEndpoint is the base URL of the signing API.
	DefaultSigningEndpoint = "https://addons.mozilla.org/api/v3"

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o644
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errXPIRequired is returned when the archive name is missing.
	errXPIRequired = errors.New("xpi must be provided")
	// errXPIExtension is returned when the archive name has no extension.
	errXPIExtension = errors.New("xpi must have a file extension")
)

// Load reads configuration from the provided path, checks it against the
// schema, and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(contents)
}

// Parse decodes and validates a configuration document.
func Parse(contents []byte) (*Config, error) {
	if err := validateSchema(contents); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate checks required fields and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.XPI == "" {
		return errXPIRequired
	}

	if filepath.Ext(cfg.XPI) == "" {
		return fmt.Errorf("%s: %w", cfg.XPI, errXPIExtension)
	}

	if cfg.Manifest == "" {
		cfg.Manifest = DefaultManifest
	}

	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = DefaultBranch
	}

	if cfg.AMO.Endpoint == "" {
		cfg.AMO.Endpoint = DefaultSigningEndpoint
	}

	cfg.AMO.Endpoint = strings.TrimRight(cfg.AMO.Endpoint, "/")

	for name, value := range map[string]string{
		"amo.endpoint": cfg.AMO.Endpoint,
		"changelog":    cfg.Changelog,
		"publish.url":  cfg.Publish.URL,
	} {
		if value == "" {
			continue
		}

		if _, err := url.ParseRequestURI(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// VersionedXPI returns the archive name with version inserted before the extension,
// e.g. "plugin.xpi" and "1.2.3" give "plugin-1.2.3.xpi".
func (c *Config) VersionedXPI(version string) string {
	ext := filepath.Ext(c.XPI)

	return strings.TrimSuffix(filepath.Base(c.XPI), ext) + "-" + version + ext
}

// SigningConfigured reports whether both credential variable names are set.
func (c *Config) SigningConfigured() bool {
	return c.AMO.Issuer != "" && c.AMO.Secret != ""
}
