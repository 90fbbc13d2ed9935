// Package config loads iconic's settings from layered YAML (or JSON) files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/storage"
)

// Environment variables consulted for the oracle API key, in order.
var APIKeyEnv = []string{"ICONIC_API_KEY", "OPENAI_API_KEY"}

// Repo-local config file names, first match wins.
var LocalFiles = []string{".iconicrc.yaml", ".iconicrc.yml", ".iconicrc.json"}

// Config holds application configuration.
type Config struct {
	// Dir is the library root for the local provider.
	Dir      string               `yaml:"dir"`
	Provider storage.ProviderType `yaml:"provider"`
	Cloud    storage.CloudConfig  `yaml:"cloud"`

	Oracle   OracleConfig `yaml:"oracle"`
	Settings Settings     `yaml:"settings"`

	// Categories overrides the active profile's list when set.
	Categories []string         `yaml:"categories"`
	Profile    string           `yaml:"profile"`
	Profiles   []bundle.Profile `yaml:"profiles"`

	Enrich EnrichConfig `yaml:"enrich"`

	AutosaveDelay time.Duration `yaml:"autosave_delay"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// OracleConfig configures the categorization endpoint.
type OracleConfig struct {
	APIKey            string `yaml:"api_key"` // supports ${VAR}
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// Settings are the user toggles.
type Settings struct {
	AutoExecute    bool `yaml:"auto_execute"`
	Deduplicate    bool `yaml:"deduplicate"`
	MultiTag       bool `yaml:"multi_tag"`
	DryRun         bool `yaml:"dry_run"`
	DownloadImages bool `yaml:"download_images"`
}

// EnrichConfig configures image enrichment.
type EnrichConfig struct {
	URLTemplate string `yaml:"url_template"`
	MaxWidth    int    `yaml:"max_width"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Dir:      ".",
		Provider: storage.ProviderLocal,
		Settings: Settings{
			Deduplicate: true,
			MultiTag:    true,
		},
		Profile:       "default",
		Enrich:        EnrichConfig{MaxWidth: 256},
		AutosaveDelay: 2 * time.Second,
		WatchDebounce: 3 * time.Second,
	}
}

// LoadOptions says where to look for config files.
type LoadOptions struct {
	GlobalDir string // e.g. ~/.config/iconic; "" skips the global file
	WorkDir   string // searched for LocalFiles; "" skips
	File      string // explicit file, must exist when set
}

// DefaultGlobalDir returns ~/.config/iconic, or "" when there is no home.
func DefaultGlobalDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "iconic")
	}
	return ""
}

// Load applies defaults, the global file, the repo-local file and the
// explicit file in that order. Later layers override only the keys they
// set; profiles are merged by id.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	var layers []string
	if opts.GlobalDir != "" {
		layers = append(layers, filepath.Join(opts.GlobalDir, "config.yaml"))
	}
	if opts.WorkDir != "" {
		if local := FindLocal(opts.WorkDir); local != "" {
			layers = append(layers, local)
		}
	}
	for _, path := range layers {
		if err := cfg.mergeFile(path, false); err != nil {
			return nil, err
		}
	}
	if opts.File != "" {
		if err := cfg.mergeFile(opts.File, true); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// FindLocal returns the first LocalFiles entry present in dir.
func FindLocal(dir string) string {
	for _, name := range LocalFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := c.merge(data); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// merge decodes one layer over c. JSON is accepted since it is valid YAML.
func (c *Config) merge(data []byte) error {
	expanded := os.ExpandEnv(string(data))

	base := c.Profiles
	c.Profiles = nil
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		c.Profiles = base
		return err
	}
	c.Profiles = mergeProfiles(base, c.Profiles)
	return nil
}

func (c *Config) applyEnv() {
	if c.Oracle.APIKey != "" {
		return
	}
	for _, name := range APIKeyEnv {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			c.Oracle.APIKey = v
			return
		}
	}
}

// mergeProfiles overlays profiles by id, keeping first-seen order.
func mergeProfiles(base, overlay []bundle.Profile) []bundle.Profile {
	if len(overlay) == 0 {
		return base
	}
	out := append([]bundle.Profile(nil), base...)
	for _, p := range overlay {
		replaced := false
		for i := range out {
			if strings.EqualFold(out[i].ID, p.ID) {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}

// ResolveCategories returns the explicit category list, or the active
// profile's list, validated.
func (c *Config) ResolveCategories() ([]string, error) {
	if len(c.Categories) > 0 {
		return bundle.ValidateCategories(c.Categories)
	}
	p, ok := bundle.FindProfile(c.Profile, c.Profiles)
	if !ok {
		return nil, fmt.Errorf("unknown category profile %q", c.Profile)
	}
	return bundle.ValidateCategories(p.Categories)
}

// Validate checks values that would fail later in a confusing way.
func (c *Config) Validate() error {
	switch c.Provider {
	case "", storage.ProviderLocal:
		if c.Dir == "" {
			return errors.New("dir is required for the local provider")
		}
	case storage.ProviderGoogleDrive:
		if c.Cloud.GoogleDrive == nil {
			return errors.New("cloud.google_drive is required for the gdrive provider")
		}
	case storage.ProviderS3:
		if c.Cloud.S3 == nil || c.Cloud.S3.Bucket == "" {
			return errors.New("cloud.s3.bucket is required for the s3 provider")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Oracle.RequestsPerMinute < 0 {
		return errors.New("oracle.requests_per_minute must not be negative")
	}
	if c.Enrich.MaxWidth < 0 {
		return errors.New("enrich.max_width must not be negative")
	}
	if c.Settings.DownloadImages && c.Enrich.URLTemplate == "" {
		return errors.New("settings.download_images needs enrich.url_template")
	}
	if _, err := c.ResolveCategories(); err != nil {
		return err
	}
	return nil
}
