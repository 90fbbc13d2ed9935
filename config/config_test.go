package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/storage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func clearKeyEnv(t *testing.T) {
	for _, name := range APIKeyEnv {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearKeyEnv(t)
	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Settings.Deduplicate)
	assert.True(t, cfg.Settings.MultiTag)
	assert.False(t, cfg.Settings.AutoExecute)

	cats, err := cfg.ResolveCategories()
	require.NoError(t, err)
	assert.Equal(t, bundle.DefaultCategories, cats)
}

func TestLoadLayers(t *testing.T) {
	clearKeyEnv(t)
	global := t.TempDir()
	work := t.TempDir()

	writeFile(t, filepath.Join(global, "config.yaml"), `
oracle:
  model: global-model
  requests_per_minute: 10
settings:
  multi_tag: false
profiles:
  - id: mine
    name: Mine
    categories: [Keys, Pads]
autosave_delay: 5s
`)
	writeFile(t, filepath.Join(work, ".iconicrc.json"), `{
  "oracle": {"model": "local-model"},
  "profile": "mine",
  "profiles": [{"id": "lofi", "name": "Lo-fi", "categories": ["Tape"]}]
}`)

	cfg, err := Load(LoadOptions{GlobalDir: global, WorkDir: work})
	require.NoError(t, err)

	assert.Equal(t, "local-model", cfg.Oracle.Model)
	assert.Equal(t, 10, cfg.Oracle.RequestsPerMinute, "keys absent from a later layer survive")
	assert.False(t, cfg.Settings.MultiTag)
	assert.True(t, cfg.Settings.Deduplicate)
	assert.Equal(t, 5*time.Second, cfg.AutosaveDelay)
	require.Len(t, cfg.Profiles, 2)

	cats, err := cfg.ResolveCategories()
	require.NoError(t, err)
	assert.Equal(t, []string{"Keys", "Pads"}, cats)
}

func TestLoadExplicitFile(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("TEST_S3_SECRET", "s3cr3t")
	file := filepath.Join(t.TempDir(), "iconic.yaml")
	writeFile(t, file, `
provider: s3
cloud:
  s3:
    endpoint: localhost:9000
    bucket: presets
    access_key: minio
    secret_key: ${TEST_S3_SECRET}
categories: [Bass, Synth]
`)

	cfg, err := Load(LoadOptions{File: file})
	require.NoError(t, err)
	assert.Equal(t, storage.ProviderS3, cfg.Provider)
	require.NotNil(t, cfg.Cloud.S3)
	assert.Equal(t, "s3cr3t", cfg.Cloud.S3.SecretKey)
	require.NoError(t, cfg.Validate())

	_, err = Load(LoadOptions{File: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, file, "settings: [\n")
	_, err := Load(LoadOptions{File: file})
	assert.Error(t, err)
}

func TestAPIKeyFromEnv(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.Oracle.APIKey)

	t.Setenv("ICONIC_API_KEY", "sk-iconic")
	cfg, err = Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "sk-iconic", cfg.Oracle.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown provider", func(c *Config) { c.Provider = "ftp" }, false},
		{"gdrive without config", func(c *Config) { c.Provider = storage.ProviderGoogleDrive }, false},
		{"images without template", func(c *Config) { c.Settings.DownloadImages = true }, false},
		{"unknown profile", func(c *Config) { c.Profile = "nope" }, false},
		{"duplicate categories", func(c *Config) { c.Categories = []string{"Bass", "bass"} }, false},
		{"negative rpm", func(c *Config) { c.Oracle.RequestsPerMinute = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
