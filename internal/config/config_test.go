package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "public", cfg.Paths.OutputDir)
	assert.Equal(t, "resort_geocoded_cache.json", cfg.Paths.ResortCache)
	assert.Equal(t, "facility_geocoded_cache.json", cfg.Paths.FacilityCache)
	assert.Equal(t, "hospital_geocode_cache.json", cfg.Paths.HospitalCache)
	assert.Equal(t, "static", cfg.Build.ResortSource)
	assert.Equal(t, "cms", cfg.Build.HospitalSource)
	assert.Equal(t, "cms", cfg.Build.ClinicSource)
	assert.InDelta(t, 75, cfg.Build.HospitalMaxDistanceMiles, 0.001)
	assert.InDelta(t, 200, cfg.Build.ClinicMaxDistanceMiles, 0.001)
	assert.Equal(t, 100, cfg.Build.CacheSaveEvery)
	assert.False(t, cfg.Build.GeoJSON)
	assert.Equal(t, "skiwithcare/2.0 (personal project)", cfg.Geocode.UserAgent)
	assert.InDelta(t, 0.9, cfg.Geocode.NominatimRPS, 0.001)
	assert.Equal(t, 1000, cfg.Geocode.CensusBatchSize)
	assert.False(t, cfg.Build.RetagResorts)
	assert.Len(t, cfg.OSM.Endpoints, 2)
	assert.InDelta(t, 1, cfg.OSM.RPS, 0.001)
	assert.Contains(t, cfg.OSM.States, "CO")
	assert.Equal(t, cfg.OSM.States, cfg.CMS.HospitalStates)
	assert.Empty(t, cfg.CMS.ClinicStates)
	assert.Contains(t, cfg.CMS.DialysisFallbackURL, "DFC_FACILITY.csv")
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3000, cfg.Retry.InitialBackoffMs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
paths:
  output_dir: out
build:
  clinic_source: cms
  clinic_max_distance_miles: 150
  geojson: true
  retag_resorts: true
osm:
  rps: 0.25
cms:
  clinic_states: [CO, UT]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "out", cfg.Paths.OutputDir)
	assert.InDelta(t, 150, cfg.Build.ClinicMaxDistanceMiles, 0.001)
	assert.True(t, cfg.Build.GeoJSON)
	assert.True(t, cfg.Build.RetagResorts)
	assert.InDelta(t, 0.25, cfg.OSM.RPS, 0.001)
	assert.Equal(t, []string{"CO", "UT"}, cfg.CMS.ClinicStates)
	// Defaults still apply for unset values
	assert.InDelta(t, 75, cfg.Build.HospitalMaxDistanceMiles, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
build:
  hospital_source: static
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SKIWITHCARE_BUILD_HOSPITAL_SOURCE", "osm")
	t.Setenv("SKIWITHCARE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "osm", cfg.Build.HospitalSource)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SKIWITHCARE_GEOCODE_GOOGLE_API_KEY=from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("SKIWITHCARE_GEOCODE_GOOGLE_API_KEY") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Geocode.GoogleAPIKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SKIWITHCARE_BUILD_CLINIC_MAX_DISTANCE_MILES", "-5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ClinicMaxDistanceMiles")
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unterminated"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func validDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "Format"},
		{"empty output dir", func(c *Config) { c.Paths.OutputDir = "" }, "OutputDir"},
		{"batch too large", func(c *Config) { c.Geocode.CensusBatchSize = 20000 }, "CensusBatchSize"},
		{"no overpass endpoints", func(c *Config) { c.OSM.Endpoints = nil }, "Endpoints"},
		{"bad state code", func(c *Config) { c.CMS.HospitalStates = []string{"Colorado"} }, "HospitalStates"},
		{"negative overpass rate", func(c *Config) { c.OSM.RPS = -1 }, "RPS"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "MaxAttempts"},
		{"no cutoff is allowed", func(c *Config) { c.Build.HospitalMaxDistanceMiles = 0 }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
