package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

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
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/observations.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 0.85, cfg.Resolve.FuzzyThreshold, 0.001)
	assert.Equal(t, []string{"manual", "ghgrp", "edgar_ai", "financials", "cdp", "esg_ratings"}, cfg.Panel.SourcePriority)
	assert.InDelta(t, 60.0, cfg.Treatment.Threshold, 0.001)
	assert.Equal(t, "2022-11-30", cfg.Treatment.CutoffDate)
	assert.Equal(t, "sector", cfg.Treatment.ExposureLevel)
	assert.Equal(t, "cluster", cfg.Estimate.SEType)
	assert.Equal(t, "log1p", cfg.Estimate.Transform)
	assert.Equal(t, 2022, cfg.Estimate.ReferenceYear)
	assert.Equal(t, []int{2020, 2021, 2022, 2023}, cfg.Estimate.BreakYears)
	assert.True(t, cfg.Estimate.BySector)
	assert.Equal(t, 2020, cfg.Estimate.AnticipationStart)
	assert.Equal(t, "https://data.sec.gov", cfg.EDGAR.DataURL)
	assert.Equal(t, 4, cfg.EDGAR.Concurrency)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/esg
log:
  level: debug
  format: console
panel:
  source_priority: [cdp, ghgrp]
treatment:
  threshold: 55
sources:
  ghgrp:
    path: data/epa_ghgrp/parent.xlsx
    sheet: Parent Company
  cdp:
    path: data/cdp/scope2.csv
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"cdp", "ghgrp"}, cfg.Panel.SourcePriority)
	assert.InDelta(t, 55.0, cfg.Treatment.Threshold, 0.001)
	assert.Equal(t, "Parent Company", cfg.Sources["ghgrp"].Sheet)
	assert.Equal(t, "data/cdp/scope2.csv", cfg.Sources["cdp"].Path)
	// Defaults still apply for unset values
	assert.Equal(t, "2022-11-30", cfg.Treatment.CutoffDate)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("ESGR_LOG_LEVEL", "warn")
	t.Setenv("ESGR_TREATMENT_CUTOFF_DATE", "2023-01-01")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "2023-01-01", cfg.Treatment.CutoffDate)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestTreatmentCutoff(t *testing.T) {
	c, err := TreatmentConfig{CutoffDate: "2022-11-30"}.Cutoff()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 11, 30, 0, 0, 0, 0, time.UTC), c)

	_, err = TreatmentConfig{CutoffDate: "Nov 2022"}.Cutoff()
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Store:     StoreConfig{Driver: "sqlite"},
		Resolve:   ResolveConfig{FuzzyThreshold: 0.85},
		Treatment: TreatmentConfig{Threshold: 60, CutoffDate: "2022-11-30", ExposureLevel: "sector"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad cutoff", func(c *Config) { c.Treatment.CutoffDate = "soon" }, "cutoff_date"},
		{"threshold too high", func(c *Config) { c.Treatment.Threshold = 120 }, "threshold"},
		{"bad level", func(c *Config) { c.Treatment.ExposureLevel = "country" }, "exposure_level"},
		{"zero fuzzy", func(c *Config) { c.Resolve.FuzzyThreshold = 0 }, "fuzzy_threshold"},
		{"bad driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
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
