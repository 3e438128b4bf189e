package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CutoffLayout is the date format for treatment.cutoff_date.
const CutoffLayout = "2006-01-02"

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig             `yaml:"store" mapstructure:"store"`
	Paths     PathsConfig             `yaml:"paths" mapstructure:"paths"`
	Resolve   ResolveConfig           `yaml:"resolve" mapstructure:"resolve"`
	Panel     PanelConfig             `yaml:"panel" mapstructure:"panel"`
	Treatment TreatmentConfig         `yaml:"treatment" mapstructure:"treatment"`
	Estimate  EstimateConfig          `yaml:"estimate" mapstructure:"estimate"`
	EDGAR     EDGARConfig             `yaml:"edgar" mapstructure:"edgar"`
	Sources   map[string]SourceConfig `yaml:"sources" mapstructure:"sources"`
	Log       LogConfig               `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the observation store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PathsConfig locates input and output files.
type PathsConfig struct {
	DataDir   string `yaml:"data_dir" mapstructure:"data_dir"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	Roster    string `yaml:"roster" mapstructure:"roster"`
	Aliases   string `yaml:"aliases" mapstructure:"aliases"`
	TempDir   string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// ResolveConfig configures identifier resolution.
type ResolveConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
}

// PanelConfig configures panel assembly.
type PanelConfig struct {
	SourcePriority []string `yaml:"source_priority" mapstructure:"source_priority"`
	WriteXLSX      bool     `yaml:"write_xlsx" mapstructure:"write_xlsx"`
}

// TreatmentConfig fixes the treatment definition for a replication.
type TreatmentConfig struct {
	Threshold     float64 `yaml:"threshold" mapstructure:"threshold"`
	CutoffDate    string  `yaml:"cutoff_date" mapstructure:"cutoff_date"`
	ExposureFile  string  `yaml:"exposure_file" mapstructure:"exposure_file"`
	ExposureLevel string  `yaml:"exposure_level" mapstructure:"exposure_level"` // "sector" or "firm"
	ONETDir       string  `yaml:"onet_dir" mapstructure:"onet_dir"`
	ONETURL       string  `yaml:"onet_url" mapstructure:"onet_url"` // O*NET text database ZIP
}

// Cutoff parses CutoffDate.
func (t TreatmentConfig) Cutoff() (time.Time, error) {
	c, err := time.Parse(CutoffLayout, strings.TrimSpace(t.CutoffDate))
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "config: parse treatment.cutoff_date %q", t.CutoffDate)
	}
	return c, nil
}

// EstimateConfig configures the regressions run by default.
type EstimateConfig struct {
	Metrics       []string `yaml:"metrics" mapstructure:"metrics"`
	Specs         []string `yaml:"specs" mapstructure:"specs"`
	SEType        string   `yaml:"se_type" mapstructure:"se_type"`
	Transform     string   `yaml:"transform" mapstructure:"transform"`
	MinSample     int      `yaml:"min_sample" mapstructure:"min_sample"`
	ReferenceYear int      `yaml:"reference_year" mapstructure:"reference_year"`
	BreakYears    []int    `yaml:"break_years" mapstructure:"break_years"`
	// BySector adds a within-firm post estimate per sector.
	BySector bool `yaml:"by_sector" mapstructure:"by_sector"`
	// AnticipationStart opens the anticipation window of the event-study
	// decomposition.
	AnticipationStart int `yaml:"anticipation_start" mapstructure:"anticipation_start"`
}

// EDGARConfig configures the SEC EDGAR client.
type EDGARConfig struct {
	UserAgent   string   `yaml:"user_agent" mapstructure:"user_agent"`
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`
	DataURL     string   `yaml:"data_url" mapstructure:"data_url"`
	StartYear   int      `yaml:"start_year" mapstructure:"start_year"`
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
	Keywords    []string `yaml:"keywords" mapstructure:"keywords"`
}

// SourceConfig points a source adapter at its raw file. When Path does not
// exist and URL is set, the file is downloaded first; Member picks one entry
// out of a downloaded ZIP archive.
type SourceConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	URL      string `yaml:"url" mapstructure:"url"`
	Member   string `yaml:"member" mapstructure:"member"`
	Sheet    string `yaml:"sheet" mapstructure:"sheet"`
	SkipRows int    `yaml:"skip_rows" mapstructure:"skip_rows"`
	Parents  string `yaml:"parents" mapstructure:"parents"` // ghgrp facility → parent mapping file
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ESGR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/observations.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.output_dir", "analysis/output")
	v.SetDefault("paths.roster", "data/roster.csv")
	v.SetDefault("paths.temp_dir", "/tmp/esg-research")
	v.SetDefault("resolve.fuzzy_threshold", 0.85)
	v.SetDefault("panel.source_priority", []string{"manual", "ghgrp", "edgar_ai", "financials", "cdp", "esg_ratings"})
	v.SetDefault("treatment.threshold", 60.0)
	v.SetDefault("treatment.cutoff_date", "2022-11-30")
	v.SetDefault("treatment.exposure_file", "data/ai_exposure/ai_exposure_by_sector.csv")
	v.SetDefault("treatment.exposure_level", "sector")
	v.SetDefault("treatment.onet_dir", "data/ai_exposure")
	v.SetDefault("treatment.onet_url", "https://www.onetcenter.org/dl_files/database/db_29_0_text.zip")
	v.SetDefault("estimate.metrics", []string{"total_emissions", "scope2_emissions"})
	v.SetDefault("estimate.specs", []string{"basic", "twfe", "continuous", "event"})
	v.SetDefault("estimate.se_type", "cluster")
	v.SetDefault("estimate.transform", "log1p")
	v.SetDefault("estimate.min_sample", 10)
	v.SetDefault("estimate.reference_year", 2022)
	v.SetDefault("estimate.break_years", []int{2020, 2021, 2022, 2023})
	v.SetDefault("estimate.by_sector", true)
	v.SetDefault("estimate.anticipation_start", 2020)
	v.SetDefault("edgar.user_agent", "Academic Research research@example.edu")
	v.SetDefault("edgar.base_url", "https://www.sec.gov")
	v.SetDefault("edgar.data_url", "https://data.sec.gov")
	v.SetDefault("edgar.start_year", 2018)
	v.SetDefault("edgar.concurrency", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the parameters a replication depends on.
func (c *Config) Validate() error {
	if _, err := c.Treatment.Cutoff(); err != nil {
		return err
	}
	if c.Treatment.Threshold < 0 || c.Treatment.Threshold > 100 {
		return eris.Errorf("config: treatment.threshold %.2f outside 0-100", c.Treatment.Threshold)
	}
	switch c.Treatment.ExposureLevel {
	case "sector", "firm":
	default:
		return eris.Errorf("config: treatment.exposure_level %q (valid: sector, firm)", c.Treatment.ExposureLevel)
	}
	if c.Resolve.FuzzyThreshold <= 0 || c.Resolve.FuzzyThreshold > 1 {
		return eris.Errorf("config: resolve.fuzzy_threshold %.2f outside (0, 1]", c.Resolve.FuzzyThreshold)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: store.driver %q (valid: sqlite, postgres)", c.Store.Driver)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
