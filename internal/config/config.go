package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths       PathsConfig       `yaml:"paths" mapstructure:"paths"`
	Calibration CalibrationConfig `yaml:"calibration" mapstructure:"calibration"`
	Match       MatchConfig       `yaml:"match" mapstructure:"match"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Publish     PublishConfig     `yaml:"publish" mapstructure:"publish"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Prices      PricesConfig      `yaml:"prices" mapstructure:"prices"`
	Watch       WatchConfig       `yaml:"watch" mapstructure:"watch"`
	Fetch       FetchConfig       `yaml:"fetch" mapstructure:"fetch"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates the input and output artifacts.
type PathsConfig struct {
	RawDir       string `yaml:"raw_dir" mapstructure:"raw_dir"`
	ProcessedDir string `yaml:"processed_dir" mapstructure:"processed_dir"`
	DataDir      string `yaml:"data_dir" mapstructure:"data_dir"`

	// NodeRegistry may be a glob; the NP4-160 file name carries a date.
	NodeRegistry string `yaml:"node_registry" mapstructure:"node_registry"`
	Facilities   string `yaml:"facilities" mapstructure:"facilities"`
	KML          string `yaml:"kml" mapstructure:"kml"`

	// ContourPages are processed in this order; the first page wins per node.
	ContourPages []string `yaml:"contour_pages" mapstructure:"contour_pages"`
}

// CalibrationConfig configures the pixel-to-geographic transform.
type CalibrationConfig struct {
	MinControlPoints int       `yaml:"min_control_points" mapstructure:"min_control_points"`
	FallbackLat      []float64 `yaml:"fallback_lat" mapstructure:"fallback_lat"`
	FallbackLon      []float64 `yaml:"fallback_lon" mapstructure:"fallback_lon"`
	Precision        int       `yaml:"precision" mapstructure:"precision"`
}

// MatchConfig configures facility name matching.
type MatchConfig struct {
	FuzzyCutoff   float64  `yaml:"fuzzy_cutoff" mapstructure:"fuzzy_cutoff"`
	MinNameLength int      `yaml:"min_name_length" mapstructure:"min_name_length"`
	Suffixes      []string `yaml:"suffixes" mapstructure:"suffixes"`
}

// CacheConfig controls reuse of previously reconciled artifacts.
type CacheConfig struct {
	// VerifyInputs requires the manifest cache key to match the current inputs.
	VerifyInputs bool `yaml:"verify_inputs" mapstructure:"verify_inputs"`
}

// StoreConfig configures the run ledger.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// PublishConfig configures the PostGIS publisher.
type PublishConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Table       string `yaml:"table" mapstructure:"table"`
	// Mode is "replace" (truncate then copy) or "upsert" (merge on settlement_point).
	Mode        string `yaml:"mode" mapstructure:"mode"`
}

// MetricsConfig configures metric output for batch runs.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// MonitoringConfig configures run-ledger alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackRuns         int     `yaml:"lookback_runs" mapstructure:"lookback_runs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinMatchRate         float64 `yaml:"min_match_rate" mapstructure:"min_match_rate"`
}

// PricesConfig locates the real-time settlement point price files.
type PricesConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// WatchConfig configures the input watcher.
type WatchConfig struct {
	DebounceSecs int `yaml:"debounce_secs" mapstructure:"debounce_secs"`
}

// FetchConfig configures downloads of the registry artifacts.
type FetchConfig struct {
	NP4160URL   string `yaml:"np4160_url" mapstructure:"np4160_url"`
	EIA860URL   string `yaml:"eia860_url" mapstructure:"eia860_url"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// NodeRegistryPath returns the node registry path or glob, resolved under RawDir.
func (p PathsConfig) NodeRegistryPath() string {
	return p.resolve(p.RawDir, p.NodeRegistry)
}

// FacilitiesPath returns the facility table path, resolved under RawDir.
func (p PathsConfig) FacilitiesPath() string {
	return p.resolve(p.RawDir, p.Facilities)
}

// KMLPath returns the KML snapshot path, resolved under DataDir.
func (p PathsConfig) KMLPath() string {
	if p.KML == "" {
		return ""
	}
	return p.resolve(p.DataDir, p.KML)
}

// ContourPagePaths returns the contour page paths in priority order, resolved under DataDir.
func (p PathsConfig) ContourPagePaths() []string {
	out := make([]string, 0, len(p.ContourPages))
	for _, page := range p.ContourPages {
		out = append(out, p.resolve(p.DataDir, page))
	}
	return out
}

func (p PathsConfig) resolve(base, name string) string {
	if name == "" || filepath.IsAbs(name) || base == "" {
		return name
	}
	return filepath.Join(base, name)
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NODEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("paths.raw_dir", "raw_data")
	v.SetDefault("paths.processed_dir", "processed_data")
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.node_registry", "ercot/np4_160/Resource_Node_to_Unit_*.csv")
	v.SetDefault("paths.facilities", "eia860/texas_plants.csv")
	v.SetDefault("paths.kml", "rtmLmpPoints.kml")
	v.SetDefault("paths.contour_pages", []string{
		"rtmLmp_html_source.txt",
		"rtmSpp_html_source.txt",
		"damSpp2_html_source.txt",
		"damSpp7_html_source.txt",
	})
	v.SetDefault("calibration.min_control_points", 10)
	v.SetDefault("calibration.fallback_lat", []float64{36.796687, 0.000005, -0.018760})
	v.SetDefault("calibration.fallback_lon", []float64{-107.009848, 0.023113, -0.000004})
	v.SetDefault("calibration.precision", 4)
	v.SetDefault("match.fuzzy_cutoff", 0.7)
	v.SetDefault("match.min_name_length", 3)
	v.SetDefault("match.suffixes", []string{"BESS", "ESS", "SOLAR", "SLR", "WIND", "WND"})
	v.SetDefault("cache.verify_inputs", true)
	v.SetDefault("store.sqlite_path", "processed_data/nodemap.db")
	v.SetDefault("publish.schema", "ercot")
	v.SetDefault("publish.table", "node_coordinates")
	v.SetDefault("publish.mode", "replace")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_runs", 20)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.min_match_rate", 0.5)
	v.SetDefault("prices.dir", "raw_data/ercot/rt_spp")
	v.SetDefault("prices.concurrency", 4)
	v.SetDefault("watch.debounce_secs", 2)
	v.SetDefault("fetch.np4160_url", "https://www.ercot.com/misdownload/servlets/mirDownload?mimic_duns=000000000&doclookupId=1197364253")
	v.SetDefault("fetch.eia860_url", "https://www.eia.gov/electricity/data/eia860/xls/eia8602024.zip")
	v.SetDefault("fetch.user_agent", "ercot-nodemap/1.0")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "reconcile":
		if c.Paths.NodeRegistry == "" {
			errs = append(errs, "paths.node_registry is required")
		}
		if c.Paths.Facilities == "" {
			errs = append(errs, "paths.facilities is required")
		}
		if c.Paths.ProcessedDir == "" {
			errs = append(errs, "paths.processed_dir is required")
		}
		if c.Calibration.MinControlPoints < 3 {
			errs = append(errs, "calibration.min_control_points must be >= 3")
		}
		if len(c.Calibration.FallbackLat) != 3 || len(c.Calibration.FallbackLon) != 3 {
			errs = append(errs, "calibration.fallback_lat and fallback_lon need 3 coefficients each")
		}
		if c.Calibration.Precision < 0 || c.Calibration.Precision > 10 {
			errs = append(errs, "calibration.precision must be between 0 and 10")
		}
		if c.Match.FuzzyCutoff <= 0 || c.Match.FuzzyCutoff > 1 {
			errs = append(errs, "match.fuzzy_cutoff must be in (0, 1]")
		}
		if c.Match.MinNameLength < 1 {
			errs = append(errs, "match.min_name_length must be >= 1")
		}
	case "publish":
		if c.Publish.DatabaseURL == "" {
			errs = append(errs, "publish.database_url is required")
		}
		if c.Publish.Table == "" {
			errs = append(errs, "publish.table is required")
		}
		if c.Publish.Mode != "" && c.Publish.Mode != "replace" && c.Publish.Mode != "upsert" {
			errs = append(errs, fmt.Sprintf("publish.mode %q must be replace or upsert", c.Publish.Mode))
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(errs, "; ")))
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
