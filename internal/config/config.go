// Package config loads build settings from config.yaml, a .env file and
// SKIWITHCARE_* environment variables, and installs the global logger.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Build   BuildConfig   `yaml:"build" mapstructure:"build"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	OSM     OSMConfig     `yaml:"osm" mapstructure:"osm"`
	CMS     CMSConfig     `yaml:"cms" mapstructure:"cms"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// PathsConfig locates outputs and geocode caches.
type PathsConfig struct {
	OutputDir     string `yaml:"output_dir" mapstructure:"output_dir" validate:"required"`
	ResortCache   string `yaml:"resort_cache" mapstructure:"resort_cache" validate:"required"`
	FacilityCache string `yaml:"facility_cache" mapstructure:"facility_cache" validate:"required"`
	HospitalCache string `yaml:"hospital_cache" mapstructure:"hospital_cache" validate:"required"`
	// ResortsFile enables the "file" resort source.
	ResortsFile string `yaml:"resorts_file" mapstructure:"resorts_file"`
}

// BuildConfig selects sources and thresholds for each dataset.
type BuildConfig struct {
	ResortSource             string  `yaml:"resort_source" mapstructure:"resort_source" validate:"required"`
	HospitalSource           string  `yaml:"hospital_source" mapstructure:"hospital_source" validate:"required"`
	ClinicSource             string  `yaml:"clinic_source" mapstructure:"clinic_source" validate:"required"`
	HospitalMaxDistanceMiles float64 `yaml:"hospital_max_distance_miles" mapstructure:"hospital_max_distance_miles" validate:"gte=0"`
	ClinicMaxDistanceMiles   float64 `yaml:"clinic_max_distance_miles" mapstructure:"clinic_max_distance_miles" validate:"gte=0"`
	CacheSaveEvery           int     `yaml:"cache_save_every" mapstructure:"cache_save_every" validate:"gte=0"`
	GeoJSON                  bool    `yaml:"geojson" mapstructure:"geojson"`
	// RetagResorts re-derives pass network and region for file resorts.
	RetagResorts bool `yaml:"retag_resorts" mapstructure:"retag_resorts"`
}

// GeocodeConfig configures the address and place geocoders.
type GeocodeConfig struct {
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
	NominatimURL     string  `yaml:"nominatim_url" mapstructure:"nominatim_url" validate:"required,url"`
	NominatimRPS     float64 `yaml:"nominatim_rps" mapstructure:"nominatim_rps" validate:"gte=0"`
	CensusRPS        float64 `yaml:"census_rps" mapstructure:"census_rps" validate:"gte=0"`
	CensusBatchSize  int     `yaml:"census_batch_size" mapstructure:"census_batch_size" validate:"gte=1,lte=10000"`
	GoogleAPIKey     string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	TigerDatabaseURL string  `yaml:"tiger_database_url" mapstructure:"tiger_database_url"`
	TigerMaxRating   int     `yaml:"tiger_max_rating" mapstructure:"tiger_max_rating" validate:"gte=0"`
}

// OSMConfig configures the Overpass sources.
type OSMConfig struct {
	Endpoints   []string `yaml:"endpoints" mapstructure:"endpoints" validate:"min=1,dive,url"`
	States      []string `yaml:"states" mapstructure:"states" validate:"dive,len=2"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
	// RPS is the starting request rate per endpoint host; 0 keeps the
	// built-in mirror limits.
	RPS float64 `yaml:"rps" mapstructure:"rps" validate:"gte=0"`
}

// CMSConfig configures the CMS provider-data sources.
type CMSConfig struct {
	HospitalMetadataURL string   `yaml:"hospital_metadata_url" mapstructure:"hospital_metadata_url" validate:"required,url"`
	DialysisMetadataURL string   `yaml:"dialysis_metadata_url" mapstructure:"dialysis_metadata_url" validate:"required,url"`
	DialysisFallbackURL string   `yaml:"dialysis_fallback_url" mapstructure:"dialysis_fallback_url" validate:"omitempty,url"`
	HospitalStates      []string `yaml:"hospital_states" mapstructure:"hospital_states" validate:"dive,len=2"`
	// ClinicStates empty keeps every state.
	ClinicStates []string `yaml:"clinic_states" mapstructure:"clinic_states" validate:"dive,len=2"`
}

// RetryConfig configures retries of external calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms" validate:"gte=0"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms" validate:"gte=0"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier" validate:"gte=1"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction" validate:"gte=0,lte=1"`
}

var skiStates = []string{
	"CA", "CO", "UT", "WY", "MT", "ID", "NM", "AZ", "NV",
	"WA", "OR",
	"VT", "NH", "ME", "NY", "PA", "MA", "CT", "NJ",
	"MI", "WI", "MN", "OH", "IN", "MO",
	"WV", "VA", "NC", "TN",
}

var validate = validator.New()

// Load reads configuration from .env, config file and environment, in
// increasing precedence, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SKIWITHCARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("paths.output_dir", "public")
	v.SetDefault("paths.resort_cache", "resort_geocoded_cache.json")
	v.SetDefault("paths.facility_cache", "facility_geocoded_cache.json")
	v.SetDefault("paths.hospital_cache", "hospital_geocode_cache.json")
	v.SetDefault("build.resort_source", "static")
	v.SetDefault("build.hospital_source", "cms")
	v.SetDefault("build.clinic_source", "cms")
	v.SetDefault("build.hospital_max_distance_miles", 75)
	v.SetDefault("build.clinic_max_distance_miles", 200)
	v.SetDefault("build.cache_save_every", 100)
	v.SetDefault("build.geojson", false)
	v.SetDefault("build.retag_resorts", false)
	v.SetDefault("geocode.user_agent", "skiwithcare/2.0 (personal project)")
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.nominatim_rps", 0.9)
	v.SetDefault("geocode.census_rps", 3)
	v.SetDefault("geocode.census_batch_size", 1000)
	v.SetDefault("geocode.tiger_max_rating", 20)
	v.SetDefault("osm.endpoints", []string{
		"https://overpass.kumi.systems/api/interpreter",
		"https://overpass-api.de/api/interpreter",
	})
	v.SetDefault("osm.states", skiStates)
	v.SetDefault("osm.timeout_secs", 60)
	v.SetDefault("osm.rps", 1)
	v.SetDefault("cms.hospital_metadata_url", "https://data.cms.gov/provider-data/api/1/metastore/schemas/dataset/items/xubh-q36u")
	v.SetDefault("cms.dialysis_metadata_url", "https://data.cms.gov/provider-data/api/1/metastore/schemas/dataset/items/23ew-n7w9")
	v.SetDefault("cms.dialysis_fallback_url", "https://data.cms.gov/provider-data/sites/default/files/resources/c04d84bc5c641284494bee4f20f17f9c_1759341903/DFC_FACILITY.csv")
	v.SetDefault("cms.hospital_states", skiStates)
	v.SetDefault("cms.clinic_states", []string{})
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.initial_backoff_ms", 3000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return eris.Wrap(err, "config: invalid")
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
