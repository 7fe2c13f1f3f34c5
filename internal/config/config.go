package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every tunable of the service. The resolution thresholds are
// deliberately configuration, not constants: the right values depend on the
// real venue-name corpus and get tuned over time.
type Config struct {
	Port         string `mapstructure:"port"`
	DatabasePath string `mapstructure:"database_path"`
	LogLevel     string `mapstructure:"log_level"`

	// Resolver tiers. A top score >= AutoThreshold resolves outright;
	// scores in [ReviewThreshold, AutoThreshold) resolve flagged; anything
	// lower, or candidates within TieEpsilon of each other, is ambiguous.
	AutoThreshold   float64 `mapstructure:"auto_threshold"`
	ReviewThreshold float64 `mapstructure:"review_threshold"`
	TieEpsilon      float64 `mapstructure:"tie_epsilon"`

	// Review queue: entries whose top candidate confidence (0-100) reaches
	// the ceiling may be approved without a human.
	AutoApproveCeiling float64 `mapstructure:"auto_approve_ceiling"`

	// Discovery pipeline.
	GeocodeAutoCreate float64       `mapstructure:"geocode_auto_create"`
	BatchSize         int           `mapstructure:"batch_size"`
	BatchDelay        time.Duration `mapstructure:"batch_delay"`
	DedupTTL          time.Duration `mapstructure:"dedup_ttl"`

	// Geocoding client.
	GeocodeAPIKey     string        `mapstructure:"geocode_api_key"`
	GeocodeBaseURL    string        `mapstructure:"geocode_base_url"`
	GeocodeTimeout    time.Duration `mapstructure:"geocode_timeout"`
	GeocodeRPM        int           `mapstructure:"geocode_rpm"`
	GeocodeCacheTTL   time.Duration `mapstructure:"geocode_cache_ttl"`
	BiasLatitude      float64       `mapstructure:"bias_latitude"`
	BiasLongitude     float64       `mapstructure:"bias_longitude"`
	BiasRadiusMeters  float64       `mapstructure:"bias_radius_meters"`

	// Optional shared dedup cache; empty means in-memory only.
	RedisAddr string `mapstructure:"redis_addr"`
}

// Load reads configuration from the environment (VENUEATLAS_* variables),
// with an optional local .env file for development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("venueatlas")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("database_path", "venueatlas.db")
	v.SetDefault("log_level", "info")

	v.SetDefault("auto_threshold", 0.70)
	v.SetDefault("review_threshold", 0.50)
	v.SetDefault("tie_epsilon", 0.05)
	v.SetDefault("auto_approve_ceiling", 90.0)

	v.SetDefault("geocode_auto_create", 90.0)
	v.SetDefault("batch_size", 10)
	v.SetDefault("batch_delay", 2*time.Second)
	v.SetDefault("dedup_ttl", 24*time.Hour)

	v.SetDefault("geocode_base_url", "https://places.googleapis.com")
	v.SetDefault("geocode_timeout", 15*time.Second)
	v.SetDefault("geocode_rpm", 60)
	v.SetDefault("geocode_cache_ttl", time.Hour)
	// Orange County, the league's home turf.
	v.SetDefault("bias_latitude", 33.70)
	v.SetDefault("bias_longitude", -117.80)
	v.SetDefault("bias_radius_meters", 80000.0)

	v.SetDefault("redis_addr", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects threshold combinations that would break the tier policy.
func (c *Config) Validate() error {
	if c.AutoThreshold <= 0 || c.AutoThreshold > 1 {
		return fmt.Errorf("auto_threshold %v outside (0,1]", c.AutoThreshold)
	}
	if c.ReviewThreshold <= 0 || c.ReviewThreshold > 1 {
		return fmt.Errorf("review_threshold %v outside (0,1]", c.ReviewThreshold)
	}
	if c.ReviewThreshold > c.AutoThreshold {
		return fmt.Errorf("review_threshold %v above auto_threshold %v",
			c.ReviewThreshold, c.AutoThreshold)
	}
	if c.TieEpsilon < 0 || c.TieEpsilon >= 0.5 {
		return fmt.Errorf("tie_epsilon %v outside [0,0.5)", c.TieEpsilon)
	}
	if c.AutoApproveCeiling < 0 || c.AutoApproveCeiling > 100 {
		return fmt.Errorf("auto_approve_ceiling %v outside [0,100]", c.AutoApproveCeiling)
	}
	if c.GeocodeAutoCreate < 0 || c.GeocodeAutoCreate > 100 {
		return fmt.Errorf("geocode_auto_create %v outside [0,100]", c.GeocodeAutoCreate)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	return nil
}
