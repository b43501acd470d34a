package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the insights server. The cohort
// cutoff and analysis window are deliberately part of the configuration and
// injected once at the top of the pipeline; no component derives its own
// notion of "in scope".
type Config struct {
	Port             string   `mapstructure:"PORT"`
	Env              string   `mapstructure:"ENV"`
	DatabaseURL      string   `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32    `mapstructure:"DB_MIN_CONNS"`
	AuthSecret       string   `mapstructure:"AUTH_SECRET"`
	CORSOrigins      []string `mapstructure:"CORS_ORIGINS"`
	CohortCutoff     string   `mapstructure:"COHORT_CUTOFF"`
	WindowStart      string   `mapstructure:"WINDOW_START"`
	WindowEnd        string   `mapstructure:"WINDOW_END"`
	NaiveTZ          string   `mapstructure:"NAIVE_TZ"`
	ActiveWindowDays int      `mapstructure:"ACTIVE_WINDOW_DAYS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("COHORT_CUTOFF", "2025-03-01")
	v.SetDefault("WINDOW_START", "2025-03-01")
	v.SetDefault("WINDOW_END", "2025-10-08")
	v.SetDefault("NAIVE_TZ", "UTC")
	v.SetDefault("ACTIVE_WINDOW_DAYS", 45)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("COHORT_CUTOFF")
	v.BindEnv("WINDOW_START")
	v.BindEnv("WINDOW_END")
	v.BindEnv("NAIVE_TZ")
	v.BindEnv("ACTIVE_WINDOW_DAYS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the date configuration is coherent. Dates are
// YYYY-MM-DD; the analysis window must not be inverted.
func (c *Config) Validate() error {
	if _, err := parseDay(c.CohortCutoff); err != nil {
		return fmt.Errorf("COHORT_CUTOFF: %w", err)
	}
	start, err := parseDay(c.WindowStart)
	if err != nil {
		return fmt.Errorf("WINDOW_START: %w", err)
	}
	end, err := parseDay(c.WindowEnd)
	if err != nil {
		return fmt.Errorf("WINDOW_END: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("WINDOW_END %s is before WINDOW_START %s", c.WindowEnd, c.WindowStart)
	}
	if _, err := time.LoadLocation(c.NaiveTZ); err != nil {
		return fmt.Errorf("NAIVE_TZ: %w", err)
	}
	if c.ActiveWindowDays <= 0 {
		return fmt.Errorf("ACTIVE_WINDOW_DAYS must be positive, got %d", c.ActiveWindowDays)
	}
	return nil
}

// Cutoff returns the cohort cutoff as a UTC timestamp at midnight.
func (c *Config) Cutoff() time.Time {
	t, _ := parseDay(c.CohortCutoff)
	return t
}

// Window returns the analysis window bounds as UTC timestamps. The end bound
// is inclusive of the whole final day.
func (c *Config) Window() (time.Time, time.Time) {
	start, _ := parseDay(c.WindowStart)
	end, _ := parseDay(c.WindowEnd)
	return start, end.Add(24*time.Hour - time.Nanosecond)
}

// NaiveLocation returns the location assumed for timezone-naive timestamps
// in the export. The dataset's authors emit UTC-intended naive timestamps,
// so the default is UTC.
func (c *Config) NaiveLocation() *time.Location {
	loc, err := time.LoadLocation(c.NaiveTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}
