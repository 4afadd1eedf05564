package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the daily report service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address       string `mapstructure:"address"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassHash string `mapstructure:"admin_pass_hash"` // bcrypt hash
}

// ScoringConfig is the quality-gating policy: sub-score weights, band
// thresholds, and the executor drop threshold. Weights must sum to 1.
type ScoringConfig struct {
	SourceWeight      float64 `mapstructure:"source_weight"`
	RecencyWeight     float64 `mapstructure:"recency_weight"`
	StructureWeight   float64 `mapstructure:"structure_weight"`
	ConsistencyWeight float64 `mapstructure:"consistency_weight"`
	MainThreshold     float64 `mapstructure:"main_threshold"`
	SupportThreshold  float64 `mapstructure:"support_threshold"`
	DropThreshold     float64 `mapstructure:"drop_threshold"`
}

func (s ScoringConfig) Validate() error {
	sum := s.SourceWeight + s.RecencyWeight + s.StructureWeight + s.ConsistencyWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1, got %.3f", sum)
	}
	if s.MainThreshold < s.SupportThreshold {
		return fmt.Errorf("scoring.main_threshold must be >= scoring.support_threshold")
	}
	if s.DropThreshold < 0 || s.DropThreshold > 1 {
		return fmt.Errorf("scoring.drop_threshold must be in [0,1]")
	}
	return nil
}

// PlannerConfig controls plan compilation limits.
type PlannerConfig struct {
	MaxSteps int `mapstructure:"max_steps"`
	MaxCues  int `mapstructure:"max_cues"`
}

// LLMConfig configures the optional planning LLM.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ToolsConfig configures the external data-source collaborators.
type ToolsConfig struct {
	DartAPIKey        string        `mapstructure:"dart_api_key"`
	NaverClientID     string        `mapstructure:"naver_client_id"`
	NaverClientSecret string        `mapstructure:"naver_client_secret"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	UseMock           bool          `mapstructure:"use_mock"`
}

// StorageConfig contains Postgres and Redis settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains database connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ScheduleConfig controls the background daily-report scheduler.
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"` // "@daily" or a 5-field cron expression
}

// LoadConfig loads config from file, applying defaults and KRDAILY_* env overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("server.address", ":8080")

	// Quality-gating policy defaults: source identity dominates, recency next,
	// structure and cross-source consistency share the remainder.
	viper.SetDefault("scoring.source_weight", 0.35)
	viper.SetDefault("scoring.recency_weight", 0.25)
	viper.SetDefault("scoring.structure_weight", 0.2)
	viper.SetDefault("scoring.consistency_weight", 0.2)
	viper.SetDefault("scoring.main_threshold", 0.7)
	viper.SetDefault("scoring.support_threshold", 0.5)
	viper.SetDefault("scoring.drop_threshold", 0.5)

	viper.SetDefault("planner.max_steps", 20)
	viper.SetDefault("planner.max_cues", 5)
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.max_tokens", 2000)
	viper.SetDefault("llm.timeout", "60s")
	viper.SetDefault("tools.http_timeout", "10s")
	viper.SetDefault("tools.user_agent", "krdaily/1.0")
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("schedule.cron", "@daily")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("KRDAILY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// The config file is optional: defaults plus env cover the common case.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if err := config.Scoring.Validate(); err != nil {
		panic(fmt.Errorf("invalid scoring config: %w", err))
	}
	return &config
}
