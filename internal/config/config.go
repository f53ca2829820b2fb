// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. ERC_LLM_API_KEY.
const EnvPrefix = "ERC"

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Letter   LetterConfig   `mapstructure:"letter"`
	Output   OutputConfig   `mapstructure:"output"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Research ResearchConfig `mapstructure:"research"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP request layer.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// RequireKnownHost rejects conversation URLs that are not https share
	// links on a recognized chat host.
	RequireKnownHost bool            `mapstructure:"require_known_host"`
	CORSOrigins      []string        `mapstructure:"cors_origins"`
	RateLimit        RateLimitConfig `mapstructure:"rate_limit"`
}

// BrowserConfig configures the headless browser and navigation budgets.
type BrowserConfig struct {
	ExecPath           string        `mapstructure:"exec_path"`
	Headless           bool          `mapstructure:"headless"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	NetworkIdleTimeout time.Duration `mapstructure:"network_idle_timeout"`
	DOMContentTimeout  time.Duration `mapstructure:"dom_content_timeout"`
	CommitTimeout      time.Duration `mapstructure:"commit_timeout"`
}

// LLMConfig configures the generative text capability.
type LLMConfig struct {
	Provider                   string            `mapstructure:"provider"`
	APIKey                     string            `mapstructure:"api_key"`
	OpenAIAPIKey               string            `mapstructure:"openai_api_key"`
	Models                     map[string]string `mapstructure:"models"`
	GenerationTimeout          time.Duration     `mapstructure:"generation_timeout"`
	PreferGenerativeExtraction bool              `mapstructure:"prefer_generative_extraction"`
	SanitizeMaxBytes           int               `mapstructure:"sanitize_max_bytes"`
}

// LetterConfig configures letter composition.
type LetterConfig struct {
	Mode           string `mapstructure:"mode"`
	ExamplePath    string `mapstructure:"example_path"`
	Signatory      string `mapstructure:"signatory"`
	SignatoryTitle string `mapstructure:"signatory_title"`
}

// OutputConfig configures where packages are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// TrackingConfig selects and configures the tracking store.
type TrackingConfig struct {
	Backend         string `mapstructure:"backend"`
	DatabaseURL     string `mapstructure:"database_url"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	SheetName       string `mapstructure:"sheet_name"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// StorageConfig selects and configures the blob sink.
type StorageConfig struct {
	Backend           string        `mapstructure:"backend"`
	DriveRootFolderID string        `mapstructure:"drive_root_folder_id"`
	ShareWithEmail    string        `mapstructure:"share_with_email"`
	CredentialsFile   string        `mapstructure:"credentials_file"`
	S3Bucket          string        `mapstructure:"s3_bucket"`
	S3Prefix          string        `mapstructure:"s3_prefix"`
	S3Region          string        `mapstructure:"s3_region"`
	PresignTTL        time.Duration `mapstructure:"presign_ttl"`
}

// RateLimitConfig configures per-client request limits.
type RateLimitConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	PackagesPerHour int      `mapstructure:"packages_per_hour"`
	Whitelist       []string `mapstructure:"whitelist"`
}

// ResearchConfig configures order-source search.
type ResearchConfig struct {
	SearchAPIKey    string `mapstructure:"search_api_key"`
	SearchEngineID  string `mapstructure:"search_engine_id"`
	ResultsPerQuery int    `mapstructure:"results_per_query"`
}

// SearchEnabled reports whether order-source search is configured.
func (c *ResearchConfig) SearchEnabled() bool {
	return c.SearchAPIKey != "" && c.SearchEngineID != ""
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Backend names.
const (
	BackendNone     = "none"
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"
	BackendDrive    = "drive"
	BackendS3       = "s3"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_concurrent", 2)
	v.SetDefault("server.request_timeout", 15*time.Minute)
	v.SetDefault("server.require_known_host", true)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.packages_per_hour", 10)
	v.SetDefault("server.rate_limit.whitelist", []string{})

	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.settle_delay", 5*time.Second)
	v.SetDefault("browser.network_idle_timeout", 45*time.Second)
	v.SetDefault("browser.dom_content_timeout", 60*time.Second)
	v.SetDefault("browser.commit_timeout", 90*time.Second)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.models", map[string]string{})
	v.SetDefault("llm.generation_timeout", 120*time.Second)
	v.SetDefault("llm.prefer_generative_extraction", false)
	v.SetDefault("llm.sanitize_max_bytes", 400000)

	v.SetDefault("letter.mode", "facts")
	v.SetDefault("letter.example_path", "")
	v.SetDefault("letter.signatory", "")
	v.SetDefault("letter.signatory_title", "Authorized Representative")

	v.SetDefault("output.dir", "data/packages")

	v.SetDefault("tracking.backend", BackendNone)
	v.SetDefault("tracking.database_url", "")
	v.SetDefault("tracking.spreadsheet_id", "")
	v.SetDefault("tracking.sheet_name", "ERC Tracking")
	v.SetDefault("tracking.credentials_file", "")

	v.SetDefault("storage.backend", BackendNone)
	v.SetDefault("storage.drive_root_folder_id", "")
	v.SetDefault("storage.share_with_email", "")
	v.SetDefault("storage.credentials_file", "")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_prefix", "protests/")
	v.SetDefault("storage.s3_region", "")
	v.SetDefault("storage.presign_ttl", 7*24*time.Hour)

	v.SetDefault("research.search_api_key", "")
	v.SetDefault("research.search_engine_id", "")
	v.SetDefault("research.results_per_query", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration from defaults, an optional YAML file and the environment.
// A .env file in the working directory is loaded first if present.
// When path is empty, protest_agent.yaml is looked up in . and ./configs and
// silently skipped when absent.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("protest_agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyLegacyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyLegacyEnv fills API keys from the provider-conventional variables when unset.
func applyLegacyEnv(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.LLM.OpenAIAPIKey == "" {
		cfg.LLM.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Research.SearchAPIKey == "" {
		cfg.Research.SearchAPIKey = os.Getenv("GOOGLE_SEARCH_API_KEY")
	}
	if cfg.Tracking.DatabaseURL == "" {
		cfg.Tracking.DatabaseURL = os.Getenv("DATABASE_URL")
	}
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' must be between 1 and 65535")
	}
	if c.Server.MaxConcurrent < 1 {
		return fmt.Errorf("config error: 'server.max_concurrent' must be at least 1")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("config error: 'server.request_timeout' must be positive")
	}
	if c.Browser.NetworkIdleTimeout <= 0 || c.Browser.DOMContentTimeout <= 0 || c.Browser.CommitTimeout <= 0 {
		return fmt.Errorf("config error: browser navigation timeouts must be positive")
	}
	if c.Browser.SettleDelay < 0 {
		return fmt.Errorf("config error: 'browser.settle_delay' must be non-negative")
	}
	if c.LLM.GenerationTimeout <= 0 {
		return fmt.Errorf("config error: 'llm.generation_timeout' must be positive")
	}
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("config error: unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Letter.Mode {
	case "facts", "transcript":
	default:
		return fmt.Errorf("config error: 'letter.mode' must be facts or transcript")
	}
	switch c.Tracking.Backend {
	case BackendNone:
	case BackendPostgres:
		if c.Tracking.DatabaseURL == "" {
			return fmt.Errorf("config error: 'tracking.database_url' is required for the postgres backend")
		}
	case BackendSheets:
		if c.Tracking.SpreadsheetID == "" {
			return fmt.Errorf("config error: 'tracking.spreadsheet_id' is required for the sheets backend")
		}
	default:
		return fmt.Errorf("config error: unknown tracking backend %q", c.Tracking.Backend)
	}
	switch c.Storage.Backend {
	case BackendNone, BackendDrive:
	case BackendS3:
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("config error: 'storage.s3_bucket' is required for the s3 backend")
		}
	default:
		return fmt.Errorf("config error: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.PackagesPerHour < 1 {
		return fmt.Errorf("config error: 'server.rate_limit.packages_per_hour' must be at least 1")
	}
	if c.Research.ResultsPerQuery < 1 || c.Research.ResultsPerQuery > 10 {
		return fmt.Errorf("config error: 'research.results_per_query' must be between 1 and 10")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("config error: 'output.dir' must not be empty")
	}
	return nil
}

// ActiveAPIKey returns the key for the configured provider.
func (c *LLMConfig) ActiveAPIKey() string {
	if c.Provider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.APIKey
}
