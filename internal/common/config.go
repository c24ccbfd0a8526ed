package common

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Registry RegistryConfig `mapstructure:"registry"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	UploadDir       string        `mapstructure:"upload_dir"`
	MaxUploadMB     int           `mapstructure:"max_upload_mb"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	ConnectAttempts  uint          `mapstructure:"connect_attempts"`
}

// PipelineConfig tunes the extraction engine.
type PipelineConfig struct {
	MaxFileSizeMB   float64       `mapstructure:"max_file_size_mb"`
	MaxPages        int           `mapstructure:"max_pages"`
	MinPageChars    int           `mapstructure:"min_page_chars"`
	MinProbeChars   int           `mapstructure:"min_probe_chars"`
	Backends        []string      `mapstructure:"backends"`
	Pdftotext       string        `mapstructure:"pdftotext"`
	CostPer1KTokens float64       `mapstructure:"cost_per_1k_tokens"`
	ServiceTimeout  time.Duration `mapstructure:"service_timeout"`
	StrictSchema    bool          `mapstructure:"strict_schema"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// RegistryConfig sizes the job worker pool.
type RegistryConfig struct {
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

// IngestConfig configures the optional inbox watcher.
type IngestConfig struct {
	WatchDir    string        `mapstructure:"watch_dir"`
	InitialScan bool          `mapstructure:"initial_scan"`
	Debounce    time.Duration `mapstructure:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8000")
	v.SetDefault("server.grpc_addr", ":8081")
	v.SetDefault("server.upload_dir", "./tmp/uploads")
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:invoices.db?_pragma=foreign_keys(1)")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.dial_timeout", 3*time.Second)
	v.SetDefault("database.statement_timeout", 0)
	v.SetDefault("database.connect_attempts", 5)

	v.SetDefault("pipeline.max_file_size_mb", 10)
	v.SetDefault("pipeline.max_pages", 3)
	v.SetDefault("pipeline.min_page_chars", 20)
	v.SetDefault("pipeline.min_probe_chars", 10)
	v.SetDefault("pipeline.backends", []string{"ledongthuc", "pdfcpu", "pdftotext"})
	v.SetDefault("pipeline.pdftotext", "pdftotext")
	v.SetDefault("pipeline.cost_per_1k_tokens", 0.00015)
	v.SetDefault("pipeline.service_timeout", 60*time.Second)
	v.SetDefault("pipeline.strict_schema", false)

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.max_tokens", 1500)
	v.SetDefault("llm.timeout", 45*time.Second)
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("registry.workers", 4)
	v.SetDefault("registry.queue_size", 256)
	v.SetDefault("registry.job_timeout", 3*time.Minute)

	v.SetDefault("ingest.watch_dir", "")
	v.SetDefault("ingest.initial_scan", true)
	v.SetDefault("ingest.debounce", 500*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads defaults, an optional config file and INVOICES_* environment variables.
// An empty cfgFile looks for invoices.yaml in the working directory; a missing file is not an error.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INVOICES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", "INVOICES_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("database.dsn", "INVOICES_DATABASE_DSN", "DATABASE_URL")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("invoices")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings every binary depends on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported database driver %q", c.Database.Driver), ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "database.dsn is required", ErrInvalidInput)
	}
	if c.Pipeline.MaxPages <= 0 {
		return NewAppError("CONFIG_ERROR", "pipeline.max_pages must be positive", ErrInvalidInput)
	}
	if c.Pipeline.MaxFileSizeMB <= 0 {
		return NewAppError("CONFIG_ERROR", "pipeline.max_file_size_mb must be positive", ErrInvalidInput)
	}
	if len(c.Pipeline.Backends) == 0 {
		return NewAppError("CONFIG_ERROR", "pipeline.backends must list at least one backend", ErrInvalidInput)
	}
	if c.Pipeline.CostPer1KTokens < 0 {
		return NewAppError("CONFIG_ERROR", "pipeline.cost_per_1k_tokens must not be negative", ErrInvalidInput)
	}
	if c.Registry.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "registry.workers must be positive", ErrInvalidInput)
	}
	return nil
}

// RequireLLM is checked by binaries that run the Structuring stage.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	return nil
}
