package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.HTTPAddr != ":8000" || cfg.Pipeline.MaxPages != 3 || cfg.Pipeline.ServiceTimeout != 60*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Pipeline.Backends) != 3 || cfg.Pipeline.Backends[0] != "ledongthuc" {
		t.Fatalf("backends = %v", cfg.Pipeline.Backends)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	yaml := "server:\n  http_addr: \":9000\"\npipeline:\n  max_pages: 5\n  strict_schema: true\nregistry:\n  workers: 2\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INVOICES_REGISTRY_WORKERS", "7")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9000" || cfg.Pipeline.MaxPages != 5 || !cfg.Pipeline.StrictSchema {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Registry.Workers != 7 {
		t.Fatalf("workers = %d, want env override 7", cfg.Registry.Workers)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("api key = %q", cfg.LLM.APIKey)
	}
	if err := cfg.RequireLLM(); err != nil {
		t.Fatalf("RequireLLM: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite", DSN: "file:x.db"},
			Pipeline: PipelineConfig{MaxPages: 3, MaxFileSizeMB: 10, Backends: []string{"pdfcpu"}},
			Registry: RegistryConfig{Workers: 1},
		}
	}
	cases := map[string]func(*Config){
		"driver":   func(c *Config) { c.Database.Driver = "mysql" },
		"dsn":      func(c *Config) { c.Database.DSN = "" },
		"pages":    func(c *Config) { c.Pipeline.MaxPages = 0 },
		"size":     func(c *Config) { c.Pipeline.MaxFileSizeMB = 0 },
		"backends": func(c *Config) { c.Pipeline.Backends = nil },
		"cost":     func(c *Config) { c.Pipeline.CostPer1KTokens = -1 },
		"workers":  func(c *Config) { c.Registry.Workers = 0 },
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config: %v", err)
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			err := c.Validate()
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Validate() = %v, want ErrInvalidInput", err)
			}
		})
	}
	if err := base().RequireLLM(); err == nil {
		t.Fatal("RequireLLM should fail without a key")
	}
}

func TestKindErrors(t *testing.T) {
	err := NewKindError(KindService, "structuring", "service call failed", context.DeadlineExceeded)
	if KindOf(err) != KindService || err.Code != "SERVICE_ERROR" || err.Stage != "structuring" {
		t.Fatalf("unexpected error %+v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("cause is not unwrapped")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("plain errors are internal")
	}
	if WrapError(nil, "x") != nil {
		t.Fatal("WrapError(nil) must be nil")
	}
}

func TestContextValues(t *testing.T) {
	ctx := WithJobID(WithRequestID(context.Background(), "req-1"), "job-1")
	if RequestIDFromContext(ctx) != "req-1" || JobIDFromContext(ctx) != "job-1" {
		t.Fatal("context values lost")
	}
	if JobIDFromContext(context.Background()) != "" {
		t.Fatal("empty context should carry no job id")
	}
}

func TestValidator(t *testing.T) {
	total := -5.0
	err := NewValidator().
		Field("razon_social_cliente", "  ", Required).
		Field("codigo_cliente", "123", TaxID).
		Field("moneda", "soles", CurrencyCode).
		Field("total", &total, NonNegative).
		Err()
	var appErr *AppError
	if !errors.As(err, &appErr) || !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Err() = %v", err)
	}
	v := NewValidator().
		Field("razon_social_cliente", "ACME", Required, MaxLength(10)).
		Field("codigo_cliente", "20123456789", TaxID).
		Field("moneda", "", CurrencyCode)
	if v.HasErrors() {
		t.Fatalf("unexpected errors: %v", v.Errors())
	}
}
