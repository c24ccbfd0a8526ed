// Package app wires configuration into the engine and its collaborators for the binaries.
package app

import (
	"io"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/extract"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-pipeline/internal/pipeline"
)

// NewLogger builds the process logger from the log section.
func NewLogger(cfg common.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps debug/info/warn/error onto slog levels. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewCompleter returns the chat completion client, or nil when no API key is configured.
// The engine then fails the Structuring stage with a service error.
func NewCompleter(cfg common.LLMConfig, logger *slog.Logger) llm.Completer {
	if cfg.APIKey == "" {
		logger.Warn("app.llm.disabled", "reason", "no api key")
		return nil
	}
	client := openai.NewClient(openai.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
	}, logger)
	logger.Info("app.llm.ready", "model", client.Model())
	return client
}

// Components are the pieces of a configured extraction engine.
type Components struct {
	Engine    *pipeline.Engine
	Inspector extract.Inspector
	Backends  *extract.Backends
	Selector  *extract.Selector
}

// BuildEngine assembles the inspector, the configured backends and the completer into an engine.
func BuildEngine(cfg *common.Config, logger *slog.Logger) (*Components, error) {
	backends, err := extract.BuildBackends(extract.BackendConfig{
		Names:     cfg.Pipeline.Backends,
		Pdftotext: cfg.Pipeline.Pdftotext,
	}, logger)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", err.Error(), common.ErrInvalidInput)
	}
	inspector := extract.NewPDFCPUInspector(logger)
	completer := NewCompleter(cfg.LLM, logger)

	engine := pipeline.NewEngine(pipeline.ConfigFrom(cfg.Pipeline), inspector, backends, completer, logger)
	return &Components{
		Engine:    engine,
		Inspector: inspector,
		Backends:  backends,
		Selector:  extract.NewSelector(backends.Ordered(), cfg.Pipeline.MinProbeChars, logger),
	}, nil
}
