package app

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	} {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(common.LogConfig{Level: "info", Format: "json"}, &buf).Info("pipeline.ok", "file", "a.pdf")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"msg":"pipeline.ok"`) {
		t.Fatalf("json output = %q", buf.String())
	}

	buf.Reset()
	l := NewLogger(common.LogConfig{Level: "warn"}, &buf)
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "msg=shown") {
		t.Fatalf("text output = %q", buf.String())
	}
}

func TestBuildEngine(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &common.Config{Pipeline: common.PipelineConfig{
		MaxPages:      3,
		MaxFileSizeMB: 10,
		Backends:      []string{"pdfcpu", "ledongthuc"},
	}}
	comps, err := BuildEngine(cfg, logger)
	if err != nil {
		t.Fatalf("BuildEngine: %v", err)
	}
	if comps.Engine == nil || comps.Selector == nil || len(comps.Backends.Ordered()) != 2 {
		t.Fatalf("components = %+v", comps)
	}
	if NewCompleter(cfg.LLM, logger) != nil {
		t.Fatal("completer without an api key should be nil")
	}

	cfg.Pipeline.Backends = []string{"tesseract"}
	if _, err := BuildEngine(cfg, logger); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("unknown backend error = %v", err)
	}
}
