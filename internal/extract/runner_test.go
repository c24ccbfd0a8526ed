package extract

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestExecRunnerLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, _, err := execRunner{}.Run(context.Background(), "invoice-pipeline-no-such-binary", logger, "-v")
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
	out := buf.String()
	if !strings.Contains(out, "msg=extract.exec.start") || !strings.Contains(out, "msg=extract.exec.failed") {
		t.Fatalf("log output = %q", out)
	}
	if !strings.Contains(out, "elapsed_ms=") {
		t.Errorf("missing elapsed_ms in %q", out)
	}
}
