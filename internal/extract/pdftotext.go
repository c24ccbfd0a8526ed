package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

const NamePdftotext = "pdftotext"

// PdftotextBackend shells out to poppler's pdftotext.
type PdftotextBackend struct {
	bin    string
	runner Runner
	logger *slog.Logger
}

func NewPdftotextBackend(bin string, runner Runner, logger *slog.Logger) *PdftotextBackend {
	if bin == "" {
		bin = "pdftotext"
	}
	if runner == nil {
		runner = execRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PdftotextBackend{bin: bin, runner: runner, logger: logger}
}

func (b *PdftotextBackend) Name() string { return NamePdftotext }

func (b *PdftotextBackend) ExtractText(ctx context.Context, path string, maxPages int) (string, []string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix -f 1 -l N <path> -
	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix", "-f", "1"}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	args = append(args, path, "-")

	out, errb, err := b.runner.Run(ctx, b.bin, b.logger, args...)
	if err != nil {
		msg := strings.TrimSpace(string(errb))
		if msg == "" {
			return "", nil, fmt.Errorf("pdftotext: %w", err)
		}
		return "", nil, fmt.Errorf("pdftotext: %w: %s", err, truncate(msg, 512))
	}

	// A form feed separates pages; the output ends with one.
	pages := strings.Split(strings.TrimSuffix(string(out), "\f"), "\f")
	if maxPages > 0 && len(pages) > maxPages {
		pages = pages[:maxPages]
	}
	return strings.Join(pages, "\n"), pages, nil
}
