package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

const NameLedongthuc = "ledongthuc"

// LedongthucBackend reads page text with github.com/ledongthuc/pdf.
type LedongthucBackend struct {
	logger *slog.Logger
}

func NewLedongthucBackend(logger *slog.Logger) *LedongthucBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedongthucBackend{logger: logger}
}

func (b *LedongthucBackend) Name() string { return NameLedongthuc }

func (b *LedongthucBackend) ExtractText(ctx context.Context, path string, maxPages int) (text string, pages []string, err error) {
	// The reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			text, pages = "", nil
			err = fmt.Errorf("ledongthuc: %w: %v", ErrCorrupt, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("ledongthuc open: %w", err)
	}
	defer func() { _ = f.Close() }()

	n := reader.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		txt, err := page.GetPlainText(nil)
		if err != nil {
			b.logger.Debug("extract.ledongthuc.page_failed", "path", path, "page", i, "error", err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, txt)
	}
	return strings.Join(pages, "\n"), pages, nil
}
