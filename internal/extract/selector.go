package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
)

// MethodNone is reported when no backend yields usable text.
const MethodNone = "none"

// DefaultMinProbeChars is the alphanumeric count a first page must exceed.
const DefaultMinProbeChars = 10

// Selector probes backends in preference order and picks the first that reads
// meaningful text from page 1.
type Selector struct {
	backends []Backend
	minChars int
	logger   *slog.Logger
}

func NewSelector(backends []Backend, minChars int, logger *slog.Logger) *Selector {
	if minChars <= 0 {
		minChars = DefaultMinProbeChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{backends: backends, minChars: minChars, logger: logger}
}

// Select returns (true, name) for the first accepted backend, or (false, MethodNone).
// Backends that fail or panic are rejected and the search continues.
func (s *Selector) Select(ctx context.Context, path string) (bool, string) {
	for _, b := range s.backends {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		count, err := s.probe(ctx, b, path)
		if err != nil {
			s.logger.Info("extract.select.rejected",
				"path", path, "backend", b.Name(), "error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			continue
		}
		if count > s.minChars {
			s.logger.Info("extract.select.ok",
				"path", path, "backend", b.Name(), "alnum", count,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return true, b.Name()
		}
		s.logger.Info("extract.select.rejected",
			"path", path, "backend", b.Name(), "alnum", count, "min", s.minChars,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	return false, MethodNone
}

func (s *Selector) probe(ctx context.Context, b Backend, path string) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			count, err = 0, fmt.Errorf("backend panic: %v", r)
		}
	}()
	_, pages, err := b.ExtractText(ctx, path, 1)
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, nil
	}
	return CountAlnum(pages[0]), nil
}

// CountAlnum counts letters and digits, ignoring whitespace and punctuation.
func CountAlnum(s string) int {
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
