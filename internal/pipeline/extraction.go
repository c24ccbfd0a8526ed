package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/extract"
)

const (
	DefaultMaxPages     = 3
	DefaultMinPageChars = 20
)

// ExtractionStage reads the text with the backend chosen during ingestion.
type ExtractionStage struct {
	Backends     *extract.Backends
	MaxPages     int
	MinPageChars int
	Logger       *slog.Logger
}

func NewExtractionStage(backends *extract.Backends, maxPages, minPageChars int, logger *slog.Logger) *ExtractionStage {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if minPageChars <= 0 {
		minPageChars = DefaultMinPageChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionStage{Backends: backends, MaxPages: maxPages, MinPageChars: minPageChars, Logger: logger}
}

// PageMarker is the boundary written before the text of page n (1-based).
func PageMarker(n int) string {
	return fmt.Sprintf("\n--- PÁGINA %d ---\n", n)
}

func (s *ExtractionStage) Run(ctx context.Context, st *State) {
	method := st.debugString("extraction_method")
	backend, ok := s.Backends.Lookup(method)
	if !ok {
		st.Fail(common.KindExtraction, fmt.Sprintf("invalid extraction method: %q", method), nil)
		return
	}

	pages, err := s.read(ctx, backend, st.Document.Path)
	if err != nil {
		st.Fail(common.KindExtraction, "text extraction failed", err)
		return
	}
	if len(pages) > s.MaxPages {
		pages = pages[:s.MaxPages]
	}

	var b strings.Builder
	lengths := make(map[int]int, len(pages))
	kept := 0
	for i, page := range pages {
		text := strings.TrimSpace(page)
		n := utf8.RuneCountInString(text)
		lengths[i+1] = n
		if n <= s.MinPageChars {
			continue
		}
		b.WriteString(PageMarker(i + 1))
		b.WriteString(text)
		b.WriteByte('\n')
		kept++
	}

	st.SetDebug("text_extraction_method", method)
	st.SetDebug("max_pages_processed", len(pages))
	st.SetDebug("page_lengths", lengths)
	st.SetDebug("pages_with_text", kept)

	raw := b.String()
	if strings.TrimSpace(raw) == "" {
		st.SetDebug("extraction_successful", false)
		st.Fail(common.KindExtraction, "PDF contains no extractable text", nil)
		return
	}

	st.RawText = raw
	total := utf8.RuneCountInString(raw)
	st.SetDebug("total_characters", total)
	st.SetDebug("extraction_successful", true)
	s.Logger.Info("pipeline.extraction.ok",
		"file", st.Document.Filename,
		"method", method,
		"pages_read", len(pages),
		"pages_with_text", kept,
		"chars", total,
	)
	st.Info("extracted %d characters from %d pages with %s", total, kept, method)
}

func (s *ExtractionStage) read(ctx context.Context, backend extract.Backend, path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("%s panic: %v", backend.Name(), r)
		}
	}()
	_, pages, err = backend.ExtractText(ctx, path, s.MaxPages)
	return pages, err
}
