package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/extract"
)

// Selector decides which backend can read a document.
type Selector interface {
	Select(ctx context.Context, path string) (hasText bool, method string)
}

// IngestionStage validates that a document can be processed before any extraction work.
type IngestionStage struct {
	Inspector   extract.Inspector
	Selector    Selector
	MaxFileSize int64
	Logger      *slog.Logger
}

func NewIngestionStage(inspector extract.Inspector, selector Selector, maxFileSize int64, logger *slog.Logger) *IngestionStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionStage{Inspector: inspector, Selector: selector, MaxFileSize: maxFileSize, Logger: logger}
}

func (s *IngestionStage) Run(ctx context.Context, st *State) {
	defer func() {
		if st.Failed() {
			st.SetDebug("validation_status", "FAILED")
		} else {
			st.SetDebug("validation_status", "PASSED")
		}
	}()

	path := st.Document.Path
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			st.Fail(common.KindValidation, fmt.Sprintf("file not found: %s", st.Document.Filename), nil)
			return
		}
		st.Fail(common.KindValidation, "cannot access file", err)
		return
	}
	if info.IsDir() {
		st.Fail(common.KindValidation, fmt.Sprintf("file not found: %s is a directory", st.Document.Filename), nil)
		return
	}

	sizeMB := float64(info.Size()) / (1024 * 1024)
	st.SetDebug("file_size_mb", round2(sizeMB))
	if info.Size() == 0 {
		st.Fail(common.KindValidation, "empty PDF file", nil)
		return
	}
	if s.MaxFileSize > 0 && info.Size() > s.MaxFileSize {
		maxMB := float64(s.MaxFileSize) / (1024 * 1024)
		st.Fail(common.KindValidation, fmt.Sprintf("file exceeds maximum size (%.1fMB > %gMB)", sizeMB, maxMB), nil)
		return
	}

	doc, err := s.Inspector.Open(ctx, path)
	if err != nil {
		st.Fail(common.KindValidation, "corrupt PDF", err)
		return
	}
	defer func() { _ = doc.Close() }()

	st.SetDebug("password_protected", doc.IsEncrypted())
	if doc.IsEncrypted() {
		st.Fail(common.KindValidation, "password-protected PDF is not supported", nil)
		return
	}

	pages := doc.PageCount()
	st.SetDebug("page_count", pages)
	if pages <= 0 {
		st.Fail(common.KindValidation, "PDF has no valid pages", nil)
		return
	}
	if _, err := doc.PageText(1); err != nil {
		st.Fail(common.KindValidation, "corrupt PDF: first page is unreadable", err)
		return
	}

	meta := doc.Metadata()
	st.SetDebug("pdf_title", meta.Title)
	st.SetDebug("pdf_author", meta.Author)
	st.SetDebug("pdf_creator", meta.Creator)
	st.SetDebug("pdf_producer", meta.Producer)

	hasText, method := s.Selector.Select(ctx, path)
	if err := ctx.Err(); err != nil {
		st.Fail(common.KindInternal, "ingestion interrupted", err)
		return
	}
	st.SetDebug("has_extractable_text", hasText)
	st.SetDebug("extraction_method", method)
	if !hasText {
		st.Fail(common.KindValidation, "PDF has no extractable text (possibly scanned)", nil)
		return
	}

	s.Logger.Info("pipeline.ingestion.ok",
		"file", st.Document.Filename,
		"pages", pages,
		"size_mb", round2(sizeMB),
		"method", method,
	)
	st.Info("document validated: %d pages, %.2fMB, extraction method %s", pages, sizeMB, method)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
