package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const NamePDFCPU = "pdfcpu"

// PDFCPUInspector validates PDF containers with pdfcpu.
type PDFCPUInspector struct {
	logger *slog.Logger
}

func NewPDFCPUInspector(logger *slog.Logger) *PDFCPUInspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFCPUInspector{logger: logger}
}

func (i *PDFCPUInspector) Open(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := openPDFCPU(path)
	if errors.Is(err, ErrEncrypted) {
		i.logger.Debug("extract.inspect.locked", "path", path)
		return &pdfcpuDocument{locked: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type pdfcpuDocument struct {
	f      *os.File
	ctx    *model.Context
	locked bool
}

func openPDFCPU(path string) (*pdfcpuDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		_ = f.Close()
		if isPasswordError(err) {
			return nil, ErrEncrypted
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &pdfcpuDocument{f: f, ctx: pctx}, nil
}

func isPasswordError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}

func (d *pdfcpuDocument) PageCount() int {
	if d.locked || d.ctx == nil {
		return 0
	}
	return d.ctx.PageCount
}

func (d *pdfcpuDocument) IsEncrypted() bool { return d.locked }

func (d *pdfcpuDocument) PageText(n int) (string, error) {
	if n < 1 || n > d.PageCount() {
		return "", fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, n, d.PageCount())
	}
	r, err := pdfcpu.ExtractPageContent(d.ctx, n)
	if err != nil {
		return "", fmt.Errorf("page %d content: %w", n, err)
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("page %d content: %w", n, err)
	}
	return textFromContent(data), nil
}

func (d *pdfcpuDocument) Metadata() Metadata {
	if d.ctx == nil {
		return Metadata{}
	}
	return Metadata{
		Title:    d.ctx.Title,
		Author:   d.ctx.Author,
		Creator:  d.ctx.Creator,
		Producer: d.ctx.Producer,
	}
}

func (d *pdfcpuDocument) Close() error {
	if d.f == nil {
		return nil
	}
	return d.f.Close()
}

// PDFCPUBackend extracts text by interpreting page content streams parsed by pdfcpu.
type PDFCPUBackend struct {
	logger *slog.Logger
}

func NewPDFCPUBackend(logger *slog.Logger) *PDFCPUBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFCPUBackend{logger: logger}
}

func (b *PDFCPUBackend) Name() string { return NamePDFCPU }

func (b *PDFCPUBackend) ExtractText(ctx context.Context, path string, maxPages int) (string, []string, error) {
	doc, err := openPDFCPU(path)
	if err != nil {
		return "", nil, fmt.Errorf("pdfcpu open: %w", err)
	}
	defer func() { _ = doc.Close() }()

	n := doc.PageCount()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		txt, err := doc.PageText(i)
		if err != nil {
			b.logger.Debug("extract.pdfcpu.page_failed", "path", path, "page", i, "error", err)
			txt = ""
		}
		pages = append(pages, txt)
	}
	return strings.Join(pages, "\n"), pages, nil
}
