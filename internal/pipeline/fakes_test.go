package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/joseph-ayodele/invoice-pipeline/internal/extract"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDoc struct {
	pages     []string
	encrypted bool
	pageErr   error
}

func (d *fakeDoc) PageCount() int    { return len(d.pages) }
func (d *fakeDoc) IsEncrypted() bool { return d.encrypted }
func (d *fakeDoc) PageText(n int) (string, error) {
	if d.pageErr != nil {
		return "", d.pageErr
	}
	if n < 1 || n > len(d.pages) {
		return "", extract.ErrPageOutOfRange
	}
	return d.pages[n-1], nil
}
func (d *fakeDoc) Metadata() extract.Metadata { return extract.Metadata{Title: "Factura", Producer: "test"} }
func (d *fakeDoc) Close() error               { return nil }

type fakeInspector struct {
	doc *fakeDoc
	err error
}

func (i fakeInspector) Open(context.Context, string) (extract.Document, error) {
	if i.err != nil {
		return nil, i.err
	}
	return i.doc, nil
}

type fakeBackend struct {
	name  string
	pages []string
	err   error
	panic bool
	calls *int
}

func (b fakeBackend) Name() string { return b.name }

func (b fakeBackend) ExtractText(_ context.Context, _ string, maxPages int) (string, []string, error) {
	if b.calls != nil {
		*b.calls++
	}
	if b.panic {
		panic("backend exploded")
	}
	if b.err != nil {
		return "", nil, b.err
	}
	pages := b.pages
	if maxPages > 0 && len(pages) > maxPages {
		pages = pages[:maxPages]
	}
	text := ""
	for _, p := range pages {
		text += p + "\f"
	}
	return text, pages, nil
}

type fakeCompleter struct {
	out   llm.Completion
	err   error
	block bool
	calls int
}

func (c *fakeCompleter) Complete(ctx context.Context, _, user string) (llm.Completion, error) {
	c.calls++
	if c.block {
		<-ctx.Done()
		return llm.Completion{}, ctx.Err()
	}
	return c.out, c.err
}

var errBoom = errors.New("boom")

// writeFile puts size bytes on disk so the size and existence checks see a real file.
func writeFile(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := make([]byte, size)
	copy(data, "%PDF-1.4\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
