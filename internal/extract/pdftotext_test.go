package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type fakeRunner struct {
	stdout, stderr []byte
	err            error
	gotName        string
	gotArgs        []string
}

func (f *fakeRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.gotName = name
	f.gotArgs = args
	return f.stdout, f.stderr, f.err
}

func TestPdftotextSplitsPagesOnFormFeed(t *testing.T) {
	r := &fakeRunner{stdout: []byte("page one\fpage two\fpage three\f")}
	b := NewPdftotextBackend("/usr/bin/pdftotext", r, quietLogger())

	text, pages, err := b.ExtractText(context.Background(), "/tmp/in.pdf", 2)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if r.gotName != "/usr/bin/pdftotext" {
		t.Errorf("binary = %q", r.gotName)
	}
	args := strings.Join(r.gotArgs, " ")
	if !strings.Contains(args, "-f 1 -l 2") || !strings.HasSuffix(args, "/tmp/in.pdf -") {
		t.Errorf("unexpected args: %s", args)
	}
	if len(pages) != 2 || pages[0] != "page one" || pages[1] != "page two" {
		t.Fatalf("pages = %q", pages)
	}
	if text != "page one\npage two" {
		t.Errorf("text = %q", text)
	}
}

func TestPdftotextReportsStderr(t *testing.T) {
	r := &fakeRunner{stderr: []byte("Syntax Error: Couldn't find trailer dictionary"), err: errors.New("exit status 1")}
	b := NewPdftotextBackend("", r, quietLogger())

	_, _, err := b.ExtractText(context.Background(), "broken.pdf", 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "trailer dictionary") {
		t.Errorf("error %q should carry stderr", err)
	}
	if r.gotName != "pdftotext" {
		t.Errorf("default binary = %q, want pdftotext", r.gotName)
	}
}
