package extract

import (
	"context"
	"errors"
)

var (
	// ErrCorrupt is returned when a PDF container cannot be parsed.
	ErrCorrupt = errors.New("corrupt pdf")
	// ErrEncrypted is returned by backends asked to read a locked document.
	ErrEncrypted = errors.New("pdf is password-protected")
	// ErrPageOutOfRange is returned by PageText for pages the document does not have.
	ErrPageOutOfRange = errors.New("page out of range")
)

// Backend is one interchangeable text-extraction implementation, selected by Name.
type Backend interface {
	Name() string
	// ExtractText reads at most maxPages pages. pages[i] holds the text of page i+1;
	// text is the pages joined with newlines.
	ExtractText(ctx context.Context, path string, maxPages int) (text string, pages []string, err error)
}

// Inspector opens PDF containers for structural checks.
type Inspector interface {
	Open(ctx context.Context, path string) (Document, error)
}

// Document is an opened PDF. Locked documents report IsEncrypted and zero pages.
type Document interface {
	PageCount() int
	IsEncrypted() bool
	PageText(n int) (string, error)
	Metadata() Metadata
	Close() error
}

// Metadata is the document information dictionary.
type Metadata struct {
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Producer string `json:"producer,omitempty"`
}
