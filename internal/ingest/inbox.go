package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/registry"
)

// Submitter accepts documents for processing.
type Submitter interface {
	Submit(ctx context.Context, path, filename string, owned bool) (registry.Job, error)
}

// Inbox feeds PDFs found by the watcher into a Submitter. Every path is submitted
// at most once, and so is every distinct file content.
type Inbox struct {
	submitter Submitter
	logger    *slog.Logger

	mu     sync.Mutex
	paths  map[string]struct{}
	hashes map[string]string
}

func NewInbox(submitter Submitter, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		submitter: submitter,
		logger:    logger,
		paths:     map[string]struct{}{},
		hashes:    map[string]string{},
	}
}

// Run starts a watcher with cfg and submits what it finds until ctx ends.
func (in *Inbox) Run(ctx context.Context, cfg WatchConfig) error {
	events, errs, err := StartWatcher(ctx, cfg, in.logger)
	if err != nil {
		return err
	}
	for {
		select {
		case p, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := in.Offer(ctx, p); err != nil {
				in.logger.Warn("ingest.inbox.skipped", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if ok && err != nil {
				in.logger.Warn("ingest.inbox.watch_error", "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Offer submits path unless it, or a file with identical content, was seen before.
// It reports whether a job was created.
func (in *Inbox) Offer(ctx context.Context, path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}

	in.mu.Lock()
	_, seen := in.paths[abs]
	in.mu.Unlock()
	if seen {
		return false, nil
	}

	sum, err := fileDigest(abs)
	if err != nil {
		return false, err
	}

	in.mu.Lock()
	if _, seen := in.paths[abs]; seen {
		in.mu.Unlock()
		return false, nil
	}
	if prev, dup := in.hashes[sum]; dup {
		in.paths[abs] = struct{}{}
		in.mu.Unlock()
		in.logger.Info("ingest.inbox.duplicate", "path", abs, "same_as", prev)
		return false, nil
	}
	in.paths[abs] = struct{}{}
	in.hashes[sum] = abs
	in.mu.Unlock()

	job, err := in.submitter.Submit(ctx, abs, filepath.Base(abs), false)
	if err != nil {
		// allow a later event to retry
		in.mu.Lock()
		delete(in.paths, abs)
		delete(in.hashes, sum)
		in.mu.Unlock()
		return false, err
	}
	in.logger.Info("ingest.inbox.submitted", "path", abs, "job_id", job.ID)
	return true, nil
}

// fileDigest hashes a PDF. Files that do not start with the PDF header are refused.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, len(constants.PDFMagic))
	if _, err := io.ReadFull(f, head); err != nil || string(head) != constants.PDFMagic {
		return "", fmt.Errorf("%s is not a PDF", filepath.Base(path))
	}
	h := sha256.New()
	h.Write(head)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
