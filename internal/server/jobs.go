package server

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/registry"
)

type uploadResponse struct {
	JobID      string              `json:"job_id"`
	Status     constants.JobStatus `json:"status"`
	Filename   string              `json:"filename"`
	FileSizeMB float64             `json:"file_size_mb"`
	Message    string              `json:"message"`
}

type statusResponse struct {
	JobID           string              `json:"job_id"`
	Status          constants.JobStatus `json:"status"`
	Filename        string              `json:"filename"`
	Stage           constants.Stage     `json:"stage,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	ResultAvailable bool                `json:"result_available"`
	Error           string              `json:"error,omitempty"`
}

func toStatus(j registry.Job) statusResponse {
	return statusResponse{
		JobID:           j.ID,
		Status:          j.Status,
		Filename:        j.Filename,
		Stage:           j.Stage,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		ResultAvailable: j.Status.Done() && j.Result != nil,
		Error:           j.Error,
	}
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(a.cfg.MaxUploadMB) * 1024 * 1024
	// room for the multipart envelope around the file
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+64*1024)

	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %dMB", a.cfg.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name := filepath.Base(strings.TrimSpace(hdr.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "file name is required")
		return
	}
	if !constants.IsPDFPath(name) {
		writeError(w, http.StatusBadRequest, "only PDF files are accepted")
		return
	}
	if hdr.Size > maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %dMB", a.cfg.MaxUploadMB))
		return
	}

	head := make([]byte, len(constants.PDFMagic))
	if _, err := io.ReadFull(file, head); err != nil || string(head) != constants.PDFMagic {
		writeError(w, http.StatusBadRequest, "file is not a valid PDF")
		return
	}

	path, size, err := a.saveUpload(name, head, file)
	if err != nil {
		a.writeAppError(w, r, common.WrapError(err, "save upload"))
		return
	}

	job, err := a.jobs.Submit(r.Context(), path, name, true)
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, registry.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		a.writeAppError(w, r, err)
		return
	}

	a.logger.Info("http.upload.accepted", "job_id", job.ID, "file", name, "size", size)
	writeJSON(w, http.StatusAccepted, uploadResponse{
		JobID:      job.ID,
		Status:     job.Status,
		Filename:   name,
		FileSizeMB: float64(size*100/(1024*1024)) / 100,
		Message:    "file uploaded, processing started",
	})
}

// saveUpload writes the upload to the upload dir as upload_<hex>_<name>.
func (a *API) saveUpload(name string, head []byte, rest io.Reader) (string, int64, error) {
	dir := a.cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}
	var rnd [8]byte
	if _, err := rand.Read(rnd[:]); err != nil {
		return "", 0, err
	}
	path := filepath.Join(dir, "upload_"+hex.EncodeToString(rnd[:])+"_"+name)
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(out, io.MultiReader(bytes.NewReader(head), rest))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return path, n, nil
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := a.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, toStatus(job))
}

func (a *API) handleResult(w http.ResponseWriter, r *http.Request) {
	job, ok := a.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !job.Status.Done() || job.Result == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s; results are available once it finishes", job.Status))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		JobID  string              `json:"job_id"`
		Status constants.JobStatus `json:"status"`
		Result any                 `json:"result"`
	}{job.ID, job.Status, job.Result})
}

func (a *API) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	all := a.jobs.List()
	total := len(all)
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]statusResponse, 0, len(all))
	for _, j := range all {
		out = append(out, toStatus(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_jobs": total, "jobs": out})
}

func (a *API) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := a.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err := a.jobs.Delete(id); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     fmt.Sprintf("job %s deleted", id),
		"deleted_job": toStatus(job),
	})
}
