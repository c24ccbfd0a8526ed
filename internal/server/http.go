package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/export"
	"github.com/joseph-ayodele/invoice-pipeline/internal/registry"
	"github.com/joseph-ayodele/invoice-pipeline/internal/repository"
)

// Jobs is the part of the registry the HTTP layer uses.
type Jobs interface {
	Submit(ctx context.Context, path, filename string, owned bool) (registry.Job, error)
	Get(id string) (registry.Job, bool)
	List() []registry.Job
	Delete(id string) error
	Counts() map[constants.JobStatus]int
}

// Pinger reports database health.
type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

type Config struct {
	UploadDir   string
	MaxUploadMB int
	Version     string
}

// API serves the job and invoice endpoints. Invoices, Exporter and DB may be nil;
// the endpoints that need them then answer 503.
type API struct {
	cfg      Config
	jobs     Jobs
	invoices repository.InvoiceRepository
	exporter *export.Service
	db       Pinger
	logger   *slog.Logger
	now      func() time.Time
}

func NewAPI(cfg Config, jobs Jobs, invoices repository.InvoiceRepository, exporter *export.Service, db Pinger, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 10
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &API{
		cfg:      cfg,
		jobs:     jobs,
		invoices: invoices,
		exporter: exporter,
		db:       db,
		logger:   logger,
		now:      time.Now,
	}
}

// Router builds the chi router with all routes mounted.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestContext)
	r.Use(middleware.Recoverer)

	r.Post("/upload", a.handleUpload)
	r.Get("/status/{id}", a.handleStatus)
	r.Get("/result/{id}", a.handleResult)
	r.Get("/jobs", a.handleListJobs)
	r.Delete("/jobs/{id}", a.handleDeleteJob)

	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", a.handleSaveInvoice)
		r.Get("/", a.handleListInvoices)
		r.Post("/excel", a.handleInvoiceExcel)
		r.Get("/export", a.handleExportInvoices)
		r.Get("/{id}", a.handleGetInvoice)
		r.Get("/{id}/excel", a.handleStoredInvoiceExcel)
	})
	r.Get("/stats", a.handleStats)
	r.Get("/health", a.handleHealth)
	return r
}

// requestContext copies chi's request id into the context key the rest of the code reads,
// and logs each request once it finishes.
func (a *API) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		ctx := common.WithRequestID(r.Context(), reqID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		a.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", reqID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeAppError maps common errors onto HTTP statuses.
func (a *API) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, common.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	body := errorBody{Error: err.Error()}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		body.Error, body.Code = appErr.Message, appErr.Code
	}
	if status >= 500 {
		a.logger.Error("http.error",
			"path", r.URL.Path,
			"request_id", common.RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, status, body)
}

func writeXLSX(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
