package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/repository"
)

const maxInvoiceBody = 1 << 20

// decodeInvoice reads an invoice posted as the same field mapping the pipeline produces.
// With an empty body and a job_id query parameter, the job's extracted invoice is used.
func (a *API) decodeInvoice(r *http.Request) (*entity.Invoice, string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInvoiceBody+1))
	if err != nil {
		return nil, "", common.NewAppError("VALIDATION_ERROR", "cannot read body", common.ErrInvalidInput)
	}
	if len(body) > maxInvoiceBody {
		return nil, "", common.NewAppError("VALIDATION_ERROR", "body too large", common.ErrInvalidInput)
	}

	source := r.URL.Query().Get("filename")
	if strings.TrimSpace(string(body)) == "" {
		jobID := r.URL.Query().Get("job_id")
		if jobID == "" {
			return nil, "", common.NewAppError("VALIDATION_ERROR", "invoice body or job_id is required", common.ErrInvalidInput)
		}
		job, ok := a.jobs.Get(jobID)
		if !ok {
			return nil, "", common.NewAppError("NOT_FOUND", "job not found", common.ErrNotFound)
		}
		if job.Result == nil || job.Result.Invoice == nil {
			return nil, "", common.NewAppError("CONFLICT", fmt.Sprintf("job is %s and has no invoice", job.Status), common.ErrConflict)
		}
		if source == "" {
			source = job.Filename
		}
		return job.Result.Invoice, source, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, "", common.NewAppError("VALIDATION_ERROR", "body must be a JSON object", common.ErrInvalidInput)
	}
	inv, warnings := entity.InvoiceFromFields(fields)
	for _, w := range warnings {
		a.logger.Debug("http.invoice.coerced", "warning", w)
	}
	return inv, source, nil
}

func (a *API) handleSaveInvoice(w http.ResponseWriter, r *http.Request) {
	if a.invoices == nil {
		writeError(w, http.StatusServiceUnavailable, "database is not available")
		return
	}
	inv, source, err := a.decodeInvoice(r)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	saved, err := a.invoices.Save(r.Context(), repository.SaveInvoiceRequest{
		Invoice:    inv,
		JobID:      r.URL.Query().Get("job_id"),
		SourceFile: source,
	})
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      saved.ID,
		"code":    saved.Code,
		"message": fmt.Sprintf("invoice #%d saved", saved.ID),
	})
}

func (a *API) handleInvoiceExcel(w http.ResponseWriter, r *http.Request) {
	if a.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not available")
		return
	}
	inv, source, err := a.decodeInvoice(r)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	data, err := a.exporter.InvoiceXLSX(inv, source)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeXLSX(w, fmt.Sprintf("factura_%s.xlsx", a.now().Format("20060102_150405")), data)
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	if a.invoices == nil {
		writeError(w, http.StatusServiceUnavailable, "database is not available")
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := a.invoices.List(r.Context(), limit, offset)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	if list == nil {
		list = []*entity.StoredInvoice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":    len(list),
		"invoices": list,
		"limit":    limit,
		"offset":   offset,
	})
}

func (a *API) invoiceID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewAppError("VALIDATION_ERROR", "invoice id must be a positive integer", common.ErrInvalidInput)
	}
	return id, nil
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	if a.invoices == nil {
		writeError(w, http.StatusServiceUnavailable, "database is not available")
		return
	}
	id, err := a.invoiceID(r)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	inv, err := a.invoices.Get(r.Context(), id)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *API) handleStoredInvoiceExcel(w http.ResponseWriter, r *http.Request) {
	if a.exporter == nil || a.invoices == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not available")
		return
	}
	id, err := a.invoiceID(r)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	data, err := a.exporter.ExportOne(r.Context(), id)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeXLSX(w, fmt.Sprintf("factura_%d.xlsx", id), data)
}

func (a *API) handleExportInvoices(w http.ResponseWriter, r *http.Request) {
	if a.exporter == nil || a.invoices == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not available")
		return
	}
	data, err := a.exporter.ExportAll(r.Context())
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeXLSX(w, fmt.Sprintf("facturas_%s.xlsx", a.now().Format("20060102_150405")), data)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if a.invoices == nil {
		writeError(w, http.StatusServiceUnavailable, "database is not available")
		return
	}
	st, err := a.invoices.Stats(r.Context())
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
