package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SaveInvoiceRequest wraps parameters for persisting an invoice.
type SaveInvoiceRequest struct {
	Invoice    *entity.Invoice
	JobID      string
	SourceFile string
}

type InvoiceRepository interface {
	Save(ctx context.Context, req SaveInvoiceRequest) (*entity.StoredInvoice, error)
	Get(ctx context.Context, id int64) (*entity.StoredInvoice, error)
	List(ctx context.Context, limit, offset int) ([]*entity.StoredInvoice, error)
	Stats(ctx context.Context) (entity.InvoiceStats, error)
}

type invoiceRepository struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

func NewInvoiceRepository(db *DB, logger *slog.Logger) InvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &invoiceRepository{db: db, logger: logger, now: time.Now}
}

// NewInvoiceCode returns a code such as FACT-1A2B3C4D.
func NewInvoiceCode() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "FACT-" + strings.ToUpper(hex[:8])
}

// Save inserts the invoice and its items in one transaction. Items without a
// description are skipped.
func (r *invoiceRepository) Save(ctx context.Context, req SaveInvoiceRequest) (*entity.StoredInvoice, error) {
	inv := req.Invoice
	if inv == nil {
		return nil, common.NewAppError("VALIDATION_ERROR", "invoice is required", common.ErrInvalidInput)
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("marshal invoice: %w", err)
	}

	stored := &entity.StoredInvoice{
		Code:       NewInvoiceCode(),
		JobID:      req.JobID,
		SourceFile: req.SourceFile,
		CreatedAt:  r.now().UTC(),
		Invoice:    *inv,
	}
	stored.Items = make([]entity.InvoiceItem, 0, len(inv.Items))
	for _, it := range inv.Items {
		if strings.TrimSpace(it.Description) == "" {
			continue
		}
		stored.Items = append(stored.Items, it)
	}

	var detPct, detAmt *float64
	if inv.Detraction != nil {
		detPct, detAmt = inv.Detraction.Percentage, inv.Detraction.Amount
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, r.db.rebind(`
		INSERT INTO invoices (
			codigo_factura, job_id, archivo_origen,
			codigo_cliente, razon_social_cliente, direccion_cliente, distrito,
			forma_pago, moneda, subtotal, igv, total,
			detraccion_porcentaje, detraccion_monto, estado, datos_raw, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'procesada', ?, ?)
		RETURNING id`),
		stored.Code, nullString(req.JobID), nullString(req.SourceFile),
		nullString(inv.ClientCode), inv.ClientName, nullString(inv.ClientAddress), nullString(inv.District),
		nullString(inv.PaymentMethod), nullString(inv.Currency), nullFloat(inv.Subtotal), nullFloat(inv.IGV), nullFloat(inv.Total),
		nullFloat(detPct), nullFloat(detAmt), string(raw), stored.CreatedAt.Format(timeLayout),
	).Scan(&stored.ID)
	if err != nil {
		r.logger.Error("repository.invoice.save_failed", "error", err)
		return nil, fmt.Errorf("%w: insert invoice: %v", common.ErrDatabase, err)
	}

	itemSQL := r.db.rebind(`
		INSERT INTO invoice_items (invoice_id, line_no, descripcion, cantidad, precio_unitario, subtotal)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for i, it := range stored.Items {
		if _, err := tx.ExecContext(ctx, itemSQL,
			stored.ID, i+1, it.Description, nullFloat(it.Quantity), nullFloat(it.UnitPrice), nullFloat(it.Subtotal),
		); err != nil {
			r.logger.Error("repository.invoice.save_failed", "invoice_id", stored.ID, "line", i+1, "error", err)
			return nil, fmt.Errorf("%w: insert item %d: %v", common.ErrDatabase, i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	if len(stored.Items) == 0 {
		r.logger.Warn("repository.invoice.no_items", "invoice_id", stored.ID, "code", stored.Code)
	}
	r.logger.Info("repository.invoice.saved", "invoice_id", stored.ID, "code", stored.Code, "items", len(stored.Items))
	return stored, nil
}

const selectInvoice = `
	SELECT id, codigo_factura, job_id, archivo_origen,
		codigo_cliente, razon_social_cliente, direccion_cliente, distrito,
		forma_pago, moneda, subtotal, igv, total,
		detraccion_porcentaje, detraccion_monto, datos_raw, created_at
	FROM invoices`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*entity.StoredInvoice, error) {
	var (
		s                                         entity.StoredInvoice
		jobID, source, code, addr, dist, pay, cur sql.NullString
		raw                                       sql.NullString
		sub, igv, total, detPct, detAmt           sql.NullFloat64
		created                                   string
	)
	if err := row.Scan(
		&s.ID, &s.Code, &jobID, &source,
		&code, &s.ClientName, &addr, &dist,
		&pay, &cur, &sub, &igv, &total,
		&detPct, &detAmt, &raw, &created,
	); err != nil {
		return nil, err
	}
	s.JobID, s.SourceFile = jobID.String, source.String
	s.ClientCode, s.ClientAddress, s.District = code.String, addr.String, dist.String
	s.PaymentMethod, s.Currency = pay.String, cur.String
	s.Subtotal, s.IGV, s.Total = floatPtr(sub), floatPtr(igv), floatPtr(total)
	if detPct.Valid || detAmt.Valid {
		s.Detraction = &entity.Detraction{Percentage: floatPtr(detPct), Amount: floatPtr(detAmt)}
	}
	if raw.Valid && raw.String != "" {
		var orig entity.Invoice
		if err := json.Unmarshal([]byte(raw.String), &orig); err == nil {
			s.Extra = orig.Extra
		}
	}
	if t, err := time.Parse(timeLayout, created); err == nil {
		s.CreatedAt = t
	}
	s.Items = []entity.InvoiceItem{}
	return &s, nil
}

func (r *invoiceRepository) Get(ctx context.Context, id int64) (*entity.StoredInvoice, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(selectInvoice+` WHERE id = ?`), id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("invoice %d not found", id), common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get invoice: %v", common.ErrDatabase, err)
	}
	if err := r.loadItems(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// List returns invoices newest first. A non-positive limit defaults to 50.
func (r *invoiceRepository) List(ctx context.Context, limit, offset int) ([]*entity.StoredInvoice, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, r.db.rebind(selectInvoice+` ORDER BY id DESC LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list invoices: %v", common.ErrDatabase, err)
	}
	var out []*entity.StoredInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan invoice: %v", common.ErrDatabase, err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%w: list invoices: %v", common.ErrDatabase, err)
	}
	rows.Close()

	for _, inv := range out {
		if err := r.loadItems(ctx, inv); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *invoiceRepository) loadItems(ctx context.Context, inv *entity.StoredInvoice) error {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(`
		SELECT descripcion, cantidad, precio_unitario, subtotal
		FROM invoice_items WHERE invoice_id = ? ORDER BY line_no`), inv.ID)
	if err != nil {
		return fmt.Errorf("%w: load items: %v", common.ErrDatabase, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it             entity.InvoiceItem
			qty, unit, sub sql.NullFloat64
		)
		if err := rows.Scan(&it.Description, &qty, &unit, &sub); err != nil {
			return fmt.Errorf("%w: scan item: %v", common.ErrDatabase, err)
		}
		it.Quantity, it.UnitPrice, it.Subtotal = floatPtr(qty), floatPtr(unit), floatPtr(sub)
		inv.Items = append(inv.Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: load items: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *invoiceRepository) Stats(ctx context.Context) (entity.InvoiceStats, error) {
	var (
		st       entity.InvoiceStats
		sum, avg sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(total), AVG(total), COUNT(DISTINCT codigo_cliente)
		FROM invoices`).Scan(&st.Count, &sum, &avg, &st.DistinctClients)
	if err != nil {
		return st, fmt.Errorf("%w: stats: %v", common.ErrDatabase, err)
	}
	st.TotalAmount = sum.Float64
	st.AverageAmount = avg.Float64
	return st, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
