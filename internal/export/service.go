package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/repository"
)

const (
	InvoiceSheet  = "Factura"
	InvoicesSheet = "Facturas"

	// ContentType is the media type of the workbooks produced here.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	exportBatch = 500
)

// Service renders invoices as XLSX workbooks.
type Service struct {
	invoices repository.InvoiceRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(invoices repository.InvoiceRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, logger: logger, now: time.Now}
}

type styles struct {
	title, header, label, money, number int
}

func newStyles(f *excelize.File, currency string) (styles, error) {
	var s styles
	var err error
	if s.title, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"1F4E78"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}); err != nil {
		return s, err
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"366092"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, err
	}
	if s.label, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, err
	}
	moneyFmt := "#,##0.00"
	if currency != "" {
		moneyFmt = fmt.Sprintf(`"%s" #,##0.00`, currency)
	}
	if s.money, err = f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt}); err != nil {
		return s, err
	}
	plain := "#,##0.00"
	if s.number, err = f.NewStyle(&excelize.Style{CustomNumFmt: &plain}); err != nil {
		return s, err
	}
	return s, nil
}

// sheetWriter hides cell-name bookkeeping; the first error sticks.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) set(cell string, v any) {
	if w.err == nil {
		w.err = w.f.SetCellValue(w.sheet, cell, v)
	}
}

func (w *sheetWriter) setAt(col, row int, v any) {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		if w.err == nil {
			w.err = err
		}
		return
	}
	w.set(cell, v)
}

func (w *sheetWriter) style(from, to string, id int) {
	if w.err == nil {
		w.err = w.f.SetCellStyle(w.sheet, from, to, id)
	}
}

func (w *sheetWriter) merge(from, to string) {
	if w.err == nil {
		w.err = w.f.MergeCell(w.sheet, from, to)
	}
}

func (w *sheetWriter) section(row int, title string, style int) {
	a, f := fmt.Sprintf("A%d", row), fmt.Sprintf("F%d", row)
	w.merge(a, f)
	w.set(a, title)
	w.style(a, f, style)
}

func newWorkbook(sheet string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func amount(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}

// InvoiceXLSX renders a single invoice: client block, items table, totals and,
// when present, the detraction.
func (s *Service) InvoiceXLSX(inv *entity.Invoice, sourceFile string) ([]byte, error) {
	start := time.Now()
	if inv == nil {
		return nil, fmt.Errorf("invoice is required")
	}
	f, err := newWorkbook(InvoiceSheet)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	currency := inv.Currency
	if currency == "" {
		currency = "PEN"
	}
	st, err := newStyles(f, currency)
	if err != nil {
		return nil, fmt.Errorf("xlsx styles: %w", err)
	}
	w := &sheetWriter{f: f, sheet: InvoiceSheet}

	row := 1
	w.section(row, "FACTURA - DATOS EXTRAÍDOS", st.title)
	row += 2
	if sourceFile != "" {
		w.set(fmt.Sprintf("A%d", row), "Archivo origen:")
		w.set(fmt.Sprintf("B%d", row), sourceFile)
		row++
	}
	w.set(fmt.Sprintf("A%d", row), "Fecha de generación:")
	w.set(fmt.Sprintf("B%d", row), s.now().Format("02/01/2006 15:04:05"))
	row += 2

	w.section(row, "DATOS DEL CLIENTE", st.header)
	row++
	for _, kv := range [][2]string{
		{"Código Cliente:", inv.ClientCode},
		{"Razón Social:", inv.ClientName},
		{"Dirección:", inv.ClientAddress},
		{"Distrito:", inv.District},
	} {
		w.set(fmt.Sprintf("A%d", row), kv[0])
		w.style(fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), st.label)
		w.set(fmt.Sprintf("B%d", row), orNA(kv[1]))
		row++
	}
	row++

	w.section(row, "DETALLE DE ITEMS", st.header)
	row++
	for i, h := range []string{"#", "Descripción", "Cantidad", "Precio Unitario", "Subtotal"} {
		w.setAt(i+1, row, h)
	}
	w.style(fmt.Sprintf("A%d", row), fmt.Sprintf("E%d", row), st.label)
	row++
	if len(inv.Items) == 0 {
		w.merge(fmt.Sprintf("A%d", row), fmt.Sprintf("E%d", row))
		w.set(fmt.Sprintf("A%d", row), "Sin items registrados")
		row++
	}
	for i, it := range inv.Items {
		w.setAt(1, row, i+1)
		w.setAt(2, row, it.Description)
		w.setAt(3, row, amount(it.Quantity))
		w.setAt(4, row, amount(it.UnitPrice))
		w.setAt(5, row, amount(it.Subtotal))
		w.style(fmt.Sprintf("D%d", row), fmt.Sprintf("E%d", row), st.number)
		row++
	}
	row++

	for _, kv := range []struct {
		label string
		value *float64
	}{
		{"Subtotal:", inv.Subtotal},
		{"IGV (18%):", inv.IGV},
		{"TOTAL:", inv.Total},
	} {
		w.set(fmt.Sprintf("D%d", row), kv.label)
		w.style(fmt.Sprintf("D%d", row), fmt.Sprintf("D%d", row), st.label)
		w.set(fmt.Sprintf("E%d", row), amount(kv.value))
		w.style(fmt.Sprintf("E%d", row), fmt.Sprintf("E%d", row), st.money)
		row++
	}
	row++

	if d := inv.Detraction; d != nil && (positive(d.Percentage) || positive(d.Amount)) {
		w.section(row, "DETRACCIÓN", st.header)
		row++
		pct := 0.0
		if d.Percentage != nil {
			pct = *d.Percentage
		}
		w.set(fmt.Sprintf("D%d", row), "Porcentaje:")
		w.set(fmt.Sprintf("E%d", row), fmt.Sprintf("%g%%", pct))
		row++
		w.set(fmt.Sprintf("D%d", row), "Monto Detracción:")
		w.set(fmt.Sprintf("E%d", row), amount(d.Amount))
		w.style(fmt.Sprintf("E%d", row), fmt.Sprintf("E%d", row), st.money)
		row++
	}
	row++

	w.set(fmt.Sprintf("A%d", row), "Forma de Pago:")
	w.set(fmt.Sprintf("B%d", row), orNA(inv.PaymentMethod))
	row++
	w.set(fmt.Sprintf("A%d", row), "Moneda:")
	w.set(fmt.Sprintf("B%d", row), currency)

	if w.err != nil {
		return nil, fmt.Errorf("xlsx render: %w", w.err)
	}
	_ = f.SetColWidth(InvoiceSheet, "A", "A", 20)
	_ = f.SetColWidth(InvoiceSheet, "B", "B", 40)
	_ = f.SetColWidth(InvoiceSheet, "C", "E", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"sheet", InvoiceSheet,
		"items", len(inv.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

var listHeaders = []string{
	"ID", "Código", "Fecha", "RUC/DNI", "Razón Social", "Distrito",
	"Forma de Pago", "Moneda", "Subtotal", "IGV", "Total", "Items", "Archivo",
}

// InvoicesXLSX renders one row per stored invoice.
func (s *Service) InvoicesXLSX(list []*entity.StoredInvoice) ([]byte, error) {
	start := time.Now()
	f, err := newWorkbook(InvoicesSheet)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := newStyles(f, "")
	if err != nil {
		return nil, fmt.Errorf("xlsx styles: %w", err)
	}
	w := &sheetWriter{f: f, sheet: InvoicesSheet}
	for i, h := range listHeaders {
		w.setAt(i+1, 1, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(listHeaders), 1)
	w.style("A1", last, st.header)

	for i, inv := range list {
		row := i + 2
		created := ""
		if !inv.CreatedAt.IsZero() {
			created = inv.CreatedAt.Format("2006-01-02 15:04")
		}
		for col, v := range []any{
			inv.ID, inv.Code, created, inv.ClientCode, inv.ClientName, inv.District,
			inv.PaymentMethod, inv.Currency, amount(inv.Subtotal), amount(inv.IGV), amount(inv.Total),
			len(inv.Items), inv.SourceFile,
		} {
			w.setAt(col+1, row, v)
		}
		w.style(fmt.Sprintf("I%d", row), fmt.Sprintf("K%d", row), st.number)
	}
	if w.err != nil {
		return nil, fmt.Errorf("xlsx render: %w", w.err)
	}
	_ = f.SetColWidth(InvoicesSheet, "B", "C", 18)
	_ = f.SetColWidth(InvoicesSheet, "D", "D", 14)
	_ = f.SetColWidth(InvoicesSheet, "E", "E", 36)
	_ = f.SetColWidth(InvoicesSheet, "M", "M", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"sheet", InvoicesSheet,
		"rows", len(list),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportAll pages through the store and renders every invoice.
func (s *Service) ExportAll(ctx context.Context) ([]byte, error) {
	if s.invoices == nil {
		return nil, fmt.Errorf("invoice store is not configured")
	}
	var all []*entity.StoredInvoice
	for offset := 0; ; offset += exportBatch {
		page, err := s.invoices.List(ctx, exportBatch, offset)
		if err != nil {
			return nil, fmt.Errorf("query invoices: %w", err)
		}
		all = append(all, page...)
		if len(page) < exportBatch {
			break
		}
	}
	return s.InvoicesXLSX(all)
}

// ExportOne loads a stored invoice and renders it.
func (s *Service) ExportOne(ctx context.Context, id int64) ([]byte, error) {
	if s.invoices == nil {
		return nil, fmt.Errorf("invoice store is not configured")
	}
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.InvoiceXLSX(&inv.Invoice, inv.SourceFile)
}

func positive(p *float64) bool {
	return p != nil && *p > 0
}
