package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/repository"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f(v float64) *float64 { return &v }

type fakeRepo struct {
	repository.InvoiceRepository
	list []*entity.StoredInvoice
}

func (r *fakeRepo) List(_ context.Context, limit, offset int) ([]*entity.StoredInvoice, error) {
	if offset >= len(r.list) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.list) {
		end = len(r.list)
	}
	return r.list[offset:end], nil
}

func (r *fakeRepo) Get(_ context.Context, id int64) (*entity.StoredInvoice, error) {
	for _, inv := range r.list {
		if inv.ID == id {
			return inv, nil
		}
	}
	return nil, common.ErrNotFound
}

func open(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	t.Cleanup(func() { _ = wb.Close() })
	return wb
}

func sheetText(t *testing.T, wb *excelize.File, sheet string) string {
	t.Helper()
	rows, err := wb.GetRows(sheet)
	if err != nil {
		t.Fatalf("GetRows(%s): %v", sheet, err)
	}
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(strings.Join(r, "|"))
		b.WriteByte('\n')
	}
	return b.String()
}

func TestInvoiceXLSX(t *testing.T) {
	svc := NewService(nil, quietLogger())
	inv := &entity.Invoice{
		ClientCode: "20123456789",
		ClientName: "COMERCIAL ANDINA SAC",
		Currency:   "PEN",
		Items: []entity.InvoiceItem{
			{Description: "SERVICIO DE CONSULTORIA", Quantity: f(1), UnitPrice: f(1500), Subtotal: f(1500)},
		},
		Subtotal:   f(1500),
		IGV:        f(270),
		Total:      f(1770),
		Detraction: &entity.Detraction{Percentage: f(12), Amount: f(212.4)},
	}
	data, err := svc.InvoiceXLSX(inv, "factura.pdf")
	if err != nil {
		t.Fatalf("InvoiceXLSX: %v", err)
	}
	wb := open(t, data)
	if names := wb.GetSheetList(); len(names) != 1 || names[0] != InvoiceSheet {
		t.Fatalf("sheets = %v", names)
	}
	text := sheetText(t, wb, InvoiceSheet)
	for _, want := range []string{"COMERCIAL ANDINA SAC", "SERVICIO DE CONSULTORIA", "DETRACCIÓN", "12%", "factura.pdf", "N/A"} {
		if !strings.Contains(text, want) {
			t.Errorf("sheet is missing %q:\n%s", want, text)
		}
	}
}

func TestInvoiceXLSXWithoutItemsOrDetraction(t *testing.T) {
	svc := NewService(nil, quietLogger())
	data, err := svc.InvoiceXLSX(&entity.Invoice{ClientName: "ACME"}, "")
	if err != nil {
		t.Fatalf("InvoiceXLSX: %v", err)
	}
	text := sheetText(t, open(t, data), InvoiceSheet)
	if !strings.Contains(text, "Sin items registrados") {
		t.Errorf("missing empty-items marker:\n%s", text)
	}
	if strings.Contains(text, "DETRACCIÓN") {
		t.Errorf("detraction block rendered without data:\n%s", text)
	}
}

func TestExportAllPagesThroughStore(t *testing.T) {
	repo := &fakeRepo{}
	for i := 0; i < exportBatch+3; i++ {
		repo.list = append(repo.list, &entity.StoredInvoice{
			ID:      int64(i + 1),
			Code:    "FACT-0000",
			Invoice: entity.Invoice{ClientName: "CLIENTE", Total: f(10)},
		})
	}
	svc := NewService(repo, quietLogger())
	data, err := svc.ExportAll(context.Background())
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	rows, err := open(t, data).GetRows(InvoicesSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != exportBatch+4 {
		t.Errorf("rows = %d, want header plus %d", len(rows), exportBatch+3)
	}
	if rows[0][0] != "ID" || rows[0][4] != "Razón Social" {
		t.Errorf("header = %v", rows[0])
	}
}

func TestExportOneUnknown(t *testing.T) {
	svc := NewService(&fakeRepo{}, quietLogger())
	if _, err := svc.ExportOne(context.Background(), 42); err == nil {
		t.Fatal("expected an error for an unknown invoice")
	}
}
