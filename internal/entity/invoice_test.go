package entity

import (
	"errors"
	"strings"
	"testing"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1500", 1500, true},
		{"1,770.00", 1770, true},
		{"S/ 270.00", 270, true},
		{"S/. 1,770.00", 1770, true},
		{"S/.270.00", 270, true},
		{"s/. 1.770,50", 1770.5, true},
		{"PEN 99.90", 99.9, true},
		{"1.770,50", 1770.5, true},
		{"US$ 12.5", 12.5, true},
		{"-3.20", -3.2, true},
		{"", 0, false},
		{"N/A", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseAmount(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("ParseAmount(%q) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestInvoiceFromFields(t *testing.T) {
	fields := map[string]any{
		"codigo_cliente":       "20123456789",
		"razon_social_cliente": "ACME S.A.C.",
		"distrito":             "MIRAFLORES",
		"forma_pago":           "Crédito",
		"moneda":               "pen",
		"subtotal":             1500.0,
		"igv":                  "270.00",
		"total":                "S/ 1,770.00",
		"items": []any{
			map[string]any{"descripcion": "SERVICIO", "cantidad": 2.0, "precio_unitario": 750.0, "subtotal": 1500.0},
			"garbage",
		},
		"detraccion": map[string]any{"porcentaje": 12.0, "monto": nil},
		"serie":      "F001-123",
	}
	inv, warnings := InvoiceFromFields(fields)

	if inv.ClientCode != "20123456789" || inv.ClientName != "ACME S.A.C." || inv.Currency != "PEN" {
		t.Fatalf("strings not decoded: %+v", inv)
	}
	if inv.PaymentMethod != "CREDITO" {
		t.Fatalf("payment = %q", inv.PaymentMethod)
	}
	if inv.IGV == nil || *inv.IGV != 270 || inv.TotalOrZero() != 1770 {
		t.Fatalf("amounts not coerced: igv=%v total=%v", inv.IGV, inv.Total)
	}
	if len(inv.Items) != 1 || inv.Items[0].Description != "SERVICIO" || *inv.Items[0].Quantity != 2 {
		t.Fatalf("items = %+v", inv.Items)
	}
	if inv.Detraction == nil || *inv.Detraction.Percentage != 12 || inv.Detraction.Amount != nil {
		t.Fatalf("detraction = %+v", inv.Detraction)
	}
	if inv.Extra["serie"] != "F001-123" {
		t.Fatalf("unknown keys not kept: %v", inv.Extra)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "items[1]") {
		t.Fatalf("warnings = %v", warnings)
	}
	if err := inv.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestInvoiceFromFieldsNulls(t *testing.T) {
	inv, warnings := InvoiceFromFields(map[string]any{
		"razon_social_cliente": nil,
		"total":                "no disponible",
		"items":                "none",
		"forma_pago":           "letra",
	})
	if inv.Total != nil || inv.Items == nil || len(inv.Items) != 0 {
		t.Fatalf("invoice = %+v", inv)
	}
	if inv.PaymentMethod != "LETRA" {
		t.Fatalf("payment = %q", inv.PaymentMethod)
	}
	if len(warnings) != 3 {
		t.Fatalf("warnings = %v", warnings)
	}
	if err := inv.Validate(); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("Validate() = %v, want invalid input for a missing client", err)
	}
}

func TestValidateRejects(t *testing.T) {
	neg := -1.0
	inv := &Invoice{ClientName: "ACME", ClientCode: "ABC", Currency: "soles", Total: &neg}
	err := inv.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, field := range []string{"codigo_cliente", "moneda", "total"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}
