package llm

import "testing"

func TestValidateInvoiceFields(t *testing.T) {
	valid := map[string]any{
		"codigo_cliente":       "20123456789",
		"razon_social_cliente": "EMPRESA COMERCIAL SAC",
		"items": []any{
			map[string]any{"descripcion": "SERVICIO", "cantidad": 1.0, "precio_unitario": "1,500.00", "subtotal": 1500.0},
		},
		"moneda":     "PEN",
		"total":      "S/ 1770.00",
		"igv":        nil,
		"detraccion": nil,
		"extra_note": "kept",
	}
	if err := ValidateInvoiceFields(valid); err != nil {
		t.Fatalf("valid fields rejected: %v", err)
	}

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"bad client code", map[string]any{"codigo_cliente": "ABC"}},
		{"items not array", map[string]any{"items": "SERVICIO"}},
		{"word amount", map[string]any{"total": "mil soles"}},
		{"currency length", map[string]any{"moneda": "SOLES"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateInvoiceFields(tt.fields); err == nil {
				t.Error("expected schema violation")
			}
		})
	}
}
