package llm

// BuildInvoiceJSONSchema returns the JSON Schema the structured answer is checked against.
// Amounts accept numeric strings as well; they are coerced when decoding the invoice.
func BuildInvoiceJSONSchema() map[string]any {
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"descripcion":     nullable("string"),
			"cantidad":        amountProp(),
			"precio_unitario": amountProp(),
			"subtotal":        amountProp(),
		},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"codigo_cliente":       map[string]any{"type": []any{"string", "null"}, "pattern": `^\s*\d{8}(\d{3})?\s*$`},
			"razon_social_cliente": nullable("string"),
			"direccion_cliente":    nullable("string"),
			"distrito":             nullable("string"),
			"items":                map[string]any{"type": []any{"array", "null"}, "items": item},
			"forma_pago":           nullable("string"),
			"moneda":               map[string]any{"type": []any{"string", "null"}, "pattern": `^[A-Za-z]{3}$`},
			"subtotal":             amountProp(),
			"igv":                  amountProp(),
			"total":                amountProp(),
			"detraccion": map[string]any{
				"type": []any{"object", "null"},
				"properties": map[string]any{
					"porcentaje": amountProp(),
					"monto":      amountProp(),
				},
			},
		},
	}
}

func nullable(t string) map[string]any {
	return map[string]any{"type": []any{t, "null"}}
}

func amountProp() map[string]any {
	return map[string]any{
		"anyOf": []any{
			map[string]any{"type": "number"},
			map[string]any{"type": "string", "pattern": `^[^A-Za-z]*\d[^A-Za-z]*$|^S/.*\d`},
			map[string]any{"type": "null"},
		},
	}
}
