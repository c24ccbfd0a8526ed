package llm

import (
	"errors"
	"strings"
)

// ErrEmptyText is returned when there is no text to build a prompt from.
var ErrEmptyText = errors.New("no cleaned text available")

const systemPrompt = "You are an accountant who extracts data from Peruvian invoices (facturas). " +
	"Read the invoice text and answer with one JSON object only: no markdown, no commentary."

var userRules = []string{
	"Extract only information explicitly present in the text; never invent or infer values.",
	"Use null for any field that does not appear.",
	"Amounts are numbers with up to 2 decimals (e.g. 1500.00).",
	"Keep strings exactly as written unless a rule below says otherwise.",
}

var fieldGuide = []string{
	"codigo_cliente: the CLIENT's RUC (11 digits) or DNI (8 digits). String or null.",
	"razon_social_cliente: the client's exact name or business name. String or null.",
	"direccion_cliente: the client's full address without district or department, UPPERCASE, no commas or parentheses. String or null.",
	"distrito: the client's Peruvian district, UPPERCASE. String or null.",
	"items: array of {descripcion: string, cantidad: number, precio_unitario: number, subtotal: number}.",
	"forma_pago: one of CONTADO, CREDITO, TARJETA, EFECTIVO, TRANSFERENCIA, YAPE, PLIN. String or null.",
	"moneda: ISO code, PEN for soles and USD for dollars. String or null.",
	"subtotal: amount before taxes. Number or null.",
	"igv: IGV tax amount (18%). Number or null.",
	"total: total amount payable. Number or null.",
	"detraccion: {porcentaje: number, monto: number} only when a detraction is stated explicitly, otherwise null.",
}

// BuildPrompts returns the system and user prompts for one invoice text.
func BuildPrompts(cleanedText string) (string, string, error) {
	if strings.TrimSpace(cleanedText) == "" {
		return "", "", ErrEmptyText
	}
	var b strings.Builder
	b.WriteString("Extract the invoice below into JSON.\n\nRULES:\n")
	for _, r := range userRules {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteByte('\n')
	}
	b.WriteString("\nFIELDS:\n")
	for _, f := range fieldGuide {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteByte('\n')
	}
	b.WriteString("\nINVOICE TEXT:\n---\n")
	b.WriteString(cleanedText)
	b.WriteString("\n---\n\nAnswer with the JSON object only.")
	return systemPrompt, b.String(), nil
}
