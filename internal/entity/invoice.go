package entity

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

// Invoice is the typed view of the fields extracted from one invoice.
// Keys the model returns beyond the known set are kept in Extra.
type Invoice struct {
	ClientCode    string         `json:"codigo_cliente,omitempty"`
	ClientName    string         `json:"razon_social_cliente,omitempty"`
	ClientAddress string         `json:"direccion_cliente,omitempty"`
	District      string         `json:"distrito,omitempty"`
	Items         []InvoiceItem  `json:"items"`
	PaymentMethod string         `json:"forma_pago,omitempty"`
	Currency      string         `json:"moneda,omitempty"`
	Subtotal      *float64       `json:"subtotal,omitempty"`
	IGV           *float64       `json:"igv,omitempty"`
	Total         *float64       `json:"total,omitempty"`
	Detraction    *Detraction    `json:"detraccion,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

type InvoiceItem struct {
	Description string   `json:"descripcion"`
	Quantity    *float64 `json:"cantidad,omitempty"`
	UnitPrice   *float64 `json:"precio_unitario,omitempty"`
	Subtotal    *float64 `json:"subtotal,omitempty"`
}

// Detraction is the Peruvian withholding (SPOT) applied to some invoices.
type Detraction struct {
	Percentage *float64 `json:"porcentaje,omitempty"`
	Amount     *float64 `json:"monto,omitempty"`
}

// StoredInvoice is an Invoice as persisted by the repository.
type StoredInvoice struct {
	ID         int64     `json:"id"`
	Code       string    `json:"codigo_factura"`
	JobID      string    `json:"job_id,omitempty"`
	SourceFile string    `json:"archivo_origen,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Invoice
}

// InvoiceStats summarizes the invoice store.
type InvoiceStats struct {
	Count           int64   `json:"total_facturas"`
	TotalAmount     float64 `json:"monto_total"`
	AverageAmount   float64 `json:"promedio"`
	DistinctClients int64   `json:"clientes_unicos"`
}

var knownFields = map[string]struct{}{
	"codigo_cliente": {}, "razon_social_cliente": {}, "direccion_cliente": {}, "distrito": {},
	"items": {}, "forma_pago": {}, "moneda": {}, "subtotal": {}, "igv": {}, "total": {},
	"detraccion": {},
}

// InvoiceFromFields decodes an open field mapping into an Invoice.
// Amounts given as strings ("S/ 1,770.00") are coerced; values that cannot be
// coerced are dropped and reported in the returned warnings.
func InvoiceFromFields(fields map[string]any) (*Invoice, []string) {
	d := decoder{}
	inv := &Invoice{
		ClientCode:    d.str(fields, "codigo_cliente"),
		ClientName:    d.str(fields, "razon_social_cliente"),
		ClientAddress: d.str(fields, "direccion_cliente"),
		District:      d.str(fields, "distrito"),
		Currency:      strings.ToUpper(d.str(fields, "moneda")),
		Subtotal:      d.amount(fields, "subtotal"),
		IGV:           d.amount(fields, "igv"),
		Total:         d.amount(fields, "total"),
		Items:         []InvoiceItem{},
	}
	if pm := d.str(fields, "forma_pago"); pm != "" {
		canon, ok := constants.CanonicalizePayment(pm)
		if !ok {
			d.warn("forma_pago %q is not a known payment method", pm)
		}
		inv.PaymentMethod = string(canon)
	}

	switch raw := fields["items"].(type) {
	case nil:
	case []any:
		for i, it := range raw {
			m, ok := it.(map[string]any)
			if !ok {
				d.warn("items[%d] is not an object", i)
				continue
			}
			inv.Items = append(inv.Items, InvoiceItem{
				Description: d.str(m, "descripcion"),
				Quantity:    d.amount(m, "cantidad"),
				UnitPrice:   d.amount(m, "precio_unitario"),
				Subtotal:    d.amount(m, "subtotal"),
			})
		}
	default:
		d.warn("items is %T, expected an array", raw)
	}

	if m, ok := fields["detraccion"].(map[string]any); ok {
		det := &Detraction{
			Percentage: d.amount(m, "porcentaje"),
			Amount:     d.amount(m, "monto"),
		}
		if det.Percentage != nil || det.Amount != nil {
			inv.Detraction = det
		}
	}

	for k, v := range fields {
		if _, ok := knownFields[k]; ok {
			continue
		}
		if inv.Extra == nil {
			inv.Extra = map[string]any{}
		}
		inv.Extra[k] = v
	}
	return inv, d.warnings
}

// Validate checks the fields a stored invoice must satisfy.
func (inv *Invoice) Validate() error {
	v := common.NewValidator().
		Field("razon_social_cliente", inv.ClientName, common.Required, common.MaxLength(255)).
		Field("codigo_cliente", inv.ClientCode, common.TaxID).
		Field("moneda", inv.Currency, common.CurrencyCode).
		Field("subtotal", inv.Subtotal, common.NonNegative).
		Field("igv", inv.IGV, common.NonNegative).
		Field("total", inv.Total, common.NonNegative)
	return v.Err()
}

// TotalOrZero is the invoice total, or 0 when the model did not find one.
func (inv *Invoice) TotalOrZero() float64 {
	if inv.Total == nil {
		return 0
	}
	return *inv.Total
}

type decoder struct {
	warnings []string
}

func (d *decoder) warn(format string, args ...any) {
	d.warnings = append(d.warnings, fmt.Sprintf(format, args...))
}

func (d *decoder) str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(v)
		if strings.EqualFold(s, "null") {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		d.warn("%s has unexpected type %T", key, v)
		return ""
	}
}

var (
	reCurrencyPrefix = regexp.MustCompile(`(?i)^(S/\.?|US\$|\$|PEN|USD)\s*`)
	reAmountNoise    = regexp.MustCompile(`[^0-9.,\-]`)
)

func (d *decoder) amount(m map[string]any, key string) *float64 {
	switch v := m[key].(type) {
	case nil:
		return nil
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case string:
		f, ok := ParseAmount(v)
		if !ok {
			if strings.TrimSpace(v) != "" && !strings.EqualFold(strings.TrimSpace(v), "null") {
				d.warn("%s value %q is not a number", key, v)
			}
			return nil
		}
		return &f
	default:
		d.warn("%s has unexpected type %T", key, v)
		return nil
	}
}

// ParseAmount reads amounts such as "1,770.00", "S/. 270.00" or "1.770,00".
func ParseAmount(s string) (float64, bool) {
	s = reCurrencyPrefix.ReplaceAllString(strings.TrimSpace(s), "")
	s = reAmountNoise.ReplaceAllString(s, "")
	if s == "" {
		return 0, false
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma > lastDot && len(s)-lastComma-1 <= 2:
		// decimal comma
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
