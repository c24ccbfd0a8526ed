package constants

import (
	"strings"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CONTADO"
	PaymentCredit   PaymentMethod = "CREDITO"
	PaymentCard     PaymentMethod = "TARJETA"
	PaymentMoney    PaymentMethod = "EFECTIVO"
	PaymentTransfer PaymentMethod = "TRANSFERENCIA"
	PaymentYape     PaymentMethod = "YAPE"
	PaymentPlin     PaymentMethod = "PLIN"
)

var allPaymentMethods = []PaymentMethod{
	PaymentCash,
	PaymentCredit,
	PaymentCard,
	PaymentMoney,
	PaymentTransfer,
	PaymentYape,
	PaymentPlin,
}

func PaymentMethodsAsStrings() []string {
	result := make([]string, len(allPaymentMethods))
	for i, pm := range allPaymentMethods {
		result[i] = string(pm)
	}
	return result
}

// CanonicalizePayment maps a free-form payment condition onto a known method.
// The second return is false when nothing matched; the input is then returned uppercased.
func CanonicalizePayment(input string) (PaymentMethod, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]PaymentMethod{
		"al contado":             PaymentCash,
		"contado":                PaymentCash,
		"cash":                   PaymentMoney,
		"credito":                PaymentCredit,
		"crédito":                PaymentCredit,
		"credit":                 PaymentCredit,
		"factura a credito":      PaymentCredit,
		"tarjeta de credito":     PaymentCard,
		"tarjeta de crédito":     PaymentCard,
		"tarjeta de debito":      PaymentCard,
		"tarjeta de débito":      PaymentCard,
		"credit card":            PaymentCard,
		"card":                   PaymentCard,
		"visa":                   PaymentCard,
		"mastercard":             PaymentCard,
		"transferencia bancaria": PaymentTransfer,
		"deposito":               PaymentTransfer,
		"depósito":               PaymentTransfer,
		"bank transfer":          PaymentTransfer,
		"wire":                   PaymentTransfer,
	}
	if pm, ok := synonyms[normalized]; ok {
		return pm, true
	}

	for _, pm := range allPaymentMethods {
		if normalized == strings.ToLower(string(pm)) {
			return pm, true
		}
	}

	// "CREDITO 30 DIAS" and similar carry the method as a prefix.
	for _, pm := range allPaymentMethods {
		if strings.HasPrefix(normalized, strings.ToLower(string(pm))+" ") {
			return pm, true
		}
	}

	return PaymentMethod(strings.ToUpper(strings.TrimSpace(input))), false
}
