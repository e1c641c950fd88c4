package notify

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.MustParse("es-MX"))

// FormatAmount renders a money amount with grouping, e.g. $1,234.50.
func FormatAmount(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return printer.Sprintf("$%.2f", f)
}

// Describe builds the human readable line shown alongside an event.
func Describe(kind Kind, payload map[string]any) string {
	switch kind {
	case KindTransactionCreated:
		return fmt.Sprintf("Nueva transacción pendiente de confirmación por %s", amountOf(payload))
	case KindTransactionUpdated:
		if payload["action"] == "reject" {
			return "Una transacción fue rechazada"
		}
		return "Una transacción fue confirmada"
	case KindPeriodEnding:
		return fmt.Sprintf("El periodo %v termina pronto", payload["description"])
	default:
		return string(kind)
	}
}

func amountOf(payload map[string]any) string {
	raw, ok := payload["amount"].(string)
	if !ok {
		return "monto desconocido"
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	return FormatAmount(d)
}
