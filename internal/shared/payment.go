package shared

// PaymentMethod is how money changed hands.
type PaymentMethod string

const (
	PaymentCash                PaymentMethod = "CASH"
	PaymentClientCheck         PaymentMethod = "CLIENT_CHECK"
	PaymentProjectAccountCheck PaymentMethod = "PROJECT_ACCOUNT_CHECK"
	PaymentProjectTransfer     PaymentMethod = "PROJECT_TRANSFER"
	PaymentCompanyTransfer     PaymentMethod = "COMPANY_TRANSFER"
)

var paymentLabels = map[PaymentMethod]string{
	PaymentCash:                "Efectivo",
	PaymentClientCheck:         "Cheque Cliente",
	PaymentProjectAccountCheck: "Cheque Cta Obra",
	PaymentProjectTransfer:     "Transferencia Obra",
	PaymentCompanyTransfer:     "Transferencia Brahma",
}

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	_, ok := paymentLabels[m]
	return ok
}

// Label returns the display name used on receipts.
func (m PaymentMethod) Label() string {
	return paymentLabels[m]
}
