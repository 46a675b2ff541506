package enums

// PaymentMethod describes how a buyer intends to settle an order. Only card
// payments go through a hosted gateway session; the others are recorded on
// pay-later orders and settled outside the service.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
)

var paymentMethods = []PaymentMethod{PaymentMethodCard, PaymentMethodCashOnDelivery, PaymentMethodBankTransfer}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return member(paymentMethods, p) }

// SupportsHostedSession reports whether the method is settled through the gateway.
func (p PaymentMethod) SupportsHostedSession() bool {
	return p == PaymentMethodCard
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse(paymentMethods, value, "payment method")
}
