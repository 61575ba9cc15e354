package types

import "fmt"

type PaymentProvider string

const (
	// PaymentProviderCash is settled by an operator after collecting cash on delivery.
	PaymentProviderCash PaymentProvider = "cash"
	// PaymentProviderMobileMoney pushes a USSD prompt to the payer's handset.
	PaymentProviderMobileMoney PaymentProvider = "mobile_money"
	// PaymentProviderRedirect sends the payer to a hosted bank/card page.
	PaymentProviderRedirect PaymentProvider = "redirect"
	// PaymentProviderCard captures a tokenized card directly.
	PaymentProviderCard PaymentProvider = "card"
)

var paymentProviders = []PaymentProvider{
	PaymentProviderCash,
	PaymentProviderMobileMoney,
	PaymentProviderRedirect,
	PaymentProviderCard,
}

func (p PaymentProvider) Valid() bool {
	for _, it := range paymentProviders {
		if it == p {
			return true
		}
	}
	return false
}

func (p PaymentProvider) String() string { return string(p) }

// ParsePaymentProvider validates a provider identifier coming from a request or a route.
func ParsePaymentProvider(s string) (PaymentProvider, error) {
	p := PaymentProvider(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown payment provider: %q", s)
	}
	return p, nil
}
