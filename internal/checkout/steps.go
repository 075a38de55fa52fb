package checkout

import "strings"

// Step is one stage of the checkout flow. Steps are strictly sequential;
// there is no skipping forward.
type Step string

const (
	StepBilling       Step = "BILLING"
	StepPaymentMethod Step = "PAYMENT_METHOD"
	StepReview        Step = "REVIEW"
)

var stepOrder = []Step{StepBilling, StepPaymentMethod, StepReview}

func (s Step) index() int {
	for i, step := range stepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// Next returns the following step and whether one exists.
func (s Step) Next() (Step, bool) {
	i := s.index()
	if i < 0 || i+1 >= len(stepOrder) {
		return s, false
	}
	return stepOrder[i+1], true
}

// Prev returns the preceding step and whether one exists.
func (s Step) Prev() (Step, bool) {
	i := s.index()
	if i <= 0 {
		return s, false
	}
	return stepOrder[i-1], true
}

// PaymentMethod is a supported tender type.
type PaymentMethod string

const (
	MethodCreditCard     PaymentMethod = "credit_card"
	MethodDebitCard      PaymentMethod = "debit_card"
	MethodGCash          PaymentMethod = "gcash"
	MethodPayMaya        PaymentMethod = "paymaya"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// ParsePaymentMethod validates a wire payment method value.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case MethodCreditCard, MethodDebitCard, MethodGCash, MethodPayMaya, MethodCashOnDelivery:
		return m, true
	}
	return "", false
}

// IsCard reports whether the method requires card details.
func (m PaymentMethod) IsCard() bool {
	return m == MethodCreditCard || m == MethodDebitCard
}

// BillingInfo is the shopper-entered billing block.
type BillingInfo struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
}

// CardInfo holds card details for card payment methods. Only presence is
// checked; format validation belongs to the payment gateway.
type CardInfo struct {
	CardNumber     string `json:"cardNumber"`
	ExpiryDate     string `json:"expiryDate"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholderName"`
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// canAdvance reports whether the flow may move past the given step with the
// data entered so far.
func canAdvance(step Step, billing BillingInfo, method PaymentMethod, card CardInfo) bool {
	switch step {
	case StepBilling:
		return !blank(billing.FullName) && !blank(billing.Email) && !blank(billing.Address)
	case StepPaymentMethod:
		if method == "" {
			return false
		}
		if !method.IsCard() {
			return true
		}
		return !blank(card.CardNumber) && !blank(card.ExpiryDate) && !blank(card.CVV) && !blank(card.CardholderName)
	case StepReview:
		return true
	}
	return false
}
