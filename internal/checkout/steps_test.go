package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepOrdering(t *testing.T) {
	next, ok := StepBilling.Next()
	assert.True(t, ok)
	assert.Equal(t, StepPaymentMethod, next)

	next, ok = StepPaymentMethod.Next()
	assert.True(t, ok)
	assert.Equal(t, StepReview, next)

	_, ok = StepReview.Next()
	assert.False(t, ok, "review has no next step")

	_, ok = StepBilling.Prev()
	assert.False(t, ok, "billing has no previous step")

	prev, ok := StepReview.Prev()
	assert.True(t, ok)
	assert.Equal(t, StepPaymentMethod, prev)
}

func TestCanAdvanceBillingRequiresCoreFields(t *testing.T) {
	billing := BillingInfo{Email: "x@y.com", Address: "123 St"}
	assert.False(t, canAdvance(StepBilling, billing, "", CardInfo{}))

	billing.FullName = "   "
	assert.False(t, canAdvance(StepBilling, billing, "", CardInfo{}), "whitespace is blank")

	billing.FullName = "Maria Santos"
	assert.True(t, canAdvance(StepBilling, billing, "", CardInfo{}))

	// city, state, zip are optional at this step
	assert.True(t, canAdvance(StepBilling, BillingInfo{FullName: "M", Email: "m@x.com", Address: "a"}, "", CardInfo{}))
}

func TestCanAdvancePaymentMethodGatesCardFields(t *testing.T) {
	assert.True(t, canAdvance(StepPaymentMethod, BillingInfo{}, MethodCashOnDelivery, CardInfo{}))
	assert.True(t, canAdvance(StepPaymentMethod, BillingInfo{}, MethodGCash, CardInfo{}))
	assert.True(t, canAdvance(StepPaymentMethod, BillingInfo{}, MethodPayMaya, CardInfo{}))

	assert.False(t, canAdvance(StepPaymentMethod, BillingInfo{}, "", CardInfo{}), "a method must be chosen")

	card := CardInfo{CardNumber: "4111111111111111", ExpiryDate: "12/27", CVV: "123"}
	assert.False(t, canAdvance(StepPaymentMethod, BillingInfo{}, MethodCreditCard, card), "cardholder name missing")

	card.CardholderName = "Maria Santos"
	assert.True(t, canAdvance(StepPaymentMethod, BillingInfo{}, MethodCreditCard, card))
	assert.True(t, canAdvance(StepPaymentMethod, BillingInfo{}, MethodDebitCard, card))
}

func TestCanAdvanceReviewAlwaysTrue(t *testing.T) {
	assert.True(t, canAdvance(StepReview, BillingInfo{}, "", CardInfo{}))
}

func TestParsePaymentMethod(t *testing.T) {
	m, ok := ParsePaymentMethod(" Credit_Card ")
	assert.True(t, ok)
	assert.Equal(t, MethodCreditCard, m)
	assert.True(t, m.IsCard())

	m, ok = ParsePaymentMethod("gcash")
	assert.True(t, ok)
	assert.False(t, m.IsCard())

	_, ok = ParsePaymentMethod("bitcoin")
	assert.False(t, ok)
}
