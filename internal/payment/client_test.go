package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clothesfashion/backend-checkout/internal/common"
	"github.com/clothesfashion/backend-checkout/internal/resilience"
)

func testSubmission() Submission {
	return Submission{
		Items: []SubmissionItem{
			{ProductID: "p1", Name: "Linen Shirt", Quantity: 2, UnitPrice: 450, TotalPrice: 900},
		},
		PaymentMethod: "gcash",
		BillingAddress: BillingAddress{
			FullName:     "Maria Santos",
			AddressLine1: "123 Mabini St, Quezon City",
			City:         "Quezon City",
			State:        "Metro Manila",
			PostalCode:   "1100",
			Country:      "PH",
		},
		DiscountCodes: []string{"SUMMER20"},
		Currency:      "PHP",
	}
}

func newGateway(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, resilience.NewHTTPClient(srv.Client(), nil, 1, time.Millisecond, time.Second, 0))
}

func TestSubmitSendsWirePayload(t *testing.T) {
	var got map[string]any
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/create-payment", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{
			"order_number": "ORD-1001",
			"payment_id":   "PAY-77",
		})
	}))

	conf, err := g.Submit(context.Background(), "tok-1", testSubmission())
	require.NoError(t, err)
	assert.Equal(t, "ORD-1001", conf.OrderNumber)
	assert.Equal(t, "PAY-77", conf.PaymentID)

	assert.Equal(t, "gcash", got["payment_method"])
	assert.Equal(t, "PHP", got["currency"])
	assert.Equal(t, []any{"SUMMER20"}, got["discount_code"])

	items, ok := got["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	assert.Equal(t, "p1", first["product_id"])
	assert.EqualValues(t, 900, first["total_price"])

	billing := got["billing_address"].(map[string]any)
	assert.Equal(t, "Maria Santos", billing["full_name"])
	assert.Equal(t, "1100", billing["postal_code"])
}

func TestSubmitMapsDecline(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Card declined"})
	}))

	_, err := g.Submit(context.Background(), "tok-1", testSubmission())
	require.Error(t, err)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeValidation, appErr.Code)
	assert.Equal(t, "Card declined", appErr.Message)
}

func TestSubmitMapsTimeout(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Submit(ctx, "tok-1", testSubmission())
	require.Error(t, err)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeUnavailable, appErr.Code)
}

func TestSubmitRejectsEmptyConfirmation(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))

	_, err := g.Submit(context.Background(), "tok-1", testSubmission())
	require.Error(t, err)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeUnavailable, appErr.Code)
}
